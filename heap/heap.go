// Package heap is a generic binary min heap.
package heap

type Heap[T any] struct {
	data []T
	less func(a, b T) bool
}

func New[T any](less func(a, b T) bool) *Heap[T] {
	return &Heap[T]{
		data: []T{},
		less: less,
	}
}

func (h *Heap[T]) Push(value T) {
	h.data = append(h.data, value)
	h.up(len(h.data) - 1)
}

func (h *Heap[T]) Pop() (T, bool) {
	if len(h.data) == 0 {
		var zero T
		return zero, false
	}
	return h.removeAt(0), true
}

func (h *Heap[T]) Peek() (T, bool) {
	if len(h.data) == 0 {
		var zero T
		return zero, false
	}
	return h.data[0], true
}

// RemoveFunc removes the first element matching f.
func (h *Heap[T]) RemoveFunc(f func(T) bool) (T, bool) {
	for index, value := range h.data {
		if f(value) {
			return h.removeAt(index), true
		}
	}
	var zero T
	return zero, false
}

func (h *Heap[T]) removeAt(index int) T {
	removed := h.data[index]
	last := len(h.data) - 1
	h.data[index] = h.data[last]
	var zero T
	h.data[last] = zero
	h.data = h.data[:last]
	if index < last {
		h.down(index)
		h.up(index)
	}
	return removed
}

func (h *Heap[T]) up(index int) {
	for index > 0 {
		parent := (index - 1) / 2
		if !h.less(h.data[index], h.data[parent]) {
			return
		}
		h.data[index], h.data[parent] = h.data[parent], h.data[index]
		index = parent
	}
}

func (h *Heap[T]) down(index int) {
	size := len(h.data)
	for {
		smallest := index
		for _, child := range []int{2*index + 1, 2*index + 2} {
			if child < size && h.less(h.data[child], h.data[smallest]) {
				smallest = child
			}
		}
		if smallest == index {
			return
		}
		h.data[index], h.data[smallest] = h.data[smallest], h.data[index]
		index = smallest
	}
}

func (h *Heap[T]) Size() int {
	return len(h.data)
}
