package heap

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func intHeap() *Heap[int] {
	return New(func(a, b int) bool {
		return a < b
	})
}

func drain(h *Heap[int]) []int {
	result := []int{}
	for value, found := h.Pop(); found; value, found = h.Pop() {
		result = append(result, value)
	}
	return result
}

func TestBasics(t *testing.T) {
	h := intHeap()
	for _, i := range []int{10, 4, 100, 8, 20} {
		h.Push(i)
	}
	for _, i := range []int{4, 8, 10, 20, 100} {
		if top, found := h.Peek(); !found || top != i {
			t.Errorf("got %v, %v, want %v, true", top, found, i)
		}
		if top, found := h.Pop(); !found || top != i {
			t.Errorf("got %v, %v, want %v, true", top, found, i)
		}
	}
	if _, found := h.Peek(); found {
		t.Errorf("got %v, want false", found)
	}
	if _, found := h.Pop(); found {
		t.Errorf("got %v, want false", found)
	}
}

func TestRemoveFunc(t *testing.T) {
	for _, tc := range []struct {
		name   string
		remove int
		found  bool
		want   []int
	}{
		{name: "top", remove: 1, found: true, want: []int{2, 3, 5, 8, 13}},
		{name: "middle", remove: 5, found: true, want: []int{1, 2, 3, 8, 13}},
		{name: "last", remove: 13, found: true, want: []int{1, 2, 3, 5, 8}},
		{name: "missing", remove: 7, found: false, want: []int{1, 2, 3, 5, 8, 13}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := intHeap()
			for _, i := range []int{8, 3, 13, 1, 5, 2} {
				h.Push(i)
			}
			got, found := h.RemoveFunc(func(i int) bool { return i == tc.remove })
			if found != tc.found || (found && got != tc.remove) {
				t.Errorf("got %v, %v, want %v, %v", got, found, tc.remove, tc.found)
			}
			if diff := cmp.Diff(tc.want, drain(h)); diff != "" {
				t.Errorf("remaining (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	h := intHeap()
	want := []int{}
	for i := 0; i < 500; i++ {
		value := rng.Intn(1000)
		h.Push(value)
		want = append(want, value)
	}
	for i := 0; i < 50; i++ {
		target := want[rng.Intn(len(want))]
		if _, found := h.RemoveFunc(func(v int) bool { return v == target }); !found {
			t.Fatalf("%v not found", target)
		}
		for index, value := range want {
			if value == target {
				want = append(want[:index], want[index+1:]...)
				break
			}
		}
	}
	sort.Ints(want)
	if h.Size() != len(want) {
		t.Errorf("got size %v, want %v", h.Size(), len(want))
	}
	if diff := cmp.Diff(want, drain(h)); diff != "" {
		t.Errorf("drained (-want +got):\n%s", diff)
	}
}
