// Package driver runs all game logic on a single goroutine.
//
// Transports and timers never touch game state themselves; they submit
// tasks that the driver runs one at a time, in submission order.
package driver

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/heap"
	"github.com/zond/mudcore/logging"
	"go.uber.org/zap"
)

var (
	ErrStopped = fmt.Errorf("driver stopped")
)

type Task func(ctx context.Context)

type callOut struct {
	id   uint64
	at   time.Time
	task Task
}

type Driver struct {
	log   *zap.SugaredLogger
	tasks chan Task
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once

	mutex    sync.Mutex
	nextID   uint64
	callOuts *heap.Heap[*callOut]
}

// New returns a driver buffering up to backlog submitted tasks.
func New(log *zap.SugaredLogger, backlog int) *Driver {
	return &Driver{
		log:   logging.OrNop(log),
		tasks: make(chan Task, backlog),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		callOuts: heap.New(func(a, b *callOut) bool {
			if a.at.Equal(b.at) {
				return a.id < b.id
			}
			return a.at.Before(b.at)
		}),
	}
}

// Submit queues t, blocking while the backlog is full. Tasks running on the
// driver must use After instead, since they would wait for themselves.
func (d *Driver) Submit(t Task) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.tasks <- t:
		return true
	case <-d.done:
		return false
	}
}

// Do runs t on the driver and waits for it to finish.
func (d *Driver) Do(ctx context.Context, t Task) error {
	finished := make(chan struct{})
	if !d.Submit(func(ctx context.Context) {
		defer close(finished)
		t(ctx)
	}) {
		return mudcore.WithStack(ErrStopped)
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return mudcore.WithStack(ctx.Err())
	case <-d.done:
		return mudcore.WithStack(ErrStopped)
	}
}

// After schedules t to run once dur has passed, and returns an id for
// Cancel. Call-outs due at the same time run in scheduling order.
func (d *Driver) After(dur time.Duration, t Task) uint64 {
	d.mutex.Lock()
	d.nextID++
	id := d.nextID
	d.callOuts.Push(&callOut{id: id, at: time.Now().Add(dur), task: t})
	d.mutex.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return id
}

func (d *Driver) Cancel(id uint64) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, found := d.callOuts.RemoveFunc(func(c *callOut) bool {
		return c.id == id
	})
	return found
}

func (d *Driver) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.callOuts.Size()
}

func (d *Driver) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("driver task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	t(ctx)
}

func (d *Driver) due() []*callOut {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	now := time.Now()
	result := []*callOut{}
	for next, found := d.callOuts.Peek(); found && !next.at.After(now); next, found = d.callOuts.Peek() {
		d.callOuts.Pop()
		result = append(result, next)
	}
	return result
}

func (d *Driver) nextTimer() *time.Timer {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	next, found := d.callOuts.Peek()
	if !found {
		return nil
	}
	return time.NewTimer(time.Until(next.at))
}

// Start runs tasks until ctx is done. Queued tasks that have not started
// are dropped.
func (d *Driver) Start(ctx context.Context) error {
	defer d.once.Do(func() { close(d.done) })
	for {
		for _, c := range d.due() {
			d.run(ctx, c.task)
		}
		var fire <-chan time.Time
		timer := d.nextTimer()
		if timer != nil {
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case t := <-d.tasks:
			d.run(ctx, t)
		case <-d.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Done is closed when Start has returned.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}
