package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func withDriver(t *testing.T, f func(d *Driver, logs *observer.ObservedLogs)) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	d := New(zap.New(core).Sugar(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := d.Start(ctx); err != nil {
			t.Error(err)
		}
	}()
	defer func() {
		cancel()
		<-stopped
	}()
	f(d, logs)
}

type recorder struct {
	mutex sync.Mutex
	order []string
}

func (r *recorder) task(name string) Task {
	return func(context.Context) {
		r.mutex.Lock()
		defer r.mutex.Unlock()
		r.order = append(r.order, name)
	}
}

func (r *recorder) got() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string{}, r.order...)
}

func TestSubmitOrder(t *testing.T) {
	withDriver(t, func(d *Driver, _ *observer.ObservedLogs) {
		r := &recorder{}
		for _, name := range []string{"a", "b", "c"} {
			if !d.Submit(r.task(name)) {
				t.Fatal("submit failed")
			}
		}
		if err := d.Do(context.Background(), r.task("d")); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"a", "b", "c", "d"}, r.got()); diff != "" {
			t.Errorf("order (-want +got):\n%s", diff)
		}
	})
}

func TestAfter(t *testing.T) {
	withDriver(t, func(d *Driver, _ *observer.ObservedLogs) {
		r := &recorder{}
		finished := make(chan struct{})
		cancelled := d.After(150*time.Millisecond, r.task("150"))
		d.After(300*time.Millisecond, func(ctx context.Context) {
			r.task("300")(ctx)
			close(finished)
		})
		d.After(100*time.Millisecond, r.task("100"))
		d.After(200*time.Millisecond, r.task("200"))
		if !d.Cancel(cancelled) {
			t.Errorf("cancel failed")
		}
		if d.Cancel(cancelled) {
			t.Errorf("cancelled twice")
		}
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("call-outs never ran")
		}
		if diff := cmp.Diff([]string{"100", "200", "300"}, r.got()); diff != "" {
			t.Errorf("order (-want +got):\n%s", diff)
		}
		if n := d.Pending(); n != 0 {
			t.Errorf("got %v pending, want 0", n)
		}
	})
}

func TestAfterFromTask(t *testing.T) {
	withDriver(t, func(d *Driver, _ *observer.ObservedLogs) {
		finished := make(chan struct{})
		d.Submit(func(context.Context) {
			d.After(0, func(context.Context) {
				close(finished)
			})
		})
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("nested call-out never ran")
		}
	})
}

func TestPanicRecovery(t *testing.T) {
	withDriver(t, func(d *Driver, logs *observer.ObservedLogs) {
		d.Submit(func(context.Context) {
			panic("boom")
		})
		ran := false
		if err := d.Do(context.Background(), func(context.Context) {
			ran = true
		}); err != nil {
			t.Fatal(err)
		}
		if !ran {
			t.Errorf("task after panic never ran")
		}
		if n := logs.FilterMessage("driver task panicked").Len(); n != 1 {
			t.Errorf("got %v panic logs, want 1", n)
		}
	})
}

func TestStopped(t *testing.T) {
	d := New(nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-d.Done()
	if d.Submit(func(context.Context) {}) {
		t.Errorf("submit to stopped driver succeeded")
	}
	if err := d.Do(context.Background(), func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Errorf("got %v, want ErrStopped", err)
	}
}
