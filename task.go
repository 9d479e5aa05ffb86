package bttherm

import (
	"context"
	"runtime/pprof"
)

// task denotes the handle of a running goroutine owned by the controller
type task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// startTask runs fn in a new goroutine labelled with name (visible in pprof goroutine
// profiles) and returns its handle
func startTask(parent context.Context, name string, fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(parent)
	t := &task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go pprof.Do(ctx, pprof.Labels("task", name), func(ctx context.Context) {
		defer close(t.done)
		fn(ctx)
	})

	return t
}

// stop cancels the task and waits for it to return. Stopping a nil task is a no-op.
func (t *task) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}
