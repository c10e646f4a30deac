// Package loop provides the single logical thread the page behaviors run on.
//
// Every UI event handler and every continuation of asynchronous work executes
// as a task on one goroutine, one at a time. Spawned work runs elsewhere and
// only touches page state through the continuation it hands back.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"alertdesk/internal/logging"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("event loop closed")

// Loop executes tasks serially on a dedicated goroutine.
type Loop struct {
	tasks chan func()

	ctx    context.Context // cancelled by Close; parent of spawned work
	cancel context.CancelFunc

	mu      sync.Mutex
	pending int           // queued tasks + outstanding spawned work
	idle    chan struct{} // closed when pending drops to zero
	closed  bool

	done    chan struct{}
	stopped chan struct{}
	workers sync.WaitGroup
}

// New starts a loop whose queue holds up to buffer tasks before Post blocks.
func New(buffer int) *Loop {
	if buffer < 1 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		tasks:   make(chan func(), buffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
			l.finish()
		case <-l.done:
			return
		}
	}
}

// exec runs one task. A panicking handler is logged and the loop keeps going,
// so one broken behavior never takes the rest of the page down.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryLoop).Error("task panicked: %v", r)
		}
	}()
	fn()
}

// begin accounts for one queued task, or for one spawned worker when worker
// is set. Both counts change under mu so Close never waits on a WaitGroup
// that is still being added to.
func (l *Loop) begin(worker bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.pending == 0 {
		l.idle = make(chan struct{})
	}
	l.pending++
	if worker {
		l.workers.Add(1)
	}
	return nil
}

func (l *Loop) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
	if l.pending == 0 && l.idle != nil {
		close(l.idle)
		l.idle = nil
	}
}

// Post queues fn to run on the loop.
func (l *Loop) Post(fn func()) error {
	if err := l.begin(false); err != nil {
		return err
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		l.finish()
		return ErrClosed
	}
}

// Do runs fn on the loop and waits for it to return.
// It must not be called from inside a loop task.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if err := l.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for loop task: %w", ctx.Err())
	case <-l.done:
		return ErrClosed
	}
}

// Spawn runs work off the loop. The continuation work returns, if any, is
// posted back and runs on the loop. work's context is cancelled when ctx is
// cancelled or the loop closes.
func (l *Loop) Spawn(ctx context.Context, work func(context.Context) func()) error {
	if err := l.begin(true); err != nil {
		return err
	}
	go func() {
		defer l.workers.Done()
		defer l.finish()

		wctx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(l.ctx, cancel)
		defer stop()
		defer cancel()

		if cont := work(wctx); cont != nil {
			if err := l.Post(cont); err != nil {
				logging.LoopDebug("continuation dropped: %v", err)
			}
		}
	}()
	return nil
}

// Quiesce waits until no task is queued and no spawned work is outstanding.
func (l *Loop) Quiesce(ctx context.Context) error {
	l.mu.Lock()
	if l.pending == 0 {
		l.mu.Unlock()
		return nil
	}
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for loop to go idle: %w", ctx.Err())
	case <-l.done:
		return ErrClosed
	}
}

// Close stops the loop, cancels spawned work and waits for it to exit.
// Queued tasks that have not started are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.cancel()
	<-l.stopped
	l.workers.Wait()
}
