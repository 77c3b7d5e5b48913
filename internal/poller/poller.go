package poller

import (
	"context"
	"log"
	"sync"
	"time"
)

// Loop runs a task on a fixed interval until stopped. A Loop can be started
// again after Stop; every Start replaces the previous run.
type Loop struct {
	name         string
	initialDelay time.Duration
	task         func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a loop that runs task first after initialDelay and then on
// every interval passed to Start.
func New(name string, initialDelay time.Duration, task func(ctx context.Context)) *Loop {
	return &Loop{
		name:         name,
		initialDelay: initialDelay,
		task:         task,
	}
}

// Start launches the loop with the given interval, stopping any earlier run.
func (l *Loop) Start(parent context.Context, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go l.run(ctx, interval, done)
}

// Stop cancels the current run. It does not wait for an in-flight task, so
// it is safe to call from inside the task.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Running reports whether a run is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Done returns a channel closed when the most recent run has exited.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.done
}

func (l *Loop) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	log.Printf("Starting %s loop (every %s)", l.name, interval)

	timer := time.NewTimer(l.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s loop shutting down.", l.name)
			return
		case <-timer.C:
			l.task(ctx)
			timer.Reset(interval)
		}
	}
}
