// Package poller runs a bounded, cancellable polling loop with an explicit
// attempt counter and deadline.
package poller

import (
	"context"
	"sync"
	"time"
)

// Reason says why a task stopped
type Reason string

const (
	ReasonDone      Reason = "done"
	ReasonExhausted Reason = "exhausted"
	ReasonTimeout   Reason = "timeout"
	ReasonStopped   Reason = "stopped"
)

// Options configures a polling task. Zero MaxAttempts and zero Timeout mean unbounded.
type Options struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

// Step is called once per attempt, attempts start at 1. Returning done=true ends
// the task; an error is remembered and the next attempt runs on schedule.
type Step func(ctx context.Context, attempt int) (done bool, err error)

// Result describes how a finished task ended
type Result struct {
	Attempts int
	Reason   Reason
	LastErr  error
}

// Task is a running polling loop
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result Result
}

// Start launches the loop in its own goroutine
func Start(ctx context.Context, opts Options, step Step) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go t.run(ctx, opts, step)
	return t
}

// Stop cancels the task and waits for the loop to exit
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Done is closed once the loop has exited
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the loop exits and returns its result
func (t *Task) Wait() Result {
	<-t.done
	return t.Result()
}

// Result returns the current result; final once Done is closed
func (t *Task) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *Task) finish(reason Reason) {
	t.mu.Lock()
	t.result.Reason = reason
	t.mu.Unlock()
}

func (t *Task) run(ctx context.Context, opts Options, step Step) {
	defer close(t.done)
	defer t.cancel()

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	wait := opts.InitialDelay
	for attempt := 1; ; attempt++ {
		if reason, ok := sleep(ctx, wait, deadline); !ok {
			t.finish(reason)
			return
		}
		wait = opts.Interval

		done, err := step(ctx, attempt)

		t.mu.Lock()
		t.result.Attempts = attempt
		t.result.LastErr = err
		t.mu.Unlock()

		if done {
			t.finish(ReasonDone)
			return
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			t.finish(ReasonExhausted)
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration, deadline <-chan time.Time) (Reason, bool) {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ReasonStopped, false
		case <-deadline:
			return ReasonTimeout, false
		default:
			return "", true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ReasonStopped, false
	case <-deadline:
		return ReasonTimeout, false
	case <-timer.C:
		return "", true
	}
}
