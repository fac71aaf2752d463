package session

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// TaskSet runs fire-and-forget background work that can later be drained.
type TaskSet struct {
	group   errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	pending atomic.Int64
}

// NewTaskSet returns a TaskSet whose tasks observe a context derived from
// parent.
func NewTaskSet(parent context.Context) *TaskSet {
	ctx, cancel := context.WithCancel(parent)
	return &TaskSet{ctx: ctx, cancel: cancel}
}

// Go starts fn in the background. Errors are logged and otherwise ignored;
// they never cancel sibling tasks.
func (t *TaskSet) Go(name string, fn func(ctx context.Context) error) {
	t.pending.Add(1)
	t.group.Go(func() error {
		defer t.pending.Add(-1)
		NonFatal(t.ctx, name, fn)
		return nil
	})
}

// Pending reports how many tasks are still running.
func (t *TaskSet) Pending() int { return int(t.pending.Load()) }

// Wait blocks until every task has returned or ctx is done.
func (t *TaskSet) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = t.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the context seen by running and future tasks.
func (t *TaskSet) Cancel() { t.cancel() }
