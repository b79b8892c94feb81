package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs a batch of independent tasks, returning the first
// error encountered (if any) once every task has finished. The
// scheduler (scheduler.go) uses it to fan a parallel system's sliced
// invocations out across goroutines.
type WorkerPool interface {
	Run(ctx context.Context, tasks []func() error) error
}

// DefaultWorkerPool runs tasks on an x/sync/errgroup-managed goroutine
// group, capped at Limit concurrent goroutines (0 means unbounded).
type DefaultWorkerPool struct {
	Limit int
}

// NewDefaultWorkerPool returns a WorkerPool bounded to limit concurrent
// goroutines; limit <= 0 means unbounded.
func NewDefaultWorkerPool(limit int) *DefaultWorkerPool {
	return &DefaultWorkerPool{Limit: limit}
}

func (p *DefaultWorkerPool) Run(ctx context.Context, tasks []func() error) error {
	g, _ := errgroup.WithContext(ctx)
	if p.Limit > 0 {
		g.SetLimit(p.Limit)
	}
	for _, task := range tasks {
		task := task
		g.Go(task)
	}
	return g.Wait()
}
