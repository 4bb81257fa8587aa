package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/sirupsen/logrus"
)

// TargetProber is anything that can check one target. Outcomes are the
// prober's business; the scheduler only needs it to return.
type TargetProber interface {
	Probe(ctx context.Context, target types.Target, query string) types.Outcome
}

// Scheduler fans probes out over a fixed number of workers.
type Scheduler struct {
	workers int
	logger  logrus.FieldLogger
}

func NewScheduler(workers int, logger logrus.FieldLogger) (*Scheduler, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	return &Scheduler{workers: workers, logger: logger}, nil
}

// RunAll dispatches every target, in order, to the worker pool and blocks
// until all of them have been probed.
func (s *Scheduler) RunAll(ctx context.Context, prober TargetProber, targets []types.Target, query string) {
	workers := s.workers
	if len(targets) < workers {
		workers = len(targets)
	}

	jobs := make(chan types.Target)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.worker(ctx, prober, jobs, query, &wg)
	}

	for _, target := range targets {
		jobs <- target
	}
	close(jobs)
	wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, prober TargetProber, jobs <-chan types.Target, query string, wg *sync.WaitGroup) {
	defer wg.Done()
	for target := range jobs {
		s.probe(ctx, prober, target, query)
	}
}

func (s *Scheduler) probe(ctx context.Context, prober TargetProber, target types.Target, query string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("db", string(target)).Errorf("Worker recovered from panic: %v", r)
		}
	}()
	prober.Probe(ctx, target, query)
}
