// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Reconciler removes document rows whose stored object is gone.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// jobTimeout bounds a single run.
const jobTimeout = 10 * time.Minute

type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler returns a stopped scheduler. Jobs run with ctx, so cancelling
// it aborts in-flight runs.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		ctx:  ctx,
	}
}

// AddDocumentReconcile schedules r on spec (standard cron or @every/@daily).
// An empty spec disables the job.
func (s *Scheduler) AddDocumentReconcile(spec string, r Reconciler) error {
	if spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() { RunReconcile(s.ctx, r) })
	if err != nil {
		return fmt.Errorf("schedule document reconcile %q: %w", spec, err)
	}
	log.Printf("jobs: document reconcile scheduled %q", spec)
	return nil
}

// RunReconcile runs one reconciliation pass and logs the outcome.
func RunReconcile(ctx context.Context, r Reconciler) int {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	n, err := r.Reconcile(ctx)
	if err != nil {
		log.Printf("jobs: document reconcile: %v", err)
		return n
	}
	if n > 0 {
		log.Printf("jobs: removed %d orphaned document rows", n)
	}
	return n
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for running jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Println("jobs: stop timed out with jobs still running")
	}
}

// Entries reports how many jobs are scheduled.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }
