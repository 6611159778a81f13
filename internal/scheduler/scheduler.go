// Package scheduler runs jobs on cron schedules. It translates each
// trigger into parameter bags, keeping jobs scheduler-agnostic.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is anything executable from a parameter bag.
type Job interface {
	Execute(ctx context.Context, params map[string]string) error
}

// Source yields one parameter bag per pending execution at trigger time.
// The sweep source, for example, yields one bag per known product.
type Source func(ctx context.Context) ([]map[string]string, error)

// Scheduler wraps a cron runner. Entries fire on their own goroutines;
// a long run delays only its own entry's next firing.
type Scheduler struct {
	cron *cron.Cron
}

// New creates a stopped scheduler. Call Start after registering entries.
func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Schedule registers job to run per src's bags on the given cron spec
// (standard five-field syntax, plus descriptors like @hourly).
func (s *Scheduler) Schedule(spec, name string, job Job, src Source) error {
	_, err := s.cron.AddFunc(spec, func() {
		runSweep(context.Background(), name, job, src)
	})
	return err
}

// runSweep executes job once per bag. One bag's failure never stops the
// remaining bags.
func runSweep(ctx context.Context, name string, job Job, src Source) {
	bags, err := src(ctx)
	if err != nil {
		slog.Error("sweep source failed", "job", name, "error", err)
		return
	}

	var failed int
	for _, params := range bags {
		if err := job.Execute(ctx, params); err != nil {
			failed++
			slog.Error("scheduled job failed", "job", name, "params", params, "error", err)
		}
	}
	slog.Info("sweep finished", "job", name, "runs", len(bags), "failed", failed)
}

// Start begins firing entries.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing and waits for in-flight entries to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
