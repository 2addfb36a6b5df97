package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"chama-backend/internal/jobs"
	"chama-backend/internal/logger"
)

// Scheduler fires the chama maintenance jobs on their configured cron specs.
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler fails when any configured cron spec does not parse. Specs are
// six-field (seconds first) and evaluated in UTC.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		jobs: jobRunner,
	}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler
	entries := []struct {
		name string
		spec string
		run  func()
	}{
		{"MarkOverdueLoans", cfg.MarkOverdueLoans, s.jobs.MarkOverdueLoans},
		{"SendLoanReminders", cfg.SendLoanReminders, s.jobs.SendLoanReminders},
		{"ExpireStaleContributions", cfg.ExpireStaleContributions, s.jobs.ExpireStaleContributions},
		{"ReconcileGroupBalances", cfg.ReconcileGroupBalances, s.jobs.ReconcileGroupBalances},
	}

	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.spec, e.run); err != nil {
			logger.Error("Failed to register job", "job", e.name, "spec", e.spec, "error", err)
			return fmt.Errorf("register %s: %w", e.name, err)
		}
		logger.Debug("Registered job", "job", e.name, "spec", e.spec)
	}

	logger.Info("Chama jobs registered", "count", len(entries))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop blocks until every running job has returned.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
