package jobs

import (
	"context"
	"fmt"
	"time"

	"chama-backend/internal/config"
	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"
	"chama-backend/internal/repository"
	"chama-backend/internal/service"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomePanic   = "panic"
	outcomeSkipped = "skipped"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	store      repository.Store
	dispatcher service.NotificationDispatcher
	config     *config.Config
	locker     Locker
	now        func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies. A nil locker
// runs every job unguarded.
func NewJobRunner(store repository.Store, dispatcher service.NotificationDispatcher, cfg *config.Config, locker Locker) *JobRunner {
	if locker == nil {
		locker = NewNoopLocker()
	}
	return &JobRunner{
		store:      store,
		dispatcher: dispatcher,
		config:     cfg,
		locker:     locker,
		now:        time.Now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// Jobs maps job names to their entry points, for the scheduler and -run-once.
func (jr *JobRunner) Jobs() map[string]func() {
	return map[string]func(){
		"MarkOverdueLoans":         jr.MarkOverdueLoans,
		"SendLoanReminders":        jr.SendLoanReminders,
		"ExpireStaleContributions": jr.ExpireStaleContributions,
		"ReconcileGroupBalances":   jr.ReconcileGroupBalances,
	}
}

// RunAll runs every job once, in a fixed order
func (jr *JobRunner) RunAll() {
	jr.ExpireStaleContributions()
	jr.MarkOverdueLoans()
	jr.SendLoanReminders()
	jr.ReconcileGroupBalances()
}

// runWithRecovery wraps job execution with the replica lock and panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	ctx := context.Background()
	outcome := outcomeSuccess
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			outcome = outcomePanic
		}
		metrics.JobRuns.WithLabelValues(jobName, outcome).Inc()
	}()

	release, acquired, err := jr.locker.TryLock(ctx, jobName)
	if err != nil {
		logger.Error("Job lock failed", "job", jobName, "error", err)
		outcome = outcomeFailure
		return
	}
	if !acquired {
		logger.Info("Job skipped, running on another replica", "job", jobName)
		outcome = outcomeSkipped
		return
	}
	defer release()

	logger.Info("Starting job", "job", jobName)
	start := jr.now()
	if err := jobFunc(ctx); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err)
		outcome = outcomeFailure
		return
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func wrapf(err error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
