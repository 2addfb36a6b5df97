package scheduler

import (
	"testing"

	"chama-backend/internal/config"
	"chama-backend/internal/jobs"
	"chama-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runnerWith(sc config.SchedulerConfig) *jobs.JobRunner {
	return jobs.NewJobRunner(memory.NewStore(), nil, &config.Config{Scheduler: sc}, nil)
}

func TestNewScheduler(t *testing.T) {
	t.Run("registers every job", func(t *testing.T) {
		s, err := NewScheduler(runnerWith(config.SchedulerConfig{
			MarkOverdueLoans:         "0 0 1 * * *",
			SendLoanReminders:        "0 0 9 * * *",
			ExpireStaleContributions: "0 */30 * * * *",
			ReconcileGroupBalances:   "0 30 2 * * *",
		}))
		require.NoError(t, err)
		assert.Equal(t, 4, s.Entries())
	})

	t.Run("rejects five-field specs", func(t *testing.T) {
		_, err := NewScheduler(runnerWith(config.SchedulerConfig{
			MarkOverdueLoans:         "0 1 * * *",
			SendLoanReminders:        "0 0 9 * * *",
			ExpireStaleContributions: "0 */30 * * * *",
			ReconcileGroupBalances:   "0 30 2 * * *",
		}))
		assert.Error(t, err)
	})
}
