package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"chama-backend/internal/config"
	"chama-backend/internal/domain"
	"chama-backend/internal/metrics"
	"chama-backend/internal/payment"
	"chama-backend/internal/repository/memory"
	"chama-backend/internal/service"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (d *recordingDispatcher) Emit(_ context.Context, note *domain.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = append(d.notes, *note)
	return nil
}

func (d *recordingDispatcher) kinds() []domain.NotificationKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.NotificationKind, 0, len(d.notes))
	for _, n := range d.notes {
		out = append(out, n.Kind)
	}
	return out
}

type jobFixture struct {
	ctx        context.Context
	store      *memory.Store
	dispatcher *recordingDispatcher
	runner     *JobRunner

	loans         service.LoanService
	contributions service.ContributionService

	admin, member *domain.User
	group         *domain.Group
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	repos := store.Repos()
	rec := &recordingDispatcher{}

	cfg := &config.Config{
		Loans:         config.LoansConfig{ReminderDaysAhead: 3, OverdueGraceDays: 1, DefaultDurationWeeks: 4},
		Contributions: config.ContributionsConfig{PendingExpiryHours: 24},
	}

	f := &jobFixture{
		ctx:           ctx,
		store:         store,
		dispatcher:    rec,
		runner:        NewJobRunner(store, rec, cfg, nil),
		loans:         service.NewLoanService(store, rec, 4),
		contributions: service.NewContributionService(store, payment.NewMockGateway(), rec),
	}

	users := service.NewUserService(repos.Users)
	groups := service.NewGroupService(store)
	var err error
	f.admin, err = users.Register(ctx, "Admin", "admin@chama.test", "0711000001", "correct-horse")
	require.NoError(t, err)
	f.member, err = users.Register(ctx, "Member", "member@chama.test", "0711000002", "correct-horse")
	require.NoError(t, err)
	f.group, err = groups.CreateGroup(ctx, f.admin.ID, "Harambee", "", decimal.Zero)
	require.NoError(t, err)
	_, err = groups.AddMember(ctx, f.admin.ID, f.group.ID, f.member.ID, domain.MemberRoleMember)
	require.NoError(t, err)
	_, err = f.contributions.RecordCashContribution(ctx, f.admin.ID, f.group.ID, f.member.ID, decimal.NewFromInt(1000), "")
	require.NoError(t, err)
	return f
}

func (f *jobFixture) activeLoan(t *testing.T) *domain.Loan {
	t.Helper()
	loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, decimal.NewFromInt(400), "stock", 4)
	require.NoError(t, err)
	loan, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
	require.NoError(t, err)
	return loan
}

func (f *jobFixture) at(offset time.Duration) {
	now := time.Now().Add(offset)
	f.runner.now = func() time.Time { return now }
}

func TestMarkOverdueLoans(t *testing.T) {
	t.Run("within grace nothing changes", func(t *testing.T) {
		f := newJobFixture(t)
		loan := f.activeLoan(t)
		f.at(days(7) + time.Hour)

		f.runner.MarkOverdueLoans()

		got, err := f.store.Repos().Loans.GetByID(f.ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusApproved, got.Status)
	})

	t.Run("past grace defaults the loan", func(t *testing.T) {
		f := newJobFixture(t)
		loan := f.activeLoan(t)
		f.at(days(15) + time.Hour)

		f.runner.MarkOverdueLoans()

		got, err := f.store.Repos().Loans.GetByID(f.ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusDefaulted, got.Status)

		schedule, err := f.store.Repos().Loans.ListRepayments(f.ctx, loan.ID)
		require.NoError(t, err)
		require.Len(t, schedule, 4)
		assert.Equal(t, domain.RepaymentStatusLate, schedule[0].Status)
		assert.Equal(t, domain.RepaymentStatusLate, schedule[1].Status)
		assert.Equal(t, domain.RepaymentStatusPending, schedule[2].Status)
		assert.Contains(t, f.dispatcher.kinds(), domain.NotificationKindLoanDefaulted)

		_, err = f.loans.Repay(f.ctx, loan.ID, f.member.ID, decimal.NewFromInt(110))
		assert.ErrorIs(t, err, domain.ErrNotActive)
	})

	t.Run("paid installments are never overdue", func(t *testing.T) {
		f := newJobFixture(t)
		loan := f.activeLoan(t)
		_, err := f.loans.Repay(f.ctx, loan.ID, f.member.ID, decimal.NewFromInt(110))
		require.NoError(t, err)
		f.at(days(9))

		f.runner.MarkOverdueLoans()

		got, err := f.store.Repos().Loans.GetByID(f.ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusActive, got.Status)
	})
}

func TestSendLoanReminders(t *testing.T) {
	f := newJobFixture(t)
	f.activeLoan(t)

	f.at(0)
	f.runner.SendLoanReminders()
	assert.NotContains(t, f.dispatcher.kinds(), domain.NotificationKindLoanDueReminder)

	f.at(days(5))
	f.runner.SendLoanReminders()
	assert.Contains(t, f.dispatcher.kinds(), domain.NotificationKindLoanDueReminder)
}

func TestExpireStaleContributions(t *testing.T) {
	f := newJobFixture(t)
	entry, err := f.contributions.Contribute(f.ctx, f.member.ID, f.group.ID, decimal.NewFromInt(250), "", "")
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatusPending, entry.Status)

	f.at(time.Hour)
	f.runner.ExpireStaleContributions()
	got, err := f.store.Repos().Transactions.GetByID(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)

	f.at(25 * time.Hour)
	f.runner.ExpireStaleContributions()
	got, err = f.store.Repos().Transactions.GetByID(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, got.Status)
	assert.Equal(t, expiredReason, got.FailureReason)

	// A late callback cannot resurrect it.
	_, err = f.contributions.HandleCallback(f.ctx, domain.PaymentCallback{ProviderRequestID: entry.ExternalRef})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestReconcileGroupBalances(t *testing.T) {
	f := newJobFixture(t)
	f.activeLoan(t)
	gauge := metrics.GroupBalanceDrift.WithLabelValues(metrics.GroupLabel(f.group.ID))

	f.runner.ReconcileGroupBalances()
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))

	require.NoError(t, f.store.Repos().Groups.AdjustCurrentAmount(f.ctx, f.group.ID, decimal.NewFromInt(50)))
	f.runner.ReconcileGroupBalances()
	assert.Equal(t, 50.0, testutil.ToFloat64(gauge))

	g, err := f.store.Repos().Groups.GetByID(f.ctx, f.group.ID)
	require.NoError(t, err)
	assert.True(t, g.CurrentAmount.Equal(decimal.NewFromInt(650)), "reconcile must not rewrite current_amount")
}

func TestRunWithRecovery(t *testing.T) {
	f := newJobFixture(t)
	panics := metrics.JobRuns.WithLabelValues("Exploding", outcomePanic)
	before := testutil.ToFloat64(panics)

	assert.NotPanics(t, func() {
		f.runner.runWithRecovery("Exploding", func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, before+1, testutil.ToFloat64(panics))
}

func TestJobs_Registry(t *testing.T) {
	f := newJobFixture(t)
	jobs := f.runner.Jobs()
	for _, name := range []string{"MarkOverdueLoans", "SendLoanReminders", "ExpireStaleContributions", "ReconcileGroupBalances"} {
		assert.Contains(t, jobs, name)
	}
}
