package service_test

import (
	"testing"
	"time"

	"chama-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loanFixture gives the member 500 in savings and the group 2000 in funds.
func loanFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.deposit(t, f.member.ID, "500")
	f.deposit(t, f.admin.ID, "1500")
	return f
}

func TestLoanService_CheckEligibility(t *testing.T) {
	f := loanFixture(t)

	t.Run("multiplier times net savings", func(t *testing.T) {
		elig, err := f.loans.CheckEligibility(f.ctx, f.member.ID, f.group.ID)
		require.NoError(t, err)
		assert.True(t, elig.NetSavings.Equal(dec("500")))
		assert.True(t, elig.Multiplier.Equal(dec("3")))
		assert.True(t, elig.EligibleAmount.Equal(dec("1500")), elig.EligibleAmount.String())
		assert.True(t, elig.InterestRate.Equal(dec("10")))
		assert.Equal(t, int32(4), elig.MinRepaymentWeeks)
		assert.Equal(t, int32(12), elig.MaxRepaymentWeeks)
	})

	t.Run("group not found", func(t *testing.T) {
		_, err := f.loans.CheckEligibility(f.ctx, f.member.ID, 999)
		assert.ErrorIs(t, err, domain.ErrGroupNotFound)
	})

	t.Run("not a member", func(t *testing.T) {
		_, err := f.loans.CheckEligibility(f.ctx, f.outsider.ID, f.group.ID)
		assert.ErrorIs(t, err, domain.ErrNotAMember)
	})
}

func TestLoanService_RequestLoan(t *testing.T) {
	f := loanFixture(t)

	t.Run("Success snapshots the interest rate", func(t *testing.T) {
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("1000"), "boda boda", 4)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusPending, loan.Status)
		assert.True(t, loan.InterestRate.Equal(dec("10")))
		assert.Contains(t, kinds(f.notificationsFor(t, f.admin.ID)), domain.NotificationKindLoanRequest)

		settings, err := f.loans.GetSettings(f.ctx, f.admin.ID, f.group.ID)
		require.NoError(t, err)
		settings.BaseInterestRate = dec("25")
		_, err = f.loans.UpdateSettings(f.ctx, f.admin.ID, *settings)
		require.NoError(t, err)

		approved, err := f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		require.NoError(t, err)
		assert.True(t, approved.InterestRate.Equal(dec("10")))
		assert.True(t, approved.TotalPayable().Equal(dec("1100")))
	})

	t.Run("Default duration", func(t *testing.T) {
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("100"), "", 0)
		require.NoError(t, err)
		assert.Equal(t, int32(8), loan.DurationWeeks)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("-1"), "", 4)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)

		_, err = f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("100"), "", 52)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("1500.01"), "", 4)
		assert.ErrorIs(t, err, domain.ErrExceedsEligibility)

		_, err = f.loans.RequestLoan(f.ctx, f.outsider.ID, f.group.ID, dec("10"), "", 4)
		assert.ErrorIs(t, err, domain.ErrNotAMember)
	})
}

func TestLoanService_ApproveLoan(t *testing.T) {
	t.Run("Generates schedule and disburses", func(t *testing.T) {
		f := loanFixture(t)
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("1000"), "", 4)
		require.NoError(t, err)

		approved, err := f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusApproved, approved.Status)
		assert.Equal(t, f.admin.ID, *approved.ApprovedBy)
		require.NotNil(t, approved.ApprovedAt)
		assert.Equal(t, approved.ApprovedAt.AddDate(0, 0, 28), *approved.DueDate)

		got, err := f.loans.GetLoan(f.ctx, f.member.ID, loan.ID)
		require.NoError(t, err)
		require.Len(t, got.Repayments, 4)
		for k, r := range got.Repayments {
			assert.True(t, r.Amount.Equal(dec("275")), r.Amount.String())
			assert.Equal(t, domain.RepaymentStatusPending, r.Status)
			assert.True(t, r.DueDate.Equal(approved.ApprovedAt.AddDate(0, 0, 7*(k+1))))
		}

		assert.True(t, f.currentAmount(t).Equal(dec("1000")))
		f.requireFundsMatchJournal(t)
		assert.Contains(t, kinds(f.notificationsFor(t, f.member.ID)), domain.NotificationKindLoanApproved)
	})

	t.Run("Second decision fails", func(t *testing.T) {
		f := loanFixture(t)
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("100"), "", 4)
		require.NoError(t, err)
		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		require.NoError(t, err)

		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
		_, err = f.loans.RejectLoan(f.ctx, loan.ID, f.admin.ID, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

		got, err := f.loans.GetLoan(f.ctx, f.admin.ID, loan.ID)
		require.NoError(t, err)
		assert.Len(t, got.Repayments, 4)
	})

	t.Run("Non-admin", func(t *testing.T) {
		f := loanFixture(t)
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("100"), "", 4)
		require.NoError(t, err)
		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.member.ID)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("Insufficient group funds rolls back the schedule", func(t *testing.T) {
		f := newFixture(t)
		f.deposit(t, f.member.ID, "500")
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("1200"), "", 4)
		require.NoError(t, err)

		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		assert.ErrorIs(t, err, domain.ErrExceedsGroupFunds)

		got, err := f.loans.GetLoan(f.ctx, f.member.ID, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusPending, got.Status)
		assert.Empty(t, got.Repayments)
		assert.True(t, f.currentAmount(t).Equal(dec("500")))
	})
}

func TestLoanService_RejectLoan(t *testing.T) {
	f := loanFixture(t)
	loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("100"), "", 4)
	require.NoError(t, err)

	rejected, err := f.loans.RejectLoan(f.ctx, loan.ID, f.admin.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusRejected, rejected.Status)
	assert.Equal(t, "No reason provided", rejected.RejectionReason)
	assert.Equal(t, f.admin.ID, *rejected.ApprovedBy)
	assert.NotNil(t, rejected.ApprovedAt)

	notes := f.notificationsFor(t, f.member.ID)
	require.NotEmpty(t, notes)
	assert.Equal(t, domain.NotificationKindLoanRejected, notes[0].Kind)
	assert.Contains(t, notes[0].Message, "No reason provided")
}

func TestLoanService_Repay(t *testing.T) {
	t.Run("Pays off installment by installment", func(t *testing.T) {
		f := loanFixture(t)
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("1000"), "", 4)
		require.NoError(t, err)
		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		require.NoError(t, err)
		fundsAfterDisbursement := f.currentAmount(t)

		res, err := f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec("275"))
		require.NoError(t, err)
		assert.Equal(t, domain.RepaymentStatusPaid, res.Installment.Status)
		assert.True(t, res.Installment.AmountPaid.Equal(dec("275")))
		assert.Equal(t, domain.LoanStatusActive, res.Loan.Status)
		assert.True(t, res.Outstanding.Equal(dec("825")))

		for i := 0; i < 3; i++ {
			res, err = f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec("275"))
			require.NoError(t, err)
		}
		assert.Equal(t, domain.LoanStatusPaid, res.Loan.Status)
		assert.True(t, res.Outstanding.IsZero())

		outstanding, err := f.loans.OutstandingBalance(f.ctx, f.member.ID, loan.ID)
		require.NoError(t, err)
		assert.True(t, outstanding.IsZero())

		_, err = f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec("1"))
		assert.ErrorIs(t, err, domain.ErrNotActive)

		assert.True(t, f.currentAmount(t).Equal(fundsAfterDisbursement))
		f.requireFundsMatchJournal(t)
		assert.Contains(t, kinds(f.notificationsFor(t, f.admin.ID)), domain.NotificationKindLoanRepayment)
	})

	t.Run("Sub-cent interest still settles", func(t *testing.T) {
		f := loanFixture(t)
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("100.01"), "", 4)
		require.NoError(t, err)
		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		require.NoError(t, err)

		var res *domain.RepaymentResult
		for _, amount := range []string{"27.50", "27.50", "27.50", "27.51"} {
			res, err = f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec(amount))
			require.NoError(t, err)
			assert.True(t, res.Installment.Amount.Equal(dec(amount)), res.Installment.Amount.String())
		}
		assert.Equal(t, domain.LoanStatusPaid, res.Loan.Status)
		assert.True(t, res.Outstanding.IsZero(), res.Outstanding.String())
		f.requireFundsMatchJournal(t)
	})

	t.Run("Partial payments reduce outstanding and top up", func(t *testing.T) {
		f := loanFixture(t)
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("1000"), "", 4)
		require.NoError(t, err)
		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		require.NoError(t, err)

		res, err := f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec("100"))
		require.NoError(t, err)
		assert.Equal(t, domain.RepaymentStatusPartial, res.Installment.Status)
		assert.True(t, res.Outstanding.Equal(dec("1000")))
		firstID := res.Installment.ID

		res, err = f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec("175"))
		require.NoError(t, err)
		assert.Equal(t, firstID, res.Installment.ID)
		assert.Equal(t, domain.RepaymentStatusPaid, res.Installment.Status)
		assert.True(t, res.Installment.AmountPaid.Equal(dec("275")))
	})

	t.Run("Guards", func(t *testing.T) {
		f := loanFixture(t)
		loan, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("100"), "", 4)
		require.NoError(t, err)

		_, err = f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec("10"))
		assert.ErrorIs(t, err, domain.ErrNotActive)

		_, err = f.loans.ApproveLoan(f.ctx, loan.ID, f.admin.ID)
		require.NoError(t, err)

		_, err = f.loans.Repay(f.ctx, loan.ID, f.admin.ID, dec("10"))
		assert.ErrorIs(t, err, domain.ErrNotOwner)
		_, err = f.loans.Repay(f.ctx, loan.ID, f.member.ID, dec("0"))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = f.loans.Repay(f.ctx, 404, f.member.ID, dec("10"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestLoanService_Queries(t *testing.T) {
	f := loanFixture(t)
	approved, err := f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("1000"), "", 4)
	require.NoError(t, err)
	_, err = f.loans.ApproveLoan(f.ctx, approved.ID, f.admin.ID)
	require.NoError(t, err)
	_, err = f.loans.Repay(f.ctx, approved.ID, f.member.ID, dec("275"))
	require.NoError(t, err)
	_, err = f.loans.RequestLoan(f.ctx, f.member.ID, f.group.ID, dec("50"), "", 4)
	require.NoError(t, err)

	t.Run("stats", func(t *testing.T) {
		stats, err := f.loans.GetLoanStats(f.ctx, f.member.ID, f.group.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(2), stats.Total)
		assert.Equal(t, int32(1), stats.ByStatus[domain.LoanStatusPending])
		assert.Equal(t, int32(1), stats.ByStatus[domain.LoanStatusActive])
		assert.True(t, stats.TotalDisbursed.Equal(dec("1000")))
		assert.True(t, stats.TotalOutstanding.Equal(dec("825")))
	})

	t.Run("lists", func(t *testing.T) {
		mine, err := f.loans.ListMyLoans(f.ctx, f.member.ID, "")
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		active, err := f.loans.ListMyLoans(f.ctx, f.member.ID, domain.LoanStatusActive)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, approved.ID, active[0].ID)

		group, err := f.loans.ListGroupLoans(f.ctx, f.admin.ID, f.group.ID, domain.LoanStatusPending)
		require.NoError(t, err)
		assert.Len(t, group, 1)

		_, err = f.loans.ListGroupLoans(f.ctx, f.outsider.ID, f.group.ID, "")
		assert.ErrorIs(t, err, domain.ErrNotAMember)
	})

	t.Run("details are private to borrower and admins", func(t *testing.T) {
		_, err := f.loans.GetLoan(f.ctx, f.outsider.ID, approved.ID)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})
}

func TestLoanService_Settings(t *testing.T) {
	f := newFixture(t)

	settings, err := f.loans.GetSettings(f.ctx, f.member.ID, f.group.ID)
	require.NoError(t, err)
	assert.True(t, settings.MaxLoanMultiplier.Equal(dec("3")))

	t.Run("admin only", func(t *testing.T) {
		_, err := f.loans.UpdateSettings(f.ctx, f.member.ID, *settings)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("validated", func(t *testing.T) {
		bad := *settings
		bad.MinRepaymentWeeks, bad.MaxRepaymentWeeks = 10, 2
		_, err := f.loans.UpdateSettings(f.ctx, f.admin.ID, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("updated", func(t *testing.T) {
		next := *settings
		next.MaxLoanMultiplier = dec("2")
		next.MaxRepaymentWeeks = 26
		_, err := f.loans.UpdateSettings(f.ctx, f.admin.ID, next)
		require.NoError(t, err)

		got, err := f.loans.GetSettings(f.ctx, f.member.ID, f.group.ID)
		require.NoError(t, err)
		assert.True(t, got.MaxLoanMultiplier.Equal(dec("2")))
		assert.Equal(t, int32(26), got.MaxRepaymentWeeks)
		assert.WithinDuration(t, time.Now(), got.UpdatedOn, time.Minute)
	})
}
