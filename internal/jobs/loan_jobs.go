package jobs

import (
	"context"
	"fmt"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

// MarkOverdueLoans defaults outstanding loans that have an installment past
// its due date plus the configured grace period. Overdue installments become late.
func (jr *JobRunner) MarkOverdueLoans() {
	jr.runWithRecovery("MarkOverdueLoans", jr.markOverdueLoans)
}

func (jr *JobRunner) markOverdueLoans(ctx context.Context) error {
	cutoff := jr.now().Add(-days(jr.config.Loans.OverdueGraceDays))

	loans, err := jr.store.Repos().Loans.ListByStatuses(ctx, domain.OutstandingLoanStatuses)
	if err != nil {
		return wrapf(err, "list outstanding loans")
	}

	count, failures := 0, 0
	for _, candidate := range loans {
		var defaulted *domain.Loan
		var late int
		err := jr.store.WithinTx(ctx, func(repos repository.Repositories) error {
			loan, err := repos.Loans.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Repaid or already swept since the listing.
			if !loan.Status.IsOutstanding() {
				return nil
			}
			schedule, err := repos.Loans.ListRepayments(ctx, loan.ID)
			if err != nil {
				return err
			}
			for i := range schedule {
				if !schedule[i].IsOverdue(cutoff) {
					continue
				}
				late++
				if schedule[i].Status == domain.RepaymentStatusLate {
					continue
				}
				schedule[i].Status = domain.RepaymentStatusLate
				if err := repos.Loans.UpdateRepayment(ctx, &schedule[i]); err != nil {
					return err
				}
			}
			if late == 0 {
				return nil
			}
			loan.Status = domain.LoanStatusDefaulted
			if err := repos.Loans.Update(ctx, loan); err != nil {
				return err
			}
			defaulted = loan
			return nil
		})
		if err != nil {
			logger.Error("Failed to sweep loan", "loan_id", candidate.ID, "error", err)
			failures++
			continue
		}
		if defaulted == nil {
			continue
		}

		count++
		logger.Transition("loan", defaulted.ID, string(candidate.Status), string(defaulted.Status), "late_installments", late)
		metrics.LoanTransitions.WithLabelValues(string(domain.LoanStatusDefaulted)).Inc()
		jr.notify(ctx, &domain.Notification{
			RecipientID:     defaulted.UserID,
			GroupID:         defaulted.GroupID,
			Kind:            domain.NotificationKindLoanDefaulted,
			Title:           "Loan overdue",
			Message:         fmt.Sprintf("Your loan of %s has %d overdue installment(s) and is now in default", defaulted.Amount.StringFixed(2), late),
			ReferenceID:     &defaulted.ID,
			ReferenceAmount: decimal.NewNullDecimal(defaulted.Amount),
		})
	}

	logger.Info("Marked loans as defaulted", "count", count, "checked", len(loans))
	if failures > 0 {
		return fmt.Errorf("%d of %d loans could not be swept", failures, len(loans))
	}
	return nil
}

// SendLoanReminders notifies borrowers about installments due within the
// configured number of days.
func (jr *JobRunner) SendLoanReminders() {
	jr.runWithRecovery("SendLoanReminders", jr.sendLoanReminders)
}

func (jr *JobRunner) sendLoanReminders(ctx context.Context) error {
	now := jr.now()
	horizon := now.Add(days(jr.config.Loans.ReminderDaysAhead))
	repos := jr.store.Repos()

	loans, err := repos.Loans.ListByStatuses(ctx, domain.OutstandingLoanStatuses)
	if err != nil {
		return wrapf(err, "list outstanding loans")
	}

	sent := 0
	for _, loan := range loans {
		schedule, err := repos.Loans.ListRepayments(ctx, loan.ID)
		if err != nil {
			logger.Error("Failed to load repayment schedule", "loan_id", loan.ID, "error", err)
			continue
		}
		next := domain.NextUnpaid(schedule)
		if next == nil || next.DueDate.Before(now) || next.DueDate.After(horizon) {
			continue
		}

		due := next.Amount.Sub(next.AmountPaid)
		jr.notify(ctx, &domain.Notification{
			RecipientID:     loan.UserID,
			GroupID:         loan.GroupID,
			Kind:            domain.NotificationKindLoanDueReminder,
			Title:           "Loan repayment due",
			Message:         fmt.Sprintf("An installment of %s is due on %s", due.StringFixed(2), formatDate(next.DueDate)),
			ReferenceID:     &loan.ID,
			ReferenceAmount: decimal.NewNullDecimal(due),
		})
		sent++
	}

	logger.Info("Sent loan reminders", "count", sent)
	return nil
}

func (jr *JobRunner) notify(ctx context.Context, note *domain.Notification) {
	if jr.dispatcher == nil {
		return
	}
	if err := jr.dispatcher.Emit(ctx, note); err != nil {
		logger.Swallowed("notify", err, "kind", note.Kind, "recipient", note.RecipientID)
	}
}
