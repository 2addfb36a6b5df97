package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

const defaultRejectionReason = "No reason provided"

type loanService struct {
	store                repository.Store
	dispatcher           NotificationDispatcher
	defaultDurationWeeks int32
}

func NewLoanService(store repository.Store, dispatcher NotificationDispatcher, defaultDurationWeeks int32) LoanService {
	return &loanService{
		store:                store,
		dispatcher:           dispatcher,
		defaultDurationWeeks: defaultDurationWeeks,
	}
}

// loanSettings returns the group's loan policy, creating the defaults on
// first access.
func loanSettings(ctx context.Context, repo repository.LoanSettingsRepository, groupID int32) (*domain.LoanSettings, error) {
	settings, err := repo.Get(ctx, groupID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, persistence("get loan settings", err)
	}

	defaults := domain.DefaultLoanSettings(groupID)
	if err := repo.CreateIfMissing(ctx, &defaults); err != nil {
		return nil, persistence("create loan settings", err)
	}
	settings, err = repo.Get(ctx, groupID)
	if err != nil {
		return nil, persistence("get loan settings", err)
	}
	return settings, nil
}

func eligibility(ctx context.Context, repos repository.Repositories, groupID, userID int32) (*domain.LoanEligibility, *domain.LoanSettings, error) {
	if _, err := requireGroup(ctx, repos.Groups, groupID); err != nil {
		return nil, nil, err
	}
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, nil, err
	}
	settings, err := loanSettings(ctx, repos.LoanSettings, groupID)
	if err != nil {
		return nil, nil, err
	}
	net, err := netSavings(ctx, repos.Transactions, groupID, userID)
	if err != nil {
		return nil, nil, err
	}
	return &domain.LoanEligibility{
		GroupID:           groupID,
		UserID:            userID,
		NetSavings:        net,
		Multiplier:        settings.MaxLoanMultiplier,
		EligibleAmount:    domain.EligibleAmount(net, *settings),
		InterestRate:      settings.BaseInterestRate,
		MinRepaymentWeeks: settings.MinRepaymentWeeks,
		MaxRepaymentWeeks: settings.MaxRepaymentWeeks,
	}, settings, nil
}

func (s *loanService) CheckEligibility(ctx context.Context, userID, groupID int32) (*domain.LoanEligibility, error) {
	elig, _, err := eligibility(ctx, s.store.Repos(), groupID, userID)
	return elig, err
}

func (s *loanService) RequestLoan(ctx context.Context, userID, groupID int32, amount decimal.Decimal, purpose string, durationWeeks int32) (*domain.Loan, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if durationWeeks == 0 {
		durationWeeks = s.defaultDurationWeeks
	}

	var loan *domain.Loan
	var notes []*domain.Notification
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		elig, settings, err := eligibility(ctx, repos, groupID, userID)
		if err != nil {
			return err
		}
		if !settings.AllowsDuration(durationWeeks) {
			return fmt.Errorf("%w: duration must be between %d and %d weeks", domain.ErrInvalidInput,
				settings.MinRepaymentWeeks, settings.MaxRepaymentWeeks)
		}
		if amount.GreaterThan(elig.EligibleAmount) {
			return domain.ErrExceedsEligibility
		}

		loan = &domain.Loan{
			UserID:        userID,
			GroupID:       groupID,
			Amount:        amount,
			Purpose:       purpose,
			InterestRate:  settings.BaseInterestRate,
			DurationWeeks: durationWeeks,
			Status:        domain.LoanStatusPending,
		}
		if err := repos.Loans.Create(ctx, loan); err != nil {
			return persistence("create loan", err)
		}

		notes = adminNotes(ctx, repos.Members, domain.Notification{
			SenderID:        ptr(userID),
			GroupID:         groupID,
			Kind:            domain.NotificationKindLoanRequest,
			Title:           "New loan request",
			Message:         fmt.Sprintf("A member requested a loan of %s over %d weeks", amount.StringFixed(2), durationWeeks),
			ReferenceID:     ptr(loan.ID),
			ReferenceAmount: decimal.NewNullDecimal(amount),
		})
		return nil
	})
	if err != nil {
		return nil, persistence("request loan", err)
	}

	logger.Info("Loan requested", "loan_id", loan.ID, "user_id", userID, "group_id", groupID, "amount", amount)
	metrics.LoanTransitions.WithLabelValues(string(loan.Status)).Inc()
	notifyAll(ctx, s.dispatcher, notes...)
	return loan, nil
}

// lockPendingLoan loads a loan under a row lock for an admin decision.
// Authorization is checked before the pending state.
func lockPendingLoan(ctx context.Context, repos repository.Repositories, loanID, adminID int32) (*domain.Loan, error) {
	loan, err := repos.Loans.GetForUpdate(ctx, loanID)
	if err != nil {
		return nil, persistence("lock loan", err)
	}
	if err := requireAdmin(ctx, repos.Members, loan.GroupID, adminID); err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanStatusPending {
		return nil, domain.ErrAlreadyProcessed
	}
	return loan, nil
}

// ApproveLoan generates the repayment schedule and disburses the principal
// from group funds in one transaction.
func (s *loanService) ApproveLoan(ctx context.Context, loanID, adminID int32) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		loan, err = lockPendingLoan(ctx, repos, loanID, adminID)
		if err != nil {
			return err
		}
		group, err := repos.Groups.GetForUpdate(ctx, loan.GroupID)
		if err != nil {
			return persistence("lock group", err)
		}
		if loan.Amount.GreaterThan(group.CurrentAmount) {
			return domain.ErrExceedsGroupFunds
		}

		approvedAt := time.Now()
		schedule := domain.BuildSchedule(loan.ID, loan.Amount, loan.InterestRate, loan.DurationWeeks, approvedAt)
		if err := repos.Loans.CreateRepayments(ctx, schedule); err != nil {
			return persistence("create repayment schedule", err)
		}

		loan.Status = domain.LoanStatusApproved
		loan.ApprovedBy = ptr(adminID)
		loan.ApprovedAt = &approvedAt
		loan.DueDate = ptr(approvedAt.AddDate(0, 0, 7*int(loan.DurationWeeks)))
		if err := repos.Loans.Update(ctx, loan); err != nil {
			return persistence("update loan", err)
		}

		entry := &domain.Transaction{
			GroupID:     loan.GroupID,
			UserID:      loan.UserID,
			Amount:      loan.Amount,
			Kind:        domain.TransactionKindLoanDisbursement,
			Status:      domain.TransactionStatusCompleted,
			Description: fmt.Sprintf("Loan #%d disbursement", loan.ID),
			ReferenceID: ptr(loan.ID),
			SettledOn:   &approvedAt,
		}
		if err := repos.Transactions.Append(ctx, entry); err != nil {
			return persistence("append disbursement entry", err)
		}
		if err := repos.Groups.AdjustCurrentAmount(ctx, loan.GroupID, entry.Kind.GroupFundsDelta(entry.Amount)); err != nil {
			return persistence("adjust group funds", err)
		}
		loan.Repayments = schedule
		return nil
	})
	if err != nil {
		return nil, persistence("approve loan", err)
	}

	logger.Transition("loan", loan.ID, string(domain.LoanStatusPending), string(loan.Status), "admin_id", adminID)
	metrics.LoanTransitions.WithLabelValues(string(loan.Status)).Inc()
	notifyAll(ctx, s.dispatcher, &domain.Notification{
		RecipientID:     loan.UserID,
		SenderID:        ptr(adminID),
		GroupID:         loan.GroupID,
		Kind:            domain.NotificationKindLoanApproved,
		Title:           "Loan approved",
		Message:         fmt.Sprintf("Your loan of %s has been approved and disbursed. Total payable %s over %d weeks", loan.Amount.StringFixed(2), loan.TotalPayable().StringFixed(2), loan.DurationWeeks),
		ReferenceID:     ptr(loan.ID),
		ReferenceAmount: decimal.NewNullDecimal(loan.Amount),
	})
	return loan, nil
}

func (s *loanService) RejectLoan(ctx context.Context, loanID, adminID int32, reason string) (*domain.Loan, error) {
	if reason == "" {
		reason = defaultRejectionReason
	}

	var loan *domain.Loan
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		loan, err = lockPendingLoan(ctx, repos, loanID, adminID)
		if err != nil {
			return err
		}
		loan.Status = domain.LoanStatusRejected
		loan.ApprovedBy = ptr(adminID)
		loan.ApprovedAt = ptr(time.Now())
		loan.RejectionReason = reason
		return persistence("update loan", repos.Loans.Update(ctx, loan))
	})
	if err != nil {
		return nil, persistence("reject loan", err)
	}

	logger.Transition("loan", loan.ID, string(domain.LoanStatusPending), string(loan.Status), "admin_id", adminID)
	metrics.LoanTransitions.WithLabelValues(string(loan.Status)).Inc()
	notifyAll(ctx, s.dispatcher, &domain.Notification{
		RecipientID:     loan.UserID,
		SenderID:        ptr(adminID),
		GroupID:         loan.GroupID,
		Kind:            domain.NotificationKindLoanRejected,
		Title:           "Loan rejected",
		Message:         fmt.Sprintf("Your loan request of %s was rejected: %s", loan.Amount.StringFixed(2), reason),
		ReferenceID:     ptr(loan.ID),
		ReferenceAmount: decimal.NewNullDecimal(loan.Amount),
	})
	return loan, nil
}

// Repay applies the whole amount to the earliest unpaid installment.
// Amounts are never split across installments.
func (s *loanService) Repay(ctx context.Context, loanID, userID int32, amount decimal.Decimal) (*domain.RepaymentResult, error) {
	var result *domain.RepaymentResult
	var previous domain.LoanStatus
	var notes []*domain.Notification
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		loan, err := repos.Loans.GetForUpdate(ctx, loanID)
		if err != nil {
			return persistence("lock loan", err)
		}
		if loan.UserID != userID {
			return domain.ErrNotOwner
		}
		if !loan.Status.IsOutstanding() {
			return domain.ErrNotActive
		}
		if err := domain.ValidateAmount(amount); err != nil {
			return err
		}

		repayments, err := repos.Loans.ListRepayments(ctx, loan.ID)
		if err != nil {
			return persistence("list repayments", err)
		}
		next := domain.NextUnpaid(repayments)
		if next == nil {
			return domain.ErrNotActive
		}

		now := time.Now()
		next.Apply(amount, now)
		if err := repos.Loans.UpdateRepayment(ctx, next); err != nil {
			return persistence("update repayment", err)
		}

		previous = loan.Status
		outstanding := loan.OutstandingBalance(repayments)
		if !outstanding.IsPositive() {
			loan.Status = domain.LoanStatusPaid
		} else {
			loan.Status = domain.LoanStatusActive
		}
		if loan.Status != previous {
			if err := repos.Loans.Update(ctx, loan); err != nil {
				return persistence("update loan", err)
			}
		}

		entry := &domain.Transaction{
			GroupID:     loan.GroupID,
			UserID:      userID,
			Amount:      amount,
			Kind:        domain.TransactionKindLoanRepayment,
			Status:      domain.TransactionStatusCompleted,
			Description: fmt.Sprintf("Loan #%d repayment", loan.ID),
			ReferenceID: ptr(loan.ID),
			SettledOn:   &now,
		}
		if err := repos.Transactions.Append(ctx, entry); err != nil {
			return persistence("append repayment entry", err)
		}
		if delta := entry.Kind.GroupFundsDelta(amount); !delta.IsZero() {
			if err := repos.Groups.AdjustCurrentAmount(ctx, loan.GroupID, delta); err != nil {
				return persistence("adjust group funds", err)
			}
		}

		loan.Repayments = repayments
		installment := *next
		result = &domain.RepaymentResult{Loan: loan, Installment: &installment, Outstanding: outstanding}

		notes = adminNotes(ctx, repos.Members, domain.Notification{
			SenderID:        ptr(userID),
			GroupID:         loan.GroupID,
			Kind:            domain.NotificationKindLoanRepayment,
			Title:           "Loan repayment received",
			Message:         fmt.Sprintf("A repayment of %s was made on loan #%d. Outstanding %s", amount.StringFixed(2), loan.ID, outstanding.StringFixed(2)),
			ReferenceID:     ptr(loan.ID),
			ReferenceAmount: decimal.NewNullDecimal(amount),
		})
		return nil
	})
	if err != nil {
		return nil, persistence("repay loan", err)
	}

	if result.Loan.Status != previous {
		logger.Transition("loan", loanID, string(previous), string(result.Loan.Status))
		metrics.LoanTransitions.WithLabelValues(string(result.Loan.Status)).Inc()
	}
	notifyAll(ctx, s.dispatcher, notes...)
	return result, nil
}

// loadVisibleLoan returns the loan with its schedule when the caller is the
// borrower or an admin of the loan's group.
func loadVisibleLoan(ctx context.Context, repos repository.Repositories, userID, loanID int32) (*domain.Loan, error) {
	loan, err := repos.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, persistence("get loan", err)
	}
	if loan.UserID != userID {
		if err := requireAdmin(ctx, repos.Members, loan.GroupID, userID); err != nil {
			return nil, err
		}
	}
	loan.Repayments, err = repos.Loans.ListRepayments(ctx, loan.ID)
	if err != nil {
		return nil, persistence("list repayments", err)
	}
	return loan, nil
}

func (s *loanService) OutstandingBalance(ctx context.Context, userID, loanID int32) (decimal.Decimal, error) {
	loan, err := loadVisibleLoan(ctx, s.store.Repos(), userID, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return loan.OutstandingBalance(loan.Repayments), nil
}

func (s *loanService) GetLoan(ctx context.Context, userID, loanID int32) (*domain.Loan, error) {
	return loadVisibleLoan(ctx, s.store.Repos(), userID, loanID)
}

func (s *loanService) ListMyLoans(ctx context.Context, userID int32, status domain.LoanStatus) ([]domain.Loan, error) {
	loans, err := s.store.Repos().Loans.ListByUser(ctx, userID, status)
	return loans, persistence("list user loans", err)
}

func (s *loanService) ListGroupLoans(ctx context.Context, userID, groupID int32, status domain.LoanStatus) ([]domain.Loan, error) {
	repos := s.store.Repos()
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	loans, err := repos.Loans.ListByGroup(ctx, groupID, status)
	return loans, persistence("list group loans", err)
}

func (s *loanService) GetLoanStats(ctx context.Context, userID, groupID int32) (*domain.LoanStats, error) {
	repos := s.store.Repos()
	if _, err := requireGroup(ctx, repos.Groups, groupID); err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	loans, err := repos.Loans.ListByGroup(ctx, groupID, "")
	if err != nil {
		return nil, persistence("list group loans", err)
	}

	stats := &domain.LoanStats{
		GroupID:          groupID,
		ByStatus:         map[domain.LoanStatus]int32{},
		TotalDisbursed:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
	}
	for _, loan := range loans {
		stats.Total++
		stats.ByStatus[loan.Status]++
		if loan.ApprovedAt == nil || loan.Status == domain.LoanStatusRejected {
			continue
		}
		stats.TotalDisbursed = stats.TotalDisbursed.Add(loan.Amount)
		if loan.Status == domain.LoanStatusPaid {
			continue
		}
		repayments, err := repos.Loans.ListRepayments(ctx, loan.ID)
		if err != nil {
			return nil, persistence("list repayments", err)
		}
		if outstanding := loan.OutstandingBalance(repayments); outstanding.IsPositive() {
			stats.TotalOutstanding = stats.TotalOutstanding.Add(outstanding)
		}
	}
	return stats, nil
}

func (s *loanService) GetSettings(ctx context.Context, userID, groupID int32) (*domain.LoanSettings, error) {
	repos := s.store.Repos()
	if _, err := requireGroup(ctx, repos.Groups, groupID); err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	return loanSettings(ctx, repos.LoanSettings, groupID)
}

func (s *loanService) UpdateSettings(ctx context.Context, adminID int32, settings domain.LoanSettings) (*domain.LoanSettings, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if _, err := requireGroup(ctx, repos.Groups, settings.GroupID); err != nil {
			return err
		}
		if err := requireAdmin(ctx, repos.Members, settings.GroupID, adminID); err != nil {
			return err
		}
		if _, err := loanSettings(ctx, repos.LoanSettings, settings.GroupID); err != nil {
			return err
		}
		return persistence("update loan settings", repos.LoanSettings.Update(ctx, &settings))
	})
	if err != nil {
		return nil, persistence("update loan settings", err)
	}
	logger.Info("Loan settings updated", "group_id", settings.GroupID, "admin_id", adminID)
	return &settings, nil
}
