package service

import (
	"context"

	"chama-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type UserService interface {
	Register(ctx context.Context, name, email, phone, password string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetUser(ctx context.Context, userID int32) (*domain.User, error)
}

type GroupService interface {
	CreateGroup(ctx context.Context, creatorID int32, name, description string, target decimal.Decimal) (*domain.Group, error)
	GetGroup(ctx context.Context, userID, groupID int32) (*domain.Group, error)
	AddMember(ctx context.Context, adminID, groupID, userID int32, role domain.MemberRole) (*domain.GroupMember, error)
	ListMembers(ctx context.Context, userID, groupID int32) ([]domain.GroupMember, error)
}

type BalanceService interface {
	NetSavings(ctx context.Context, groupID, userID int32) (decimal.Decimal, error)
	GetAvailableBalance(ctx context.Context, groupID, userID int32) (*domain.AvailableBalance, error)
}

type WithdrawalService interface {
	Submit(ctx context.Context, userID, groupID int32, amount decimal.Decimal, description string) (*domain.WithdrawalRequest, error)
	Decide(ctx context.Context, requestID, adminID int32, decision domain.WithdrawalDecision, comment string) (*domain.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, userID, requestID int32) (*domain.WithdrawalRequest, error)
	ListPending(ctx context.Context, adminID, groupID int32) ([]domain.WithdrawalRequest, error)
	ListMyWithdrawals(ctx context.Context, userID int32) ([]domain.WithdrawalRequest, error)
	ListGroupWithdrawals(ctx context.Context, userID, groupID int32) ([]domain.WithdrawalRequest, error)
}

type LoanService interface {
	CheckEligibility(ctx context.Context, userID, groupID int32) (*domain.LoanEligibility, error)
	RequestLoan(ctx context.Context, userID, groupID int32, amount decimal.Decimal, purpose string, durationWeeks int32) (*domain.Loan, error)
	ApproveLoan(ctx context.Context, loanID, adminID int32) (*domain.Loan, error)
	RejectLoan(ctx context.Context, loanID, adminID int32, reason string) (*domain.Loan, error)
	Repay(ctx context.Context, loanID, userID int32, amount decimal.Decimal) (*domain.RepaymentResult, error)
	OutstandingBalance(ctx context.Context, userID, loanID int32) (decimal.Decimal, error)
	GetLoan(ctx context.Context, userID, loanID int32) (*domain.Loan, error)
	ListMyLoans(ctx context.Context, userID int32, status domain.LoanStatus) ([]domain.Loan, error)
	ListGroupLoans(ctx context.Context, userID, groupID int32, status domain.LoanStatus) ([]domain.Loan, error)
	GetLoanStats(ctx context.Context, userID, groupID int32) (*domain.LoanStats, error)
	GetSettings(ctx context.Context, userID, groupID int32) (*domain.LoanSettings, error)
	UpdateSettings(ctx context.Context, adminID int32, settings domain.LoanSettings) (*domain.LoanSettings, error)
}

type ContributionService interface {
	Contribute(ctx context.Context, userID, groupID int32, amount decimal.Decimal, phone, description string) (*domain.Transaction, error)
	HandleCallback(ctx context.Context, cb domain.PaymentCallback) (*domain.Transaction, error)
	RecordCashContribution(ctx context.Context, adminID, groupID, memberID int32, amount decimal.Decimal, description string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID, groupID int32) ([]domain.Transaction, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int32) error
}

// NotificationDispatcher delivers domain events. Callers treat the returned
// error as informational; a failed delivery never undoes a committed change.
type NotificationDispatcher interface {
	Emit(ctx context.Context, note *domain.Notification) error
}

type EmailService interface {
	SendNotification(ctx context.Context, toEmail, toName, subject, body string) error
}
