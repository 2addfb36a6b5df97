package repository

import (
	"context"
	"time"

	"chama-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int32) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	GetByID(ctx context.Context, id int32) (*domain.Group, error)
	// GetForUpdate reads the group and holds a row lock until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id int32) (*domain.Group, error)
	AdjustCurrentAmount(ctx context.Context, id int32, delta decimal.Decimal) error
	List(ctx context.Context) ([]domain.Group, error)
}

type MembershipRepository interface {
	Add(ctx context.Context, member *domain.GroupMember) error
	// GetRole returns domain.MemberRoleNone when the user is not in the group.
	GetRole(ctx context.Context, groupID, userID int32) (domain.MemberRole, error)
	ListMembers(ctx context.Context, groupID int32) ([]domain.GroupMember, error)
	ListAdminIDs(ctx context.Context, groupID int32) ([]int32, error)
}

type TransactionRepository interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id int32) (*domain.Transaction, error)
	GetByExternalRef(ctx context.Context, ref string) (*domain.Transaction, error)
	SetExternalRef(ctx context.Context, id int32, ref string) error
	// Settle moves a pending entry to completed or failed. It returns
	// domain.ErrAlreadyProcessed when the entry is no longer pending.
	Settle(ctx context.Context, tx *domain.Transaction) error
	SumCompletedByMember(ctx context.Context, groupID, userID int32) (domain.KindTotals, error)
	SumCompletedByGroup(ctx context.Context, groupID int32) (domain.KindTotals, error)
	ListByMember(ctx context.Context, groupID, userID int32) ([]domain.Transaction, error)
	ListPendingBefore(ctx context.Context, kind domain.TransactionKind, before time.Time) ([]domain.Transaction, error)
}

type WithdrawalRepository interface {
	Create(ctx context.Context, req *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id int32) (*domain.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, id int32) (*domain.WithdrawalRequest, error)
	Update(ctx context.Context, req *domain.WithdrawalRequest) error
	// ListByGroup filters by status unless status is empty.
	ListByGroup(ctx context.Context, groupID int32, status domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID int32) ([]domain.WithdrawalRequest, error)
}

type LoanRepository interface {
	Create(ctx context.Context, loan *domain.Loan) error
	GetByID(ctx context.Context, id int32) (*domain.Loan, error)
	GetForUpdate(ctx context.Context, id int32) (*domain.Loan, error)
	Update(ctx context.Context, loan *domain.Loan) error
	ListByUser(ctx context.Context, userID int32, status domain.LoanStatus) ([]domain.Loan, error)
	ListByGroup(ctx context.Context, groupID int32, status domain.LoanStatus) ([]domain.Loan, error)
	ListByStatuses(ctx context.Context, statuses []domain.LoanStatus) ([]domain.Loan, error)

	CreateRepayments(ctx context.Context, repayments []domain.LoanRepayment) error
	// ListRepayments returns the schedule ordered by due date.
	ListRepayments(ctx context.Context, loanID int32) ([]domain.LoanRepayment, error)
	UpdateRepayment(ctx context.Context, repayment *domain.LoanRepayment) error
}

type LoanSettingsRepository interface {
	Get(ctx context.Context, groupID int32) (*domain.LoanSettings, error)
	// CreateIfMissing inserts settings unless the group already has a row.
	CreateIfMissing(ctx context.Context, settings *domain.LoanSettings) error
	Update(ctx context.Context, settings *domain.LoanSettings) error
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int32) error
	MarkEmailed(ctx context.Context, id int32) error
}

// Repositories bundles every repository bound to the same connection or transaction.
type Repositories struct {
	Users         UserRepository
	Groups        GroupRepository
	Members       MembershipRepository
	Transactions  TransactionRepository
	Withdrawals   WithdrawalRepository
	Loans         LoanRepository
	LoanSettings  LoanSettingsRepository
	Notifications NotificationRepository
}

// Store hands out repositories and runs units of work atomically. Any error
// returned by fn rolls back every write made through the repos it was given.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}
