package service_test

import (
	"context"
	"testing"

	"chama-backend/internal/domain"
	"chama-backend/internal/payment"
	"chama-backend/internal/repository/memory"
	"chama-backend/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendNotification(ctx context.Context, toEmail, toName, subject, body string) error {
	args := m.Called(ctx, toEmail, toName, subject, body)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string {
	return "stub"
}

func (m *MockGateway) Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.InitiateResult), args.Error(1)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixture is a group with an admin, a member and a registered outsider.
type fixture struct {
	ctx        context.Context
	store      *memory.Store
	email      *MockEmailService
	gateway    *MockGateway
	dispatcher service.NotificationDispatcher

	users         service.UserService
	groups        service.GroupService
	balances      service.BalanceService
	withdrawals   service.WithdrawalService
	loans         service.LoanService
	contributions service.ContributionService
	notifications service.NotificationService

	admin    *domain.User
	member   *domain.User
	outsider *domain.User
	group    *domain.Group
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		store:   memory.NewStore(),
		email:   new(MockEmailService),
		gateway: new(MockGateway),
	}
	f.email.On("SendNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	repos := f.store.Repos()
	f.dispatcher = service.NewNotificationDispatcher(repos.Notifications, repos.Users, f.email)
	f.users = service.NewUserService(repos.Users)
	f.groups = service.NewGroupService(f.store)
	f.balances = service.NewBalanceService(f.store)
	f.withdrawals = service.NewWithdrawalService(f.store, f.dispatcher)
	f.loans = service.NewLoanService(f.store, f.dispatcher, 8)
	f.contributions = service.NewContributionService(f.store, f.gateway, f.dispatcher)
	f.notifications = service.NewNotificationService(repos.Notifications)

	var err error
	f.admin, err = f.users.Register(f.ctx, "Admin", "admin@chama.test", "0711000001", "correct-horse")
	require.NoError(t, err)
	f.member, err = f.users.Register(f.ctx, "Member", "member@chama.test", "0711000002", "correct-horse")
	require.NoError(t, err)
	f.outsider, err = f.users.Register(f.ctx, "Outsider", "outsider@chama.test", "0711000003", "correct-horse")
	require.NoError(t, err)

	f.group, err = f.groups.CreateGroup(f.ctx, f.admin.ID, "Umoja", "weekly savings", dec("100000"))
	require.NoError(t, err)
	_, err = f.groups.AddMember(f.ctx, f.admin.ID, f.group.ID, f.member.ID, domain.MemberRoleMember)
	require.NoError(t, err)
	return f
}

func (f *fixture) deposit(t *testing.T, userID int32, amount string) {
	t.Helper()
	_, err := f.contributions.RecordCashContribution(f.ctx, f.admin.ID, f.group.ID, userID, dec(amount), "")
	require.NoError(t, err)
}

func (f *fixture) currentAmount(t *testing.T) decimal.Decimal {
	t.Helper()
	g, err := f.store.Repos().Groups.GetByID(f.ctx, f.group.ID)
	require.NoError(t, err)
	return g.CurrentAmount
}

// requireFundsMatchJournal checks that the cached group total equals the
// journal-derived total.
func (f *fixture) requireFundsMatchJournal(t *testing.T) {
	t.Helper()
	totals, err := f.store.Repos().Transactions.SumCompletedByGroup(f.ctx, f.group.ID)
	require.NoError(t, err)
	require.True(t, totals.GroupFunds().Equal(f.currentAmount(t)),
		"journal %s != current_amount %s", totals.GroupFunds(), f.currentAmount(t))
}

func (f *fixture) notificationsFor(t *testing.T, userID int32) []domain.Notification {
	t.Helper()
	notes, _, err := f.notifications.GetNotifications(f.ctx, userID, 1, 100)
	require.NoError(t, err)
	return notes
}

func kinds(notes []domain.Notification) []domain.NotificationKind {
	out := make([]domain.NotificationKind, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Kind)
	}
	return out
}
