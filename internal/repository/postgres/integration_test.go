//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/payment"
	"chama-backend/internal/repository/postgres"
	"chama-backend/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("chama"),
		tcpostgres.WithUsername("chama"),
		tcpostgres.WithPassword("chama"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, postgres.RunMigrations(db, "chama"))
	return postgres.NewStore(db)
}

func TestIntegration_ConcurrentWithdrawalApprovals(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	repos := store.Repos()

	dispatcher := service.NewNotificationDispatcher(repos.Notifications, repos.Users, service.NewLogEmailService())
	users := service.NewUserService(repos.Users)
	groups := service.NewGroupService(store)
	contributions := service.NewContributionService(store, payment.NewMockGateway(), dispatcher)
	withdrawals := service.NewWithdrawalService(store, dispatcher)

	admin, err := users.Register(ctx, "Admin", "admin@chama.test", "0711000001", "correct-horse")
	require.NoError(t, err)
	member, err := users.Register(ctx, "Member", "member@chama.test", "0711000002", "correct-horse")
	require.NoError(t, err)
	group, err := groups.CreateGroup(ctx, admin.ID, "Umoja", "", decimal.RequireFromString("0"))
	require.NoError(t, err)
	_, err = groups.AddMember(ctx, admin.ID, group.ID, member.ID, domain.MemberRoleMember)
	require.NoError(t, err)
	_, err = contributions.RecordCashContribution(ctx, admin.ID, group.ID, member.ID, decimal.RequireFromString("500"), "")
	require.NoError(t, err)

	// Each request passes the balance check alone; together they overdraw.
	first, err := withdrawals.Submit(ctx, member.ID, group.ID, decimal.RequireFromString("400"), "")
	require.NoError(t, err)
	second, err := withdrawals.Submit(ctx, member.ID, group.ID, decimal.RequireFromString("400"), "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int32{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id int32) {
			defer wg.Done()
			_, errs[i] = withdrawals.Decide(ctx, id, admin.ID, domain.WithdrawalDecisionApprove, "")
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, succeeded)

	g, err := repos.Groups.GetByID(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, g.CurrentAmount.Equal(decimal.NewFromInt(100)), g.CurrentAmount.String())

	totals, err := repos.Transactions.SumCompletedByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, totals.GroupFunds().Equal(g.CurrentAmount))
}
