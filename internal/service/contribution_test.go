package service_test

import (
	"context"
	"errors"
	"testing"

	"chama-backend/internal/domain"
	"chama-backend/internal/payment"
	"chama-backend/internal/repository"
	"chama-backend/internal/repository/memory"
	"chama-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func mockAnyInitiate() any {
	return mock.AnythingOfType("payment.InitiateRequest")
}

func initiated(id string) *payment.InitiateResult {
	return &payment.InitiateResult{ProviderRequestID: id, CustomerMessage: "Success"}
}

func TestContributionService_Contribute(t *testing.T) {
	t.Run("Pending until confirmed", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("Initiate", f.ctx, mock.MatchedBy(func(req payment.InitiateRequest) bool {
			return req.Phone == "254711000002" && req.Amount.Equal(dec("250"))
		})).Return(initiated("ws_CO_1"), nil).Once()

		entry, err := f.contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("250"), "", "")
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusPending, entry.Status)
		assert.Equal(t, "ws_CO_1", entry.ExternalRef)
		assert.True(t, f.currentAmount(t).IsZero())

		settled, err := f.contributions.HandleCallback(f.ctx, domain.PaymentCallback{
			ProviderRequestID: "ws_CO_1",
			ConfirmationCode:  "NLJ7RT61SV",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, settled.Status)
		assert.Equal(t, "NLJ7RT61SV", settled.ConfirmationCode)
		assert.True(t, f.currentAmount(t).Equal(dec("250")))
		f.requireFundsMatchJournal(t)
		assert.Contains(t, kinds(f.notificationsFor(t, f.member.ID)), domain.NotificationKindContribution)
		f.gateway.AssertExpectations(t)
	})

	t.Run("Callback settles once", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("Initiate", f.ctx, mockAnyInitiate()).Return(initiated("ws_CO_2"), nil).Once()
		_, err := f.contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("100"), "0722000000", "")
		require.NoError(t, err)

		cb := domain.PaymentCallback{ProviderRequestID: "ws_CO_2"}
		_, err = f.contributions.HandleCallback(f.ctx, cb)
		require.NoError(t, err)
		_, err = f.contributions.HandleCallback(f.ctx, cb)
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
		assert.True(t, f.currentAmount(t).Equal(dec("100")))
	})

	t.Run("Failed callback excludes the entry", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("Initiate", f.ctx, mockAnyInitiate()).Return(initiated("ws_CO_3"), nil).Once()
		_, err := f.contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("100"), "", "")
		require.NoError(t, err)

		settled, err := f.contributions.HandleCallback(f.ctx, domain.PaymentCallback{
			ProviderRequestID: "ws_CO_3",
			ResultCode:        1032,
			FailureReason:     "Request cancelled by user",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusFailed, settled.Status)
		assert.True(t, f.currentAmount(t).IsZero())

		net, err := f.balances.NetSavings(f.ctx, f.group.ID, f.member.ID)
		require.NoError(t, err)
		assert.True(t, net.IsZero())
	})

	t.Run("Gateway failure marks entry failed", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("Initiate", f.ctx, mockAnyInitiate()).Return(nil, payment.ErrGatewayUnavailable).Once()

		entry, err := f.contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("100"), "", "")
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusFailed, entry.Status)

		stored, err := f.store.Repos().Transactions.GetByID(f.ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusFailed, stored.Status)
		assert.Contains(t, stored.FailureReason, "payment initiation failed")
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("0"), "", "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)

		_, err = f.contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("10"), "12", "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = f.contributions.Contribute(f.ctx, f.outsider.ID, f.group.ID, dec("10"), "", "")
		assert.ErrorIs(t, err, domain.ErrNotAMember)

		f.gateway.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
	})

	t.Run("Unknown reference", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.contributions.HandleCallback(f.ctx, domain.PaymentCallback{ProviderRequestID: "nope"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestContributionService_RecordCashContribution(t *testing.T) {
	f := newFixture(t)

	entry, err := f.contributions.RecordCashContribution(f.ctx, f.admin.ID, f.group.ID, f.member.ID, dec("300"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, entry.Status)
	assert.True(t, f.currentAmount(t).Equal(dec("300")))

	_, err = f.contributions.RecordCashContribution(f.ctx, f.member.ID, f.group.ID, f.member.ID, dec("300"), "")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.contributions.RecordCashContribution(f.ctx, f.admin.ID, f.group.ID, f.outsider.ID, dec("300"), "")
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	txs, err := f.contributions.ListTransactions(f.ctx, f.member.ID, f.group.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, entry.ID, txs[0].ID)
}

// refFailingStore fails the first `failures` SetExternalRef writes.
type refFailingStore struct {
	*memory.Store
	failures int
	calls    int
}

func (s *refFailingStore) Repos() repository.Repositories {
	repos := s.Store.Repos()
	repos.Transactions = &refFailingTransactions{TransactionRepository: repos.Transactions, store: s}
	return repos
}

type refFailingTransactions struct {
	repository.TransactionRepository
	store *refFailingStore
}

func (r *refFailingTransactions) SetExternalRef(ctx context.Context, id int32, ref string) error {
	r.store.calls++
	if r.store.calls <= r.store.failures {
		return errors.New("connection reset by peer")
	}
	return r.TransactionRepository.SetExternalRef(ctx, id, ref)
}

func TestContributionService_ContributeStoresProviderRef(t *testing.T) {
	t.Run("Retries a failed write once", func(t *testing.T) {
		f := newFixture(t)
		store := &refFailingStore{Store: f.store, failures: 1}
		contributions := service.NewContributionService(store, f.gateway, f.dispatcher)
		f.gateway.On("Initiate", f.ctx, mockAnyInitiate()).Return(initiated("ws_CO_retry"), nil).Once()

		entry, err := contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("100"), "", "")
		require.NoError(t, err)
		assert.Equal(t, 2, store.calls)
		assert.Equal(t, "ws_CO_retry", entry.ExternalRef)

		settled, err := contributions.HandleCallback(f.ctx, domain.PaymentCallback{
			ProviderRequestID: "ws_CO_retry",
			ConfirmationCode:  "QK12",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, settled.Status)
		assert.True(t, f.currentAmount(t).Equal(dec("100")))
	})

	t.Run("Gives up after the retry", func(t *testing.T) {
		f := newFixture(t)
		store := &refFailingStore{Store: f.store, failures: 2}
		contributions := service.NewContributionService(store, f.gateway, f.dispatcher)
		f.gateway.On("Initiate", f.ctx, mockAnyInitiate()).Return(initiated("ws_CO_lost"), nil).Once()

		entry, err := contributions.Contribute(f.ctx, f.member.ID, f.group.ID, dec("100"), "", "")
		require.NoError(t, err)
		assert.Equal(t, 2, store.calls)
		assert.Empty(t, entry.ExternalRef)
		assert.Equal(t, domain.TransactionStatusPending, entry.Status)

		_, err = f.store.Repos().Transactions.GetByExternalRef(f.ctx, "ws_CO_lost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
