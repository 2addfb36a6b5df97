// Package memory is an in-process repository.Store used for local development
// and service tests. Transactions are serialised behind a single mutex and
// commit by swapping in a modified copy of the state.
package memory

import (
	"context"
	"maps"
	"sync"

	"chama-backend/internal/domain"
	"chama-backend/internal/repository"
)

type memberKey struct {
	groupID int32
	userID  int32
}

type state struct {
	seq           map[string]int32
	users         map[int32]domain.User
	groups        map[int32]domain.Group
	members       map[memberKey]domain.GroupMember
	transactions  map[int32]domain.Transaction
	withdrawals   map[int32]domain.WithdrawalRequest
	loans         map[int32]domain.Loan
	repayments    map[int32]domain.LoanRepayment
	settings      map[int32]domain.LoanSettings
	notifications map[int32]domain.Notification
}

func newState() *state {
	return &state{
		seq:           map[string]int32{},
		users:         map[int32]domain.User{},
		groups:        map[int32]domain.Group{},
		members:       map[memberKey]domain.GroupMember{},
		transactions:  map[int32]domain.Transaction{},
		withdrawals:   map[int32]domain.WithdrawalRequest{},
		loans:         map[int32]domain.Loan{},
		repayments:    map[int32]domain.LoanRepayment{},
		settings:      map[int32]domain.LoanSettings{},
		notifications: map[int32]domain.Notification{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:           maps.Clone(s.seq),
		users:         maps.Clone(s.users),
		groups:        maps.Clone(s.groups),
		members:       maps.Clone(s.members),
		transactions:  maps.Clone(s.transactions),
		withdrawals:   maps.Clone(s.withdrawals),
		loans:         maps.Clone(s.loans),
		repayments:    maps.Clone(s.repayments),
		settings:      maps.Clone(s.settings),
		notifications: maps.Clone(s.notifications),
	}
}

func (s *state) next(table string) int32 {
	s.seq[table]++
	return s.seq[table]
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) Repos() repository.Repositories {
	return newRepositories(&view{store: s})
}

func (s *Store) WithinTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(newRepositories(&view{store: s, tx: snapshot})); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

// view routes repository calls either to the live state under the store lock
// or to a transaction snapshot that the caller already owns.
type view struct {
	store *Store
	tx    *state
}

func (v *view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func newRepositories(v *view) repository.Repositories {
	return repository.Repositories{
		Users:         &userRepository{v: v},
		Groups:        &groupRepository{v: v},
		Members:       &membershipRepository{v: v},
		Transactions:  &transactionRepository{v: v},
		Withdrawals:   &withdrawalRepository{v: v},
		Loans:         &loanRepository{v: v},
		LoanSettings:  &loanSettingsRepository{v: v},
		Notifications: &notificationRepository{v: v},
	}
}
