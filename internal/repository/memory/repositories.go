package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"chama-backend/internal/domain"

	"github.com/shopspring/decimal"
)

var errNegativeFunds = errors.New("group current_amount cannot go negative")

func now() time.Time {
	return time.Now().UTC()
}

func newestFirst(a, b time.Time, idA, idB int32) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return cmp.Compare(idB, idA)
}

type userRepository struct{ v *view }

func (r *userRepository) Create(_ context.Context, u *domain.User) error {
	return r.v.do(func(st *state) error {
		for _, existing := range st.users {
			if existing.Email == u.Email {
				return fmt.Errorf("user with email %q already exists", u.Email)
			}
		}
		u.ID = st.next("users")
		if u.CreatedOn.IsZero() {
			u.CreatedOn = now()
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (r *userRepository) GetByID(_ context.Context, id int32) (*domain.User, error) {
	var out domain.User
	err := r.v.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	var out domain.User
	err := r.v.do(func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		return domain.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type groupRepository struct{ v *view }

func (r *groupRepository) Create(_ context.Context, g *domain.Group) error {
	return r.v.do(func(st *state) error {
		g.ID = st.next("groups")
		if g.CreatedOn.IsZero() {
			g.CreatedOn = now()
		}
		st.groups[g.ID] = *g
		return nil
	})
}

func (r *groupRepository) GetByID(_ context.Context, id int32) (*domain.Group, error) {
	var out domain.Group
	err := r.v.do(func(st *state) error {
		g, ok := st.groups[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *groupRepository) GetForUpdate(ctx context.Context, id int32) (*domain.Group, error) {
	return r.GetByID(ctx, id)
}

func (r *groupRepository) AdjustCurrentAmount(_ context.Context, id int32, delta decimal.Decimal) error {
	return r.v.do(func(st *state) error {
		g, ok := st.groups[id]
		if !ok {
			return domain.ErrNotFound
		}
		updated := g.CurrentAmount.Add(delta)
		if updated.IsNegative() {
			return errNegativeFunds
		}
		g.CurrentAmount = updated
		st.groups[id] = g
		return nil
	})
}

func (r *groupRepository) List(_ context.Context) ([]domain.Group, error) {
	var out []domain.Group
	err := r.v.do(func(st *state) error {
		for _, g := range st.groups {
			out = append(out, g)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Group) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

type membershipRepository struct{ v *view }

func (r *membershipRepository) Add(_ context.Context, m *domain.GroupMember) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.groups[m.GroupID]; !ok {
			return domain.ErrNotFound
		}
		key := memberKey{groupID: m.GroupID, userID: m.UserID}
		if existing, ok := st.members[key]; ok {
			m.JoinedOn = existing.JoinedOn
		} else if m.JoinedOn.IsZero() {
			m.JoinedOn = now()
		}
		st.members[key] = *m
		return nil
	})
}

func (r *membershipRepository) GetRole(_ context.Context, groupID, userID int32) (domain.MemberRole, error) {
	role := domain.MemberRoleNone
	err := r.v.do(func(st *state) error {
		if m, ok := st.members[memberKey{groupID: groupID, userID: userID}]; ok {
			role = m.Role
		}
		return nil
	})
	return role, err
}

func (r *membershipRepository) ListMembers(_ context.Context, groupID int32) ([]domain.GroupMember, error) {
	var out []domain.GroupMember
	err := r.v.do(func(st *state) error {
		for k, m := range st.members {
			if k.groupID == groupID {
				out = append(out, m)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.GroupMember) int {
		if c := a.JoinedOn.Compare(b.JoinedOn); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, err
}

func (r *membershipRepository) ListAdminIDs(_ context.Context, groupID int32) ([]int32, error) {
	var ids []int32
	err := r.v.do(func(st *state) error {
		for k, m := range st.members {
			if k.groupID == groupID && m.Role == domain.MemberRoleAdmin {
				ids = append(ids, k.userID)
			}
		}
		return nil
	})
	slices.Sort(ids)
	return ids, err
}

type transactionRepository struct{ v *view }

func (r *transactionRepository) Append(_ context.Context, t *domain.Transaction) error {
	return r.v.do(func(st *state) error {
		if t.ExternalRef != "" {
			for _, existing := range st.transactions {
				if existing.ExternalRef == t.ExternalRef {
					return fmt.Errorf("duplicate external reference %q", t.ExternalRef)
				}
			}
		}
		t.ID = st.next("transactions")
		if t.CreatedOn.IsZero() {
			t.CreatedOn = now()
		}
		st.transactions[t.ID] = *t
		return nil
	})
}

func (r *transactionRepository) GetByID(_ context.Context, id int32) (*domain.Transaction, error) {
	var out domain.Transaction
	err := r.v.do(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *transactionRepository) GetByExternalRef(_ context.Context, ref string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.v.do(func(st *state) error {
		for _, t := range st.transactions {
			if ref != "" && t.ExternalRef == ref {
				t := t
				out = &t
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return out, err
}

func (r *transactionRepository) SetExternalRef(_ context.Context, id int32, ref string) error {
	return r.v.do(func(st *state) error {
		t, ok := st.transactions[id]
		if !ok || t.Status != domain.TransactionStatusPending {
			return domain.ErrNotFound
		}
		t.ExternalRef = ref
		st.transactions[id] = t
		return nil
	})
}

func (r *transactionRepository) Settle(_ context.Context, t *domain.Transaction) error {
	return r.v.do(func(st *state) error {
		current, ok := st.transactions[t.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if current.Status != domain.TransactionStatusPending {
			return domain.ErrAlreadyProcessed
		}
		if t.SettledOn == nil {
			settled := now()
			t.SettledOn = &settled
		}
		current.Status = t.Status
		current.ConfirmationCode = t.ConfirmationCode
		current.FailureReason = t.FailureReason
		current.SettledOn = t.SettledOn
		st.transactions[t.ID] = current
		return nil
	})
}

func (r *transactionRepository) sum(match func(domain.Transaction) bool) (domain.KindTotals, error) {
	totals := domain.KindTotals{}
	err := r.v.do(func(st *state) error {
		for _, t := range st.transactions {
			if t.Status == domain.TransactionStatusCompleted && match(t) {
				totals[t.Kind] = totals.Get(t.Kind).Add(t.Amount)
			}
		}
		return nil
	})
	return totals, err
}

func (r *transactionRepository) SumCompletedByMember(_ context.Context, groupID, userID int32) (domain.KindTotals, error) {
	return r.sum(func(t domain.Transaction) bool { return t.GroupID == groupID && t.UserID == userID })
}

func (r *transactionRepository) SumCompletedByGroup(_ context.Context, groupID int32) (domain.KindTotals, error) {
	return r.sum(func(t domain.Transaction) bool { return t.GroupID == groupID })
}

func (r *transactionRepository) filter(match func(domain.Transaction) bool) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := r.v.do(func(st *state) error {
		for _, t := range st.transactions {
			if match(t) {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func (r *transactionRepository) ListByMember(_ context.Context, groupID, userID int32) ([]domain.Transaction, error) {
	out, err := r.filter(func(t domain.Transaction) bool { return t.GroupID == groupID && t.UserID == userID })
	slices.SortFunc(out, func(a, b domain.Transaction) int { return newestFirst(a.CreatedOn, b.CreatedOn, a.ID, b.ID) })
	return out, err
}

func (r *transactionRepository) ListPendingBefore(_ context.Context, kind domain.TransactionKind, before time.Time) ([]domain.Transaction, error) {
	out, err := r.filter(func(t domain.Transaction) bool {
		return t.Kind == kind && t.Status == domain.TransactionStatusPending && t.CreatedOn.Before(before)
	})
	slices.SortFunc(out, func(a, b domain.Transaction) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

type withdrawalRepository struct{ v *view }

func (r *withdrawalRepository) Create(_ context.Context, w *domain.WithdrawalRequest) error {
	return r.v.do(func(st *state) error {
		w.ID = st.next("withdrawals")
		w.CreatedOn = now()
		w.UpdatedOn = w.CreatedOn
		st.withdrawals[w.ID] = *w
		return nil
	})
}

func (r *withdrawalRepository) GetByID(_ context.Context, id int32) (*domain.WithdrawalRequest, error) {
	var out domain.WithdrawalRequest
	err := r.v.do(func(st *state) error {
		w, ok := st.withdrawals[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *withdrawalRepository) GetForUpdate(ctx context.Context, id int32) (*domain.WithdrawalRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *withdrawalRepository) Update(_ context.Context, w *domain.WithdrawalRequest) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.withdrawals[w.ID]; !ok {
			return domain.ErrNotFound
		}
		w.UpdatedOn = now()
		st.withdrawals[w.ID] = *w
		return nil
	})
}

func (r *withdrawalRepository) filter(match func(domain.WithdrawalRequest) bool) ([]domain.WithdrawalRequest, error) {
	var out []domain.WithdrawalRequest
	err := r.v.do(func(st *state) error {
		for _, w := range st.withdrawals {
			if match(w) {
				out = append(out, w)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.WithdrawalRequest) int { return newestFirst(a.CreatedOn, b.CreatedOn, a.ID, b.ID) })
	return out, err
}

func (r *withdrawalRepository) ListByGroup(_ context.Context, groupID int32, status domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	return r.filter(func(w domain.WithdrawalRequest) bool {
		return w.GroupID == groupID && (status == "" || w.Status == status)
	})
}

func (r *withdrawalRepository) ListByUser(_ context.Context, userID int32) ([]domain.WithdrawalRequest, error) {
	return r.filter(func(w domain.WithdrawalRequest) bool { return w.UserID == userID })
}

type loanRepository struct{ v *view }

func (r *loanRepository) Create(_ context.Context, l *domain.Loan) error {
	return r.v.do(func(st *state) error {
		l.ID = st.next("loans")
		l.CreatedOn = now()
		l.UpdatedOn = l.CreatedOn
		stored := *l
		stored.Repayments = nil
		st.loans[l.ID] = stored
		return nil
	})
}

func (r *loanRepository) GetByID(_ context.Context, id int32) (*domain.Loan, error) {
	var out domain.Loan
	err := r.v.do(func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *loanRepository) GetForUpdate(ctx context.Context, id int32) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepository) Update(_ context.Context, l *domain.Loan) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.loans[l.ID]; !ok {
			return domain.ErrNotFound
		}
		l.UpdatedOn = now()
		stored := *l
		stored.Repayments = nil
		st.loans[l.ID] = stored
		return nil
	})
}

func (r *loanRepository) filter(match func(domain.Loan) bool) ([]domain.Loan, error) {
	var out []domain.Loan
	err := r.v.do(func(st *state) error {
		for _, l := range st.loans {
			if match(l) {
				out = append(out, l)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Loan) int { return newestFirst(a.CreatedOn, b.CreatedOn, a.ID, b.ID) })
	return out, err
}

func (r *loanRepository) ListByUser(_ context.Context, userID int32, status domain.LoanStatus) ([]domain.Loan, error) {
	return r.filter(func(l domain.Loan) bool { return l.UserID == userID && (status == "" || l.Status == status) })
}

func (r *loanRepository) ListByGroup(_ context.Context, groupID int32, status domain.LoanStatus) ([]domain.Loan, error) {
	return r.filter(func(l domain.Loan) bool { return l.GroupID == groupID && (status == "" || l.Status == status) })
}

func (r *loanRepository) ListByStatuses(_ context.Context, statuses []domain.LoanStatus) ([]domain.Loan, error) {
	out, err := r.filter(func(l domain.Loan) bool { return slices.Contains(statuses, l.Status) })
	slices.SortFunc(out, func(a, b domain.Loan) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r *loanRepository) CreateRepayments(_ context.Context, repayments []domain.LoanRepayment) error {
	return r.v.do(func(st *state) error {
		for i := range repayments {
			if _, ok := st.loans[repayments[i].LoanID]; !ok {
				return domain.ErrNotFound
			}
			repayments[i].ID = st.next("repayments")
			st.repayments[repayments[i].ID] = repayments[i]
		}
		return nil
	})
}

func (r *loanRepository) ListRepayments(_ context.Context, loanID int32) ([]domain.LoanRepayment, error) {
	var out []domain.LoanRepayment
	err := r.v.do(func(st *state) error {
		for _, p := range st.repayments {
			if p.LoanID == loanID {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.LoanRepayment) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, err
}

func (r *loanRepository) UpdateRepayment(_ context.Context, p *domain.LoanRepayment) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.repayments[p.ID]; !ok {
			return domain.ErrNotFound
		}
		st.repayments[p.ID] = *p
		return nil
	})
}

type loanSettingsRepository struct{ v *view }

func (r *loanSettingsRepository) Get(_ context.Context, groupID int32) (*domain.LoanSettings, error) {
	var out domain.LoanSettings
	err := r.v.do(func(st *state) error {
		s, ok := st.settings[groupID]
		if !ok {
			return domain.ErrNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *loanSettingsRepository) CreateIfMissing(_ context.Context, s *domain.LoanSettings) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.groups[s.GroupID]; !ok {
			return domain.ErrNotFound
		}
		if _, ok := st.settings[s.GroupID]; ok {
			return nil
		}
		s.UpdatedOn = now()
		st.settings[s.GroupID] = *s
		return nil
	})
}

func (r *loanSettingsRepository) Update(_ context.Context, s *domain.LoanSettings) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.settings[s.GroupID]; !ok {
			return domain.ErrNotFound
		}
		s.UpdatedOn = now()
		st.settings[s.GroupID] = *s
		return nil
	})
}

type notificationRepository struct{ v *view }

func (r *notificationRepository) Create(_ context.Context, n *domain.Notification) error {
	return r.v.do(func(st *state) error {
		n.ID = st.next("notifications")
		if n.CreatedOn.IsZero() {
			n.CreatedOn = now()
		}
		st.notifications[n.ID] = *n
		return nil
	})
}

func (r *notificationRepository) List(_ context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	var all []domain.Notification
	err := r.v.do(func(st *state) error {
		for _, n := range st.notifications {
			if n.RecipientID == userID {
				all = append(all, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	slices.SortFunc(all, func(a, b domain.Notification) int { return newestFirst(a.CreatedOn, b.CreatedOn, a.ID, b.ID) })

	total := int32(len(all))
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *notificationRepository) MarkAsRead(_ context.Context, id, userID int32) error {
	return r.v.do(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.RecipientID != userID {
			return fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
		}
		n.IsRead = true
		st.notifications[id] = n
		return nil
	})
}

func (r *notificationRepository) MarkEmailed(_ context.Context, id int32) error {
	return r.v.do(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return domain.ErrNotFound
		}
		n.Emailed = true
		st.notifications[id] = n
		return nil
	})
}
