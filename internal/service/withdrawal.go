package service

import (
	"context"
	"fmt"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type withdrawalService struct {
	store      repository.Store
	dispatcher NotificationDispatcher
}

func NewWithdrawalService(store repository.Store, dispatcher NotificationDispatcher) WithdrawalService {
	return &withdrawalService{store: store, dispatcher: dispatcher}
}

// checkFunds validates amount against the member's net savings and the
// group's current funds, in that order.
func checkFunds(ctx context.Context, repos repository.Repositories, group *domain.Group, userID int32, amount decimal.Decimal) error {
	net, err := netSavings(ctx, repos.Transactions, group.ID, userID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(net) {
		return domain.ErrInsufficientBalance
	}
	if amount.GreaterThan(group.CurrentAmount) {
		return domain.ErrExceedsGroupFunds
	}
	return nil
}

func (s *withdrawalService) Submit(ctx context.Context, userID, groupID int32, amount decimal.Decimal, description string) (*domain.WithdrawalRequest, error) {
	log := logger.WithMethod("WithdrawalService.Submit")
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var req *domain.WithdrawalRequest
	var notes []*domain.Notification
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		group, err := requireGroup(ctx, repos.Groups, groupID)
		if err != nil {
			return err
		}
		if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
			return err
		}
		if err := checkFunds(ctx, repos, group, userID, amount); err != nil {
			return err
		}

		req = &domain.WithdrawalRequest{
			UserID:      userID,
			GroupID:     groupID,
			Amount:      amount,
			Description: description,
			Status:      domain.WithdrawalStatusPending,
		}
		if err := repos.Withdrawals.Create(ctx, req); err != nil {
			return persistence("create withdrawal request", err)
		}

		notes = adminNotes(ctx, repos.Members, domain.Notification{
			SenderID:        ptr(userID),
			GroupID:         groupID,
			Kind:            domain.NotificationKindWithdrawalRequest,
			Title:           "New withdrawal request",
			Message:         fmt.Sprintf("A member requested a withdrawal of %s from %s", amount.StringFixed(2), group.Name),
			ReferenceID:     ptr(req.ID),
			ReferenceAmount: decimal.NewNullDecimal(amount),
		})
		return nil
	})
	if err != nil {
		return nil, persistence("submit withdrawal", err)
	}

	log.Info("Withdrawal requested", "request_id", req.ID, "user_id", userID, "group_id", groupID, "amount", amount)
	notifyAll(ctx, s.dispatcher, notes...)
	return req, nil
}

func (s *withdrawalService) Decide(ctx context.Context, requestID, adminID int32, decision domain.WithdrawalDecision, comment string) (*domain.WithdrawalRequest, error) {
	if _, err := domain.ParseWithdrawalDecision(string(decision)); err != nil {
		return nil, err
	}

	var req *domain.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		req, err = repos.Withdrawals.GetForUpdate(ctx, requestID)
		if err != nil {
			return persistence("lock withdrawal request", err)
		}
		if err := requireAdmin(ctx, repos.Members, req.GroupID, adminID); err != nil {
			return err
		}
		if req.Status != domain.WithdrawalStatusPending {
			return domain.ErrAlreadyProcessed
		}

		req.AdminID = ptr(adminID)
		req.AdminComment = comment
		if decision == domain.WithdrawalDecisionReject {
			req.Status = domain.WithdrawalStatusRejected
			return persistence("update withdrawal request", repos.Withdrawals.Update(ctx, req))
		}

		group, err := repos.Groups.GetForUpdate(ctx, req.GroupID)
		if err != nil {
			return persistence("lock group", err)
		}
		if err := checkFunds(ctx, repos, group, req.UserID, req.Amount); err != nil {
			return err
		}

		settled := time.Now()
		entry := &domain.Transaction{
			GroupID:     req.GroupID,
			UserID:      req.UserID,
			Amount:      req.Amount,
			Kind:        domain.TransactionKindWithdrawal,
			Status:      domain.TransactionStatusCompleted,
			Description: req.Description,
			ReferenceID: ptr(req.ID),
			SettledOn:   &settled,
		}
		if err := repos.Transactions.Append(ctx, entry); err != nil {
			return persistence("append withdrawal entry", err)
		}
		if err := repos.Groups.AdjustCurrentAmount(ctx, req.GroupID, entry.Kind.GroupFundsDelta(entry.Amount)); err != nil {
			return persistence("adjust group funds", err)
		}
		req.Status = domain.WithdrawalStatusApproved
		req.TransactionID = ptr(entry.ID)
		return persistence("update withdrawal request", repos.Withdrawals.Update(ctx, req))
	})
	if err != nil {
		return nil, persistence("decide withdrawal", err)
	}

	logger.Transition("withdrawal", req.ID, string(domain.WithdrawalStatusPending), string(req.Status), "admin_id", adminID)
	metrics.WithdrawalDecisions.WithLabelValues(string(req.Status)).Inc()

	note := &domain.Notification{
		RecipientID:     req.UserID,
		SenderID:        ptr(adminID),
		GroupID:         req.GroupID,
		ReferenceID:     ptr(req.ID),
		ReferenceAmount: decimal.NewNullDecimal(req.Amount),
	}
	if req.Status == domain.WithdrawalStatusApproved {
		note.Kind = domain.NotificationKindWithdrawalApproved
		note.Title = "Withdrawal approved"
		note.Message = fmt.Sprintf("Your withdrawal of %s has been approved", req.Amount.StringFixed(2))
	} else {
		note.Kind = domain.NotificationKindWithdrawalRejected
		note.Title = "Withdrawal rejected"
		note.Message = fmt.Sprintf("Your withdrawal of %s was rejected", req.Amount.StringFixed(2))
	}
	if comment != "" {
		note.Message += ": " + comment
	}
	notifyAll(ctx, s.dispatcher, note)
	return req, nil
}

func (s *withdrawalService) GetWithdrawal(ctx context.Context, userID, requestID int32) (*domain.WithdrawalRequest, error) {
	repos := s.store.Repos()
	req, err := repos.Withdrawals.GetByID(ctx, requestID)
	if err != nil {
		return nil, persistence("get withdrawal request", err)
	}
	if req.UserID != userID {
		if err := requireAdmin(ctx, repos.Members, req.GroupID, userID); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (s *withdrawalService) ListPending(ctx context.Context, adminID, groupID int32) ([]domain.WithdrawalRequest, error) {
	repos := s.store.Repos()
	if err := requireAdmin(ctx, repos.Members, groupID, adminID); err != nil {
		return nil, err
	}
	reqs, err := repos.Withdrawals.ListByGroup(ctx, groupID, domain.WithdrawalStatusPending)
	return reqs, persistence("list pending withdrawals", err)
}

func (s *withdrawalService) ListMyWithdrawals(ctx context.Context, userID int32) ([]domain.WithdrawalRequest, error) {
	reqs, err := s.store.Repos().Withdrawals.ListByUser(ctx, userID)
	return reqs, persistence("list user withdrawals", err)
}

func (s *withdrawalService) ListGroupWithdrawals(ctx context.Context, userID, groupID int32) ([]domain.WithdrawalRequest, error) {
	repos := s.store.Repos()
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	reqs, err := repos.Withdrawals.ListByGroup(ctx, groupID, "")
	return reqs, persistence("list group withdrawals", err)
}
