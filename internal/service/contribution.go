package service

import (
	"context"
	"fmt"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"
	"chama-backend/internal/payment"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type contributionService struct {
	store      repository.Store
	gateway    payment.Gateway
	dispatcher NotificationDispatcher
}

func NewContributionService(store repository.Store, gateway payment.Gateway, dispatcher NotificationDispatcher) ContributionService {
	return &contributionService{store: store, gateway: gateway, dispatcher: dispatcher}
}

// Contribute records a pending CONTRIBUTION and asks the gateway to collect
// it. The entry only counts toward balances once the provider confirms it.
func (s *contributionService) Contribute(ctx context.Context, userID, groupID int32, amount decimal.Decimal, phone, description string) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var entry *domain.Transaction
	var group *domain.Group
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		group, err = requireGroup(ctx, repos.Groups, groupID)
		if err != nil {
			return err
		}
		if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
			return err
		}
		if phone == "" {
			user, err := repos.Users.GetByID(ctx, userID)
			if err != nil {
				return persistence("get user", err)
			}
			phone = user.PhoneNumber
		}
		if phone, err = payment.NormalizePhone(phone); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		if description == "" {
			description = "Contribution to " + group.Name
		}

		entry = &domain.Transaction{
			GroupID:     groupID,
			UserID:      userID,
			Amount:      amount,
			Kind:        domain.TransactionKindContribution,
			Status:      domain.TransactionStatusPending,
			Description: description,
		}
		return persistence("append contribution entry", repos.Transactions.Append(ctx, entry))
	})
	if err != nil {
		return nil, persistence("contribute", err)
	}

	res, err := s.gateway.Initiate(ctx, payment.InitiateRequest{
		Phone:            phone,
		Amount:           amount,
		AccountReference: fmt.Sprintf("Group-%d", groupID),
		Description:      description,
	})
	if err != nil {
		logger.Swallowed("initiate payment", err, "transaction_id", entry.ID, "gateway", s.gateway.Name())
		s.failEntry(ctx, entry, "payment initiation failed: "+err.Error())
		return entry, nil
	}

	if err := s.recordExternalRef(ctx, entry.ID, res.ProviderRequestID); err != nil {
		// The member was already prompted; the callback cannot be matched
		// without the reference, so this needs manual reconciliation.
		logger.ErrorContext(ctx, "Failed to store provider reference for initiated contribution",
			"error", err, "transaction_id", entry.ID, "provider_request_id", res.ProviderRequestID,
			"group_id", groupID, "user_id", userID, "gateway", s.gateway.Name())
		return entry, nil
	}
	entry.ExternalRef = res.ProviderRequestID
	logger.Info("Contribution initiated", "transaction_id", entry.ID, "group_id", groupID, "user_id", userID, "provider_request_id", res.ProviderRequestID)
	return entry, nil
}

// recordExternalRef retries the write once before giving up.
func (s *contributionService) recordExternalRef(ctx context.Context, id int32, ref string) error {
	txs := s.store.Repos().Transactions
	err := txs.SetExternalRef(ctx, id, ref)
	if err == nil {
		return nil
	}
	logger.Swallowed("store provider reference", err, "transaction_id", id, "provider_request_id", ref, "attempt", 1)
	return txs.SetExternalRef(ctx, id, ref)
}

func (s *contributionService) failEntry(ctx context.Context, entry *domain.Transaction, reason string) {
	entry.Status = domain.TransactionStatusFailed
	entry.FailureReason = reason
	if err := s.store.Repos().Transactions.Settle(ctx, entry); err != nil {
		logger.Swallowed("mark contribution failed", err, "transaction_id", entry.ID)
		return
	}
	metrics.ContributionSettlements.WithLabelValues(string(entry.Status)).Inc()
}

// HandleCallback settles the matching pending entry exactly once. A repeated
// callback returns ErrAlreadyProcessed and changes nothing.
func (s *contributionService) HandleCallback(ctx context.Context, cb domain.PaymentCallback) (*domain.Transaction, error) {
	var entry *domain.Transaction
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		entry, err = repos.Transactions.GetByExternalRef(ctx, cb.ProviderRequestID)
		if err != nil {
			return persistence("find transaction by reference", err)
		}
		if entry.Kind != domain.TransactionKindContribution {
			return fmt.Errorf("%w: reference %s is not a contribution", domain.ErrInvalidInput, cb.ProviderRequestID)
		}
		if entry.Status != domain.TransactionStatusPending {
			return domain.ErrAlreadyProcessed
		}

		settled := time.Now()
		entry.SettledOn = &settled
		if cb.Succeeded() {
			entry.Status = domain.TransactionStatusCompleted
			entry.ConfirmationCode = cb.ConfirmationCode
		} else {
			entry.Status = domain.TransactionStatusFailed
			entry.FailureReason = cb.FailureReason
		}
		if err := repos.Transactions.Settle(ctx, entry); err != nil {
			return persistence("settle contribution", err)
		}
		if entry.Status != domain.TransactionStatusCompleted {
			return nil
		}
		return persistence("adjust group funds", repos.Groups.AdjustCurrentAmount(ctx, entry.GroupID, entry.Kind.GroupFundsDelta(entry.Amount)))
	})
	if err != nil {
		return nil, persistence("handle payment callback", err)
	}

	logger.Transition("transaction", entry.ID, string(domain.TransactionStatusPending), string(entry.Status), "provider_request_id", cb.ProviderRequestID)
	metrics.ContributionSettlements.WithLabelValues(string(entry.Status)).Inc()
	if entry.Status == domain.TransactionStatusCompleted {
		notifyAll(ctx, s.dispatcher, contributionNote(entry, nil))
	}
	return entry, nil
}

func (s *contributionService) RecordCashContribution(ctx context.Context, adminID, groupID, memberID int32, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var entry *domain.Transaction
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if _, err := requireGroup(ctx, repos.Groups, groupID); err != nil {
			return err
		}
		if err := requireAdmin(ctx, repos.Members, groupID, adminID); err != nil {
			return err
		}
		if _, err := requireRole(ctx, repos.Members, groupID, memberID, domain.MemberRoleMember); err != nil {
			return err
		}
		if description == "" {
			description = "Cash contribution"
		}

		settled := time.Now()
		entry = &domain.Transaction{
			GroupID:     groupID,
			UserID:      memberID,
			Amount:      amount,
			Kind:        domain.TransactionKindContribution,
			Status:      domain.TransactionStatusCompleted,
			Description: description,
			SettledOn:   &settled,
		}
		if err := repos.Transactions.Append(ctx, entry); err != nil {
			return persistence("append contribution entry", err)
		}
		return persistence("adjust group funds", repos.Groups.AdjustCurrentAmount(ctx, groupID, entry.Kind.GroupFundsDelta(amount)))
	})
	if err != nil {
		return nil, persistence("record cash contribution", err)
	}

	logger.Info("Cash contribution recorded", "transaction_id", entry.ID, "group_id", groupID, "member_id", memberID, "admin_id", adminID)
	metrics.ContributionSettlements.WithLabelValues(string(entry.Status)).Inc()
	notifyAll(ctx, s.dispatcher, contributionNote(entry, ptr(adminID)))
	return entry, nil
}

func contributionNote(entry *domain.Transaction, sender *int32) *domain.Notification {
	return &domain.Notification{
		RecipientID:     entry.UserID,
		SenderID:        sender,
		GroupID:         entry.GroupID,
		Kind:            domain.NotificationKindContribution,
		Title:           "Contribution received",
		Message:         fmt.Sprintf("Your contribution of %s has been received", entry.Amount.StringFixed(2)),
		ReferenceID:     ptr(entry.ID),
		ReferenceAmount: decimal.NewNullDecimal(entry.Amount),
	}
}

func (s *contributionService) ListTransactions(ctx context.Context, userID, groupID int32) ([]domain.Transaction, error) {
	repos := s.store.Repos()
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	txs, err := repos.Transactions.ListByMember(ctx, groupID, userID)
	if err != nil {
		return nil, persistence("list transactions", err)
	}
	return txs, nil
}
