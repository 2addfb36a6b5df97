package service

import (
	"context"

	"chama-backend/internal/domain"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type balanceService struct {
	store repository.Store
}

func NewBalanceService(store repository.Store) BalanceService {
	return &balanceService{store: store}
}

// netSavings is completed contributions minus completed withdrawals for one
// member of one group. Pending and failed entries never count.
func netSavings(ctx context.Context, txRepo repository.TransactionRepository, groupID, userID int32) (decimal.Decimal, error) {
	totals, err := txRepo.SumCompletedByMember(ctx, groupID, userID)
	if err != nil {
		return decimal.Zero, persistence("sum member transactions", err)
	}
	return totals.NetSavings(), nil
}

func (s *balanceService) NetSavings(ctx context.Context, groupID, userID int32) (decimal.Decimal, error) {
	repos := s.store.Repos()
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return decimal.Zero, err
	}
	return netSavings(ctx, repos.Transactions, groupID, userID)
}

func (s *balanceService) GetAvailableBalance(ctx context.Context, groupID, userID int32) (*domain.AvailableBalance, error) {
	repos := s.store.Repos()
	group, err := requireGroup(ctx, repos.Groups, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	net, err := netSavings(ctx, repos.Transactions, groupID, userID)
	if err != nil {
		return nil, err
	}

	withdrawable := decimal.Min(net, group.CurrentAmount)
	if withdrawable.IsNegative() {
		withdrawable = decimal.Zero
	}
	return &domain.AvailableBalance{
		GroupID:      groupID,
		UserID:       userID,
		NetSavings:   net,
		GroupFunds:   group.CurrentAmount,
		Withdrawable: withdrawable,
	}, nil
}
