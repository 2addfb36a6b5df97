package service

import (
	"context"
	"fmt"
	"strings"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type groupService struct {
	store repository.Store
}

func NewGroupService(store repository.Store) GroupService {
	return &groupService{store: store}
}

// CreateGroup creates the group with zero funds and makes the creator its admin.
func (s *groupService) CreateGroup(ctx context.Context, creatorID int32, name, description string, target decimal.Decimal) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", domain.ErrInvalidInput)
	}
	if target.IsNegative() {
		return nil, fmt.Errorf("%w: target amount cannot be negative", domain.ErrInvalidInput)
	}
	if !target.Equal(target.Round(domain.AmountScale)) {
		return nil, domain.ErrInvalidAmount
	}

	group := &domain.Group{
		Name:          name,
		Description:   description,
		TargetAmount:  target,
		CurrentAmount: decimal.Zero,
		CreatedBy:     creatorID,
	}
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Users.GetByID(ctx, creatorID); err != nil {
			return persistence("get creator", err)
		}
		if err := repos.Groups.Create(ctx, group); err != nil {
			return persistence("create group", err)
		}
		member := &domain.GroupMember{GroupID: group.ID, UserID: creatorID, Role: domain.MemberRoleAdmin}
		if err := repos.Members.Add(ctx, member); err != nil {
			return persistence("add group admin", err)
		}
		defaults := domain.DefaultLoanSettings(group.ID)
		return persistence("create loan settings", repos.LoanSettings.CreateIfMissing(ctx, &defaults))
	})
	if err != nil {
		return nil, persistence("create group", err)
	}
	logger.WithGroup(group.ID).Info("Group created", "creator_id", creatorID)
	return group, nil
}

func (s *groupService) GetGroup(ctx context.Context, userID, groupID int32) (*domain.Group, error) {
	repos := s.store.Repos()
	group, err := requireGroup(ctx, repos.Groups, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *groupService) AddMember(ctx context.Context, adminID, groupID, userID int32, role domain.MemberRole) (*domain.GroupMember, error) {
	if role == "" {
		role = domain.MemberRoleMember
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown member role %q", domain.ErrInvalidInput, role)
	}

	member := &domain.GroupMember{GroupID: groupID, UserID: userID, Role: role}
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if _, err := requireGroup(ctx, repos.Groups, groupID); err != nil {
			return err
		}
		if err := requireAdmin(ctx, repos.Members, groupID, adminID); err != nil {
			return err
		}
		if _, err := repos.Users.GetByID(ctx, userID); err != nil {
			return persistence("get user", err)
		}
		return persistence("add member", repos.Members.Add(ctx, member))
	})
	if err != nil {
		return nil, persistence("add member", err)
	}
	logger.WithGroup(groupID).Info("Member added", "user_id", userID, "role", role, "admin_id", adminID)
	return member, nil
}

func (s *groupService) ListMembers(ctx context.Context, userID, groupID int32) ([]domain.GroupMember, error) {
	repos := s.store.Repos()
	if _, err := requireGroup(ctx, repos.Groups, groupID); err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, repos.Members, groupID, userID, domain.MemberRoleMember); err != nil {
		return nil, err
	}
	members, err := repos.Members.ListMembers(ctx, groupID)
	return members, persistence("list members", err)
}
