package service

import (
	"context"
	"errors"
	"fmt"

	"chama-backend/internal/domain"
	"chama-backend/internal/repository"
)

var domainErrors = []error{
	domain.ErrNotAMember,
	domain.ErrNotAuthorized,
	domain.ErrAlreadyProcessed,
	domain.ErrInsufficientBalance,
	domain.ErrExceedsGroupFunds,
	domain.ErrInvalidAmount,
	domain.ErrNotFound,
	domain.ErrPersistence,
	domain.ErrNotOwner,
	domain.ErrNotActive,
	domain.ErrInvalidInput,
	domain.ErrExceedsEligibility,
}

// persistence wraps storage failures in ErrPersistence. Errors that already
// carry a domain meaning pass through untouched.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

// requireRole is the single authorization guard for group-scoped operations.
// It fails with ErrNotAMember when the user has no membership and with
// ErrNotAuthorized when the membership is below the required role.
func requireRole(ctx context.Context, members repository.MembershipRepository, groupID, userID int32, required domain.MemberRole) (domain.MemberRole, error) {
	role, err := members.GetRole(ctx, groupID, userID)
	if err != nil {
		return domain.MemberRoleNone, persistence("get member role", err)
	}
	if role == domain.MemberRoleNone {
		return role, domain.ErrNotAMember
	}
	if !role.Satisfies(required) {
		return role, domain.ErrNotAuthorized
	}
	return role, nil
}

// requireAdmin is requireRole for approval decisions, where any non-admin
// (member or not) is reported as ErrNotAuthorized.
func requireAdmin(ctx context.Context, members repository.MembershipRepository, groupID, userID int32) error {
	_, err := requireRole(ctx, members, groupID, userID, domain.MemberRoleAdmin)
	if errors.Is(err, domain.ErrNotAMember) {
		return domain.ErrNotAuthorized
	}
	return err
}

// requireGroup fails with ErrGroupNotFound when the group does not exist.
func requireGroup(ctx context.Context, groups repository.GroupRepository, groupID int32) (*domain.Group, error) {
	group, err := groups.GetByID(ctx, groupID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		return nil, persistence("get group", err)
	}
	return group, nil
}

func ptr[T any](v T) *T {
	return &v
}
