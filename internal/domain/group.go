package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Group struct {
	ID            int32           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	CreatedBy     int32           `json:"created_by"`
	CreatedOn     time.Time       `json:"created_on"`
}

// MemberRole is the caller's standing in a group. MemberRoleNone is never persisted.
type MemberRole string

const (
	MemberRoleNone   MemberRole = "none"
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

func (r MemberRole) IsValid() bool {
	switch r {
	case MemberRoleMember, MemberRoleAdmin:
		return true
	}
	return false
}

// Satisfies reports whether r grants at least the privileges of required.
func (r MemberRole) Satisfies(required MemberRole) bool {
	switch required {
	case MemberRoleAdmin:
		return r == MemberRoleAdmin
	case MemberRoleMember:
		return r == MemberRoleMember || r == MemberRoleAdmin
	}
	return true
}

func ParseMemberRole(s string) (MemberRole, error) {
	r := MemberRole(s)
	if !r.IsValid() {
		return "", fmt.Errorf("%w: unknown member role %q", ErrInvalidInput, s)
	}
	return r, nil
}

type GroupMember struct {
	GroupID  int32      `json:"group_id"`
	UserID   int32      `json:"user_id"`
	Role     MemberRole `json:"role"`
	JoinedOn time.Time  `json:"joined_on"`
}
