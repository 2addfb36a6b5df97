package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

func (s WithdrawalStatus) IsValid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusRejected:
		return true
	}
	return false
}

func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	st := WithdrawalStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown withdrawal status %q", ErrInvalidInput, s)
	}
	return st, nil
}

type WithdrawalDecision string

const (
	WithdrawalDecisionApprove WithdrawalDecision = "approve"
	WithdrawalDecisionReject  WithdrawalDecision = "reject"
)

func ParseWithdrawalDecision(s string) (WithdrawalDecision, error) {
	switch d := WithdrawalDecision(s); d {
	case WithdrawalDecisionApprove, WithdrawalDecisionReject:
		return d, nil
	}
	return "", fmt.Errorf("%w: decision must be approve or reject, got %q", ErrInvalidInput, s)
}

type WithdrawalRequest struct {
	ID            int32            `json:"id"`
	UserID        int32            `json:"user_id"`
	GroupID       int32            `json:"group_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Description   string           `json:"description"`
	Status        WithdrawalStatus `json:"status"`
	AdminID       *int32           `json:"admin_id,omitempty"`
	AdminComment  string           `json:"admin_comment"`
	TransactionID *int32           `json:"transaction_id,omitempty"`
	CreatedOn     time.Time        `json:"created_on"`
	UpdatedOn     time.Time        `json:"updated_on"`
}
