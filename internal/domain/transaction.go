package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places the money columns store.
const AmountScale = 2

// ValidateAmount rejects non-positive amounts and fractions of a cent.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(AmountScale)) {
		return ErrInvalidAmount
	}
	return nil
}

type TransactionKind string

const (
	TransactionKindContribution     TransactionKind = "CONTRIBUTION"
	TransactionKindWithdrawal       TransactionKind = "WITHDRAWAL"
	TransactionKindLoanDisbursement TransactionKind = "LOAN_DISBURSEMENT"
	TransactionKindLoanRepayment    TransactionKind = "LOAN_REPAYMENT"
)

func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindContribution, TransactionKindWithdrawal,
		TransactionKindLoanDisbursement, TransactionKindLoanRepayment:
		return true
	}
	return false
}

// GroupFundsDelta is the signed effect a completed entry of this kind has on
// Group.CurrentAmount. Repayments are journaled but do not move the pool.
func (k TransactionKind) GroupFundsDelta(amount decimal.Decimal) decimal.Decimal {
	switch k {
	case TransactionKindContribution:
		return amount
	case TransactionKindWithdrawal, TransactionKindLoanDisbursement:
		return amount.Neg()
	}
	return decimal.Zero
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	st := TransactionStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown transaction status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// Transaction is one journal entry. Entries are append-only; a pending entry
// settles to completed or failed exactly once and is immutable afterwards.
type Transaction struct {
	ID               int32             `json:"id"`
	GroupID          int32             `json:"group_id"`
	UserID           int32             `json:"user_id"`
	Amount           decimal.Decimal   `json:"amount"`
	Kind             TransactionKind   `json:"kind"`
	Status           TransactionStatus `json:"status"`
	Description      string            `json:"description"`
	ExternalRef      string            `json:"external_ref,omitempty"`
	ConfirmationCode string            `json:"confirmation_code,omitempty"`
	FailureReason    string            `json:"failure_reason,omitempty"`
	ReferenceID      *int32            `json:"reference_id,omitempty"`
	CreatedOn        time.Time         `json:"created_on"`
	SettledOn        *time.Time        `json:"settled_on,omitempty"`
}

// KindTotals holds the sum of completed amounts per transaction kind.
type KindTotals map[TransactionKind]decimal.Decimal

func (t KindTotals) Get(k TransactionKind) decimal.Decimal {
	if v, ok := t[k]; ok {
		return v
	}
	return decimal.Zero
}

// NetSavings is contributions minus withdrawals. Loans do not affect savings.
func (t KindTotals) NetSavings() decimal.Decimal {
	return t.Get(TransactionKindContribution).Sub(t.Get(TransactionKindWithdrawal))
}

// GroupFunds is what Group.CurrentAmount should equal when the journal is quiescent.
func (t KindTotals) GroupFunds() decimal.Decimal {
	return t.Get(TransactionKindContribution).
		Sub(t.Get(TransactionKindWithdrawal)).
		Sub(t.Get(TransactionKindLoanDisbursement))
}

// PaymentCallback is the provider-neutral outcome of an asynchronous payment.
type PaymentCallback struct {
	ProviderRequestID string
	ResultCode        int
	ConfirmationCode  string
	FailureReason     string
}

func (c PaymentCallback) Succeeded() bool {
	return c.ResultCode == 0
}

type AvailableBalance struct {
	GroupID      int32           `json:"group_id"`
	UserID       int32           `json:"user_id"`
	NetSavings   decimal.Decimal `json:"net_savings"`
	GroupFunds   decimal.Decimal `json:"group_funds"`
	Withdrawable decimal.Decimal `json:"withdrawable"`
}
