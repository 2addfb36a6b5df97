package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type NotificationKind string

const (
	NotificationKindContribution       NotificationKind = "CONTRIBUTION"
	NotificationKindWithdrawalRequest  NotificationKind = "WITHDRAWAL_REQUEST"
	NotificationKindWithdrawalApproved NotificationKind = "WITHDRAWAL_APPROVED"
	NotificationKindWithdrawalRejected NotificationKind = "WITHDRAWAL_REJECTED"
	NotificationKindLoanRequest        NotificationKind = "LOAN_REQUEST"
	NotificationKindLoanApproved       NotificationKind = "LOAN_APPROVED"
	NotificationKindLoanRejected       NotificationKind = "LOAN_REJECTED"
	NotificationKindLoanRepayment      NotificationKind = "LOAN_REPAYMENT"
	NotificationKindLoanDueReminder    NotificationKind = "LOAN_DUE_REMINDER"
	NotificationKindLoanDefaulted      NotificationKind = "LOAN_DEFAULTED"
)

type Notification struct {
	ID              int32               `json:"id"`
	RecipientID     int32               `json:"recipient_id"`
	SenderID        *int32              `json:"sender_id,omitempty"`
	GroupID         int32               `json:"group_id"`
	Kind            NotificationKind    `json:"kind"`
	Title           string              `json:"title"`
	Message         string              `json:"message"`
	ReferenceID     *int32              `json:"reference_id,omitempty"`
	ReferenceAmount decimal.NullDecimal `json:"reference_amount"`
	IsRead          bool                `json:"is_read"`
	Emailed         bool                `json:"emailed"`
	CreatedOn       time.Time           `json:"created_on"`
}
