package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusPaid      LoanStatus = "paid"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

// OutstandingLoanStatuses are the states in which a loan can take repayments.
var OutstandingLoanStatuses = []LoanStatus{LoanStatusApproved, LoanStatusActive}

func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusRejected,
		LoanStatusActive, LoanStatusPaid, LoanStatusDefaulted:
		return true
	}
	return false
}

func (s LoanStatus) IsOutstanding() bool {
	return s == LoanStatusApproved || s == LoanStatusActive
}

func ParseLoanStatus(s string) (LoanStatus, error) {
	st := LoanStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown loan status %q", ErrInvalidInput, s)
	}
	return st, nil
}

type RepaymentStatus string

const (
	RepaymentStatusPending RepaymentStatus = "pending"
	RepaymentStatusPartial RepaymentStatus = "partial"
	RepaymentStatusPaid    RepaymentStatus = "paid"
	RepaymentStatusLate    RepaymentStatus = "late"
)

func (s RepaymentStatus) IsValid() bool {
	switch s {
	case RepaymentStatusPending, RepaymentStatusPartial, RepaymentStatusPaid, RepaymentStatusLate:
		return true
	}
	return false
}

type Loan struct {
	ID              int32           `json:"id"`
	UserID          int32           `json:"user_id"`
	GroupID         int32           `json:"group_id"`
	Amount          decimal.Decimal `json:"amount"`
	Purpose         string          `json:"purpose"`
	InterestRate    decimal.Decimal `json:"interest_rate"`
	DurationWeeks   int32           `json:"duration_weeks"`
	Status          LoanStatus      `json:"status"`
	ApprovedBy      *int32          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedOn       time.Time       `json:"created_on"`
	UpdatedOn       time.Time       `json:"updated_on"`
	Repayments      []LoanRepayment `json:"repayments,omitempty"`
}

// TotalPayable is principal × (1 + interest_rate/100), rounded to cents.
func (l *Loan) TotalPayable() decimal.Decimal {
	return TotalPayable(l.Amount, l.InterestRate)
}

func TotalPayable(principal, interestRate decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(interestRate.Div(decimal.NewFromInt(100)))
	return principal.Mul(factor).Round(AmountScale)
}

// OutstandingBalance subtracts everything paid so far, partial installments
// included, from the total payable.
func (l *Loan) OutstandingBalance(repayments []LoanRepayment) decimal.Decimal {
	paid := decimal.Zero
	for _, r := range repayments {
		paid = paid.Add(r.AmountPaid)
	}
	return l.TotalPayable().Sub(paid)
}

type LoanRepayment struct {
	ID         int32           `json:"id"`
	LoanID     int32           `json:"loan_id"`
	Amount     decimal.Decimal `json:"amount"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	DueDate    time.Time       `json:"due_date"`
	Status     RepaymentStatus `json:"status"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

// IsOverdue reports whether the installment is unpaid and past its due date.
func (r LoanRepayment) IsOverdue(now time.Time) bool {
	return r.Status != RepaymentStatusPaid && now.After(r.DueDate)
}

// Apply records a payment against this installment. Amounts accumulate so a
// second payment on a partial installment tops it up instead of replacing it.
func (r *LoanRepayment) Apply(amount decimal.Decimal, now time.Time) {
	r.AmountPaid = r.AmountPaid.Add(amount)
	r.PaidAt = &now
	if r.AmountPaid.GreaterThanOrEqual(r.Amount) {
		r.Status = RepaymentStatusPaid
	} else {
		r.Status = RepaymentStatusPartial
	}
}

// BuildSchedule splits the total payable into weeks equal installments due one
// week apart starting a week after approvedAt. Installments are rounded to
// cents and the last one absorbs the rounding remainder.
func BuildSchedule(loanID int32, principal, interestRate decimal.Decimal, weeks int32, approvedAt time.Time) []LoanRepayment {
	if weeks <= 0 {
		return nil
	}
	total := TotalPayable(principal, interestRate)
	installment := total.DivRound(decimal.NewFromInt32(weeks), AmountScale)
	last := total.Sub(installment.Mul(decimal.NewFromInt32(weeks - 1)))

	schedule := make([]LoanRepayment, 0, weeks)
	for k := int32(1); k <= weeks; k++ {
		amount := installment
		if k == weeks {
			amount = last
		}
		schedule = append(schedule, LoanRepayment{
			LoanID:     loanID,
			Amount:     amount,
			AmountPaid: decimal.Zero,
			DueDate:    approvedAt.AddDate(0, 0, 7*int(k)),
			Status:     RepaymentStatusPending,
		})
	}
	return schedule
}

// NextUnpaid returns the earliest-due installment that is not fully paid, or nil.
func NextUnpaid(repayments []LoanRepayment) *LoanRepayment {
	ordered := make([]int, 0, len(repayments))
	for i := range repayments {
		if repayments[i].Status != RepaymentStatusPaid {
			ordered = append(ordered, i)
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		ra, rb := repayments[ordered[a]], repayments[ordered[b]]
		if ra.DueDate.Equal(rb.DueDate) {
			return ra.ID < rb.ID
		}
		return ra.DueDate.Before(rb.DueDate)
	})
	return &repayments[ordered[0]]
}

type LoanSettings struct {
	GroupID           int32           `json:"group_id"`
	MaxLoanMultiplier decimal.Decimal `json:"max_loan_multiplier"`
	BaseInterestRate  decimal.Decimal `json:"base_interest_rate"`
	MinRepaymentWeeks int32           `json:"min_repayment_period"`
	MaxRepaymentWeeks int32           `json:"max_repayment_period"`
	LatePenaltyRate   decimal.Decimal `json:"late_penalty_rate"`
	UpdatedOn         time.Time       `json:"updated_on"`
}

func DefaultLoanSettings(groupID int32) LoanSettings {
	return LoanSettings{
		GroupID:           groupID,
		MaxLoanMultiplier: decimal.NewFromFloat(3.0),
		BaseInterestRate:  decimal.NewFromFloat(10.0),
		MinRepaymentWeeks: 4,
		MaxRepaymentWeeks: 12,
		LatePenaltyRate:   decimal.NewFromFloat(2.0),
	}
}

func (s LoanSettings) Validate() error {
	if !s.MaxLoanMultiplier.IsPositive() {
		return fmt.Errorf("%w: max loan multiplier must be positive", ErrInvalidInput)
	}
	if s.BaseInterestRate.IsNegative() {
		return fmt.Errorf("%w: interest rate cannot be negative", ErrInvalidInput)
	}
	if s.LatePenaltyRate.IsNegative() {
		return fmt.Errorf("%w: late penalty rate cannot be negative", ErrInvalidInput)
	}
	if s.MinRepaymentWeeks < 1 || s.MaxRepaymentWeeks < s.MinRepaymentWeeks {
		return fmt.Errorf("%w: repayment period must satisfy 1 <= min <= max", ErrInvalidInput)
	}
	return nil
}

func (s LoanSettings) AllowsDuration(weeks int32) bool {
	return weeks >= s.MinRepaymentWeeks && weeks <= s.MaxRepaymentWeeks
}

type LoanEligibility struct {
	GroupID           int32           `json:"group_id"`
	UserID            int32           `json:"user_id"`
	NetSavings        decimal.Decimal `json:"net_savings"`
	Multiplier        decimal.Decimal `json:"multiplier"`
	EligibleAmount    decimal.Decimal `json:"eligible_amount"`
	InterestRate      decimal.Decimal `json:"interest_rate"`
	MinRepaymentWeeks int32           `json:"min_repayment_period"`
	MaxRepaymentWeeks int32           `json:"max_repayment_period"`
}

// EligibleAmount is net savings times the group's multiplier, floored at zero.
func EligibleAmount(netSavings decimal.Decimal, settings LoanSettings) decimal.Decimal {
	amount := netSavings.Mul(settings.MaxLoanMultiplier)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

type LoanStats struct {
	GroupID          int32                `json:"group_id"`
	Total            int32                `json:"total"`
	ByStatus         map[LoanStatus]int32 `json:"by_status"`
	TotalDisbursed   decimal.Decimal      `json:"total_disbursed"`
	TotalOutstanding decimal.Decimal      `json:"total_outstanding"`
}

type RepaymentResult struct {
	Loan        *Loan           `json:"loan"`
	Installment *LoanRepayment  `json:"installment"`
	Outstanding decimal.Decimal `json:"outstanding"`
}
