package http

import (
	"net/http"

	"chama-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type requestLoanRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Purpose       string          `json:"purpose"`
	DurationWeeks int32           `json:"duration_weeks"`
}

type rejectLoanRequest struct {
	Reason string `json:"reason"`
}

type repayLoanRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type loanBalanceResponse struct {
	LoanID      int32           `json:"loan_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	eligibility, err := h.svc.Loans.CheckEligibility(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibility)
}

func (h *Handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req requestLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := h.svc.Loans.RequestLoan(r.Context(), userID, groupID, req.Amount, req.Purpose, req.DurationWeeks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	adminID, loanID, err := callerAndPath(r, "loanID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := h.svc.Loans.ApproveLoan(r.Context(), loanID, adminID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	adminID, loanID, err := callerAndPath(r, "loanID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rejectLoanRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	loan, err := h.svc.Loans.RejectLoan(r.Context(), loanID, adminID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	userID, loanID, err := callerAndPath(r, "loanID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req repayLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.svc.Loans.Repay(r.Context(), loanID, userID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	userID, loanID, err := callerAndPath(r, "loanID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := h.svc.Loans.GetLoan(r.Context(), userID, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) GetLoanBalance(w http.ResponseWriter, r *http.Request) {
	userID, loanID, err := callerAndPath(r, "loanID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	outstanding, err := h.svc.Loans.OutstandingBalance(r.Context(), userID, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanBalanceResponse{LoanID: loanID, Outstanding: outstanding})
}

func (h *Handler) ListMyLoans(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := loanStatusFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	loans, err := h.svc.Loans.ListMyLoans(r.Context(), userID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *Handler) ListGroupLoans(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := loanStatusFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	loans, err := h.svc.Loans.ListGroupLoans(r.Context(), userID, groupID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *Handler) GetLoanStats(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.svc.Loans.GetLoanStats(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetLoanSettings(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := h.svc.Loans.GetSettings(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) UpdateLoanSettings(w http.ResponseWriter, r *http.Request) {
	adminID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var settings domain.LoanSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, r, err)
		return
	}
	settings.GroupID = groupID
	updated, err := h.svc.Loans.UpdateSettings(r.Context(), adminID, settings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
