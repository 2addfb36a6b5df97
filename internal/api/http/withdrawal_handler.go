package http

import (
	"net/http"

	"chama-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type submitWithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type decideWithdrawalRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

func (h *Handler) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitWithdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wr, err := h.svc.Withdrawals.Submit(r.Context(), userID, groupID, req.Amount, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

func (h *Handler) DecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, requestID, err := callerAndPath(r, "requestID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req decideWithdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	decision, err := domain.ParseWithdrawalDecision(req.Decision)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wr, err := h.svc.Withdrawals.Decide(r.Context(), requestID, adminID, decision, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, requestID, err := callerAndPath(r, "requestID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	wr, err := h.svc.Withdrawals.GetWithdrawal(r.Context(), userID, requestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (h *Handler) ListMyWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.Withdrawals.ListMyWithdrawals(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ListGroupWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.Withdrawals.ListGroupWithdrawals(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	adminID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.Withdrawals.ListPending(r.Context(), adminID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
