package http

import (
	"net/http"

	"chama-backend/internal/logger"
	"chama-backend/internal/payment"

	"github.com/shopspring/decimal"
)

type contributeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
	Description string          `json:"description"`
}

type cashContributionRequest struct {
	MemberID    int32           `json:"member_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// darajaAck is the acknowledgement body Safaricom expects from a callback URL.
type darajaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.svc.Contributions.Contribute(r.Context(), userID, groupID, req.Amount, req.PhoneNumber, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, entry)
}

func (h *Handler) RecordCashContribution(w http.ResponseWriter, r *http.Request) {
	adminID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req cashContributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.svc.Contributions.RecordCashContribution(r.Context(), adminID, groupID, req.MemberID, req.Amount, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) ListMyTransactions(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := h.svc.Contributions.ListTransactions(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// MpesaCallback always acknowledges so Daraja stops retrying; settlement
// problems are logged and the stale-contribution sweep cleans up.
func (h *Handler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	ack := darajaAck{ResultCode: 0, ResultDesc: "Accepted"}

	cb, err := payment.ParseDarajaCallback(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("Rejected payment callback", "error", err)
		writeJSON(w, http.StatusOK, ack)
		return
	}

	entry, err := h.svc.Contributions.HandleCallback(r.Context(), cb)
	if err != nil {
		logger.Warn("Payment callback not applied",
			"provider_request_id", cb.ProviderRequestID,
			"result_code", cb.ResultCode,
			"error", err,
		)
		writeJSON(w, http.StatusOK, ack)
		return
	}

	logger.Info("Payment callback applied",
		"transaction_id", entry.ID,
		"status", entry.Status,
	)
	writeJSON(w, http.StatusOK, ack)
}
