package http

import (
	"net/http"

	"chama-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type createGroupRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	TargetAmount decimal.Decimal `json:"target_amount"`
}

type addMemberRequest struct {
	UserID int32             `json:"user_id"`
	Role   domain.MemberRole `json:"role"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := h.svc.Groups.CreateGroup(r.Context(), userID, req.Name, req.Description, req.TargetAmount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	group, err := h.svc.Groups.GetGroup(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	adminID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.svc.Groups.AddMember(r.Context(), adminID, groupID, req.UserID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	members, err := h.svc.Groups.ListMembers(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *Handler) GetAvailableBalance(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := callerAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.svc.Balances.GetAvailableBalance(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// callerAndGroup resolves the authenticated user and the {groupID} path variable.
func callerAndGroup(r *http.Request) (int32, int32, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return 0, 0, err
	}
	groupID, err := pathID(r, "groupID")
	if err != nil {
		return 0, 0, err
	}
	return userID, groupID, nil
}

// callerAndPath resolves the authenticated user and a numeric path variable.
func callerAndPath(r *http.Request, name string) (int32, int32, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return 0, 0, err
	}
	id, err := pathID(r, name)
	if err != nil {
		return 0, 0, err
	}
	return userID, id, nil
}
