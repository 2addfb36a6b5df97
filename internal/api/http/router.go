package http

import (
	"net/http"

	"chama-backend/internal/security"
	"chama-backend/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services bundles the application services exposed over HTTP.
type Services struct {
	Users         service.UserService
	Groups        service.GroupService
	Balances      service.BalanceService
	Withdrawals   service.WithdrawalService
	Loans         service.LoanService
	Contributions service.ContributionService
	Notifications service.NotificationService
}

type Handler struct {
	svc    Services
	tokens security.TokenManager
}

func NewHandler(svc Services, tokens security.TokenManager) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// NewRouter registers every route under its security name. Route names are
// the keys of config.RouteSecurityConfig.
func NewRouter(h *Handler, tm security.TokenManager) *mux.Router {
	r := mux.NewRouter()
	r.Use(ObserveRequests, NewAuthMiddleware(tm).Handler)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet).Name("Health")
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name("Metrics")

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/payments/mpesa/callback", h.MpesaCallback).Methods(http.MethodPost).Name("MpesaCallback")

	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost).Name("Login")
	api.HandleFunc("/users", h.RegisterUser).Methods(http.MethodPost).Name("RegisterUser")
	api.HandleFunc("/users/me", h.GetMe).Methods(http.MethodGet).Name("GetMe")

	api.HandleFunc("/groups", h.CreateGroup).Methods(http.MethodPost).Name("CreateGroup")
	api.HandleFunc("/groups/{groupID:[0-9]+}", h.GetGroup).Methods(http.MethodGet).Name("GetGroup")
	api.HandleFunc("/groups/{groupID:[0-9]+}/members", h.AddMember).Methods(http.MethodPost).Name("AddMember")
	api.HandleFunc("/groups/{groupID:[0-9]+}/members", h.ListMembers).Methods(http.MethodGet).Name("ListMembers")
	api.HandleFunc("/groups/{groupID:[0-9]+}/balance", h.GetAvailableBalance).Methods(http.MethodGet).Name("GetAvailableBalance")

	api.HandleFunc("/groups/{groupID:[0-9]+}/contributions", h.Contribute).Methods(http.MethodPost).Name("Contribute")
	api.HandleFunc("/groups/{groupID:[0-9]+}/contributions/cash", h.RecordCashContribution).Methods(http.MethodPost).Name("RecordCashContribution")
	api.HandleFunc("/groups/{groupID:[0-9]+}/transactions", h.ListMyTransactions).Methods(http.MethodGet).Name("ListMyTransactions")

	api.HandleFunc("/groups/{groupID:[0-9]+}/withdrawals", h.SubmitWithdrawal).Methods(http.MethodPost).Name("SubmitWithdrawal")
	api.HandleFunc("/groups/{groupID:[0-9]+}/withdrawals", h.ListGroupWithdrawals).Methods(http.MethodGet).Name("ListGroupWithdrawals")
	api.HandleFunc("/groups/{groupID:[0-9]+}/withdrawals/pending", h.ListPendingWithdrawals).Methods(http.MethodGet).Name("ListPendingWithdrawals")
	api.HandleFunc("/withdrawals", h.ListMyWithdrawals).Methods(http.MethodGet).Name("ListMyWithdrawals")
	api.HandleFunc("/withdrawals/{requestID:[0-9]+}", h.GetWithdrawal).Methods(http.MethodGet).Name("GetWithdrawal")
	api.HandleFunc("/withdrawals/{requestID:[0-9]+}/decision", h.DecideWithdrawal).Methods(http.MethodPost).Name("DecideWithdrawal")

	api.HandleFunc("/groups/{groupID:[0-9]+}/loans/eligibility", h.CheckEligibility).Methods(http.MethodGet).Name("CheckEligibility")
	api.HandleFunc("/groups/{groupID:[0-9]+}/loans/stats", h.GetLoanStats).Methods(http.MethodGet).Name("GetLoanStats")
	api.HandleFunc("/groups/{groupID:[0-9]+}/loans", h.RequestLoan).Methods(http.MethodPost).Name("RequestLoan")
	api.HandleFunc("/groups/{groupID:[0-9]+}/loans", h.ListGroupLoans).Methods(http.MethodGet).Name("ListGroupLoans")
	api.HandleFunc("/groups/{groupID:[0-9]+}/loan-settings", h.GetLoanSettings).Methods(http.MethodGet).Name("GetLoanSettings")
	api.HandleFunc("/groups/{groupID:[0-9]+}/loan-settings", h.UpdateLoanSettings).Methods(http.MethodPut).Name("UpdateLoanSettings")
	api.HandleFunc("/loans", h.ListMyLoans).Methods(http.MethodGet).Name("ListMyLoans")
	api.HandleFunc("/loans/{loanID:[0-9]+}", h.GetLoan).Methods(http.MethodGet).Name("GetLoan")
	api.HandleFunc("/loans/{loanID:[0-9]+}/balance", h.GetLoanBalance).Methods(http.MethodGet).Name("GetLoanBalance")
	api.HandleFunc("/loans/{loanID:[0-9]+}/approve", h.ApproveLoan).Methods(http.MethodPost).Name("ApproveLoan")
	api.HandleFunc("/loans/{loanID:[0-9]+}/reject", h.RejectLoan).Methods(http.MethodPost).Name("RejectLoan")
	api.HandleFunc("/loans/{loanID:[0-9]+}/repayments", h.RepayLoan).Methods(http.MethodPost).Name("RepayLoan")

	api.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet).Name("ListNotifications")
	api.HandleFunc("/notifications/{notificationID:[0-9]+}/read", h.MarkNotificationRead).Methods(http.MethodPost).Name("MarkNotificationRead")

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
