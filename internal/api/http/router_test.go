package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/payment"
	"chama-backend/internal/repository/memory"
	"chama-backend/internal/security"
	"chama-backend/internal/service"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	router *mux.Router
}

func newTestServer(t *testing.T) *testServer {
	store := memory.NewStore()
	repos := store.Repos()
	dispatcher := service.NewNotificationDispatcher(repos.Notifications, repos.Users, service.NewLogEmailService())
	tm := security.NewTokenManager("router-test-secret-router-test-secret", time.Hour)

	h := NewHandler(Services{
		Users:         service.NewUserService(repos.Users),
		Groups:        service.NewGroupService(store),
		Balances:      service.NewBalanceService(store),
		Withdrawals:   service.NewWithdrawalService(store, dispatcher),
		Loans:         service.NewLoanService(store, dispatcher, 4),
		Contributions: service.NewContributionService(store, payment.NewMockGateway(), dispatcher),
		Notifications: service.NewNotificationService(repos.Notifications),
	}, tm)
	return &testServer{t: t, router: NewRouter(h, tm)}
}

// do sends body as JSON with an optional bearer token and decodes the
// response into out when out is non-nil.
func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (s *testServer) register(name, email, phone string) (*domain.User, string) {
	s.t.Helper()
	var user domain.User
	code := s.do(http.MethodPost, "/api/v1/users", "", map[string]string{
		"name": name, "email": email, "phone_number": phone, "password": "correct-horse",
	}, &user)
	require.Equal(s.t, http.StatusCreated, code)

	var login loginResponse
	code = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "correct-horse",
	}, &login)
	require.Equal(s.t, http.StatusOK, code)
	require.Equal(s.t, user.ID, login.User.ID)
	return &user, login.AccessToken
}

type chama struct {
	adminToken, memberToken, outsiderToken string
	member                                 *domain.User
	group                                  domain.Group
}

func (s *testServer) newChama() chama {
	s.t.Helper()
	var c chama
	_, c.adminToken = s.register("Akinyi", "akinyi@chama.test", "0711000001")
	c.member, c.memberToken = s.register("Baraka", "baraka@chama.test", "0711000002")
	_, c.outsiderToken = s.register("Chebet", "chebet@chama.test", "0711000003")

	code := s.do(http.MethodPost, "/api/v1/groups", c.adminToken, map[string]any{
		"name": "Umoja", "target_amount": "50000",
	}, &c.group)
	require.Equal(s.t, http.StatusCreated, code)

	code = s.do(http.MethodPost, s.groupPath(c, "/members"), c.adminToken, map[string]any{
		"user_id": c.member.ID, "role": "member",
	}, nil)
	require.Equal(s.t, http.StatusCreated, code)
	return c
}

func (s *testServer) groupPath(c chama, suffix string) string {
	return fmt.Sprintf("/api/v1/groups/%d%s", c.group.ID, suffix)
}

func TestRouter_Auth(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/users/me", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/users/me", "garbage", nil, nil))

	user, token := s.register("Wanjiru", "wanjiru@chama.test", "")
	var me domain.User
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/users/me", token, nil, &me))
	assert.Equal(t, user.ID, me.ID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/users", "", map[string]string{"name": "x", "email": "nope"}, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "wanjiru@chama.test", "password": "wrong-password",
	}, nil))
}

func TestRouter_WithdrawalFlow(t *testing.T) {
	s := newTestServer(t)
	c := s.newChama()

	code := s.do(http.MethodPost, s.groupPath(c, "/contributions/cash"), c.adminToken, map[string]any{
		"member_id": c.member.ID, "amount": "500",
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	var wr domain.WithdrawalRequest
	code = s.do(http.MethodPost, s.groupPath(c, "/withdrawals"), c.memberToken, map[string]any{
		"amount": "200", "description": "school fees",
	}, &wr)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.WithdrawalStatusPending, wr.Status)

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodPost, s.groupPath(c, "/withdrawals"), c.memberToken,
		map[string]any{"amount": "900"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, s.groupPath(c, "/withdrawals"), c.memberToken,
		map[string]any{"amount": "0.004"}, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, s.groupPath(c, "/withdrawals"), c.outsiderToken,
		map[string]any{"amount": "10"}, nil))

	decidePath := fmt.Sprintf("/api/v1/withdrawals/%d/decision", wr.ID)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, decidePath, c.memberToken,
		map[string]string{"decision": "approve"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, decidePath, c.adminToken,
		map[string]string{"decision": "maybe"}, nil))

	var decided domain.WithdrawalRequest
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, decidePath, c.adminToken,
		map[string]string{"decision": "approve", "comment": "ok"}, &decided))
	assert.Equal(t, domain.WithdrawalStatusApproved, decided.Status)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, decidePath, c.adminToken,
		map[string]string{"decision": "reject"}, nil))

	var balance domain.AvailableBalance
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, s.groupPath(c, "/balance"), c.memberToken, nil, &balance))
	assert.True(t, balance.NetSavings.Equal(decimal.NewFromInt(300)))
	assert.True(t, balance.GroupFunds.Equal(decimal.NewFromInt(300)))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/withdrawals/9999", c.memberToken, nil, nil))
}

func TestRouter_MpesaCallback(t *testing.T) {
	s := newTestServer(t)
	c := s.newChama()

	var entry domain.Transaction
	code := s.do(http.MethodPost, s.groupPath(c, "/contributions"), c.memberToken, map[string]any{
		"amount": "750",
	}, &entry)
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, domain.TransactionStatusPending, entry.Status)
	require.NotEmpty(t, entry.ExternalRef)

	callback := map[string]any{
		"Body": map[string]any{
			"stkCallback": map[string]any{
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": entry.ExternalRef,
				"ResultCode":        0,
				"ResultDesc":        "The service request is processed successfully.",
				"CallbackMetadata": map[string]any{
					"Item": []map[string]any{
						{"Name": "Amount", "Value": 750},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
					},
				},
			},
		},
	}
	var ack darajaAck
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/payments/mpesa/callback", "", callback, &ack))
	assert.Equal(t, 0, ack.ResultCode)

	var group domain.Group
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, s.groupPath(c, ""), c.memberToken, nil, &group))
	assert.True(t, group.CurrentAmount.Equal(decimal.NewFromInt(750)))

	// Duplicate and malformed deliveries are still acknowledged.
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/payments/mpesa/callback", "", callback, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/payments/mpesa/callback", "", map[string]any{"Body": "x"}, nil))

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, s.groupPath(c, ""), c.memberToken, nil, &group))
	assert.True(t, group.CurrentAmount.Equal(decimal.NewFromInt(750)))
}

func TestRouter_LoanFlow(t *testing.T) {
	s := newTestServer(t)
	c := s.newChama()

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, s.groupPath(c, "/contributions/cash"), c.adminToken, map[string]any{
		"member_id": c.member.ID, "amount": "1000",
	}, nil))

	var eligibility domain.LoanEligibility
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, s.groupPath(c, "/loans/eligibility"), c.memberToken, nil, &eligibility))
	assert.True(t, eligibility.EligibleAmount.Equal(decimal.NewFromInt(3000)))

	var loan domain.Loan
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, s.groupPath(c, "/loans"), c.memberToken, map[string]any{
		"amount": "400", "purpose": "seed", "duration_weeks": 4,
	}, &loan))
	assert.Equal(t, domain.LoanStatusPending, loan.Status)

	loanPath := fmt.Sprintf("/api/v1/loans/%d", loan.ID)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, loanPath+"/approve", c.memberToken, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, loanPath+"/approve", c.adminToken, nil, &loan))
	assert.Equal(t, domain.LoanStatusApproved, loan.Status)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, loanPath+"/reject", c.adminToken, nil, nil))

	var result domain.RepaymentResult
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, loanPath+"/repayments", c.memberToken, map[string]any{"amount": "110"}, &result))
	assert.Equal(t, domain.LoanStatusActive, result.Loan.Status)
	assert.True(t, result.Outstanding.Equal(decimal.NewFromInt(330)))

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, loanPath+"/repayments", c.adminToken, map[string]any{"amount": "110"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, loanPath+"/repayments", c.memberToken, map[string]any{"amount": "0"}, nil))

	var bal loanBalanceResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, loanPath+"/balance", c.memberToken, nil, &bal))
	assert.True(t, bal.Outstanding.Equal(decimal.NewFromInt(330)))

	var mine []domain.Loan
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/loans?status=active", c.memberToken, nil, &mine))
	assert.Len(t, mine, 1)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/loans?status=bogus", c.memberToken, nil, nil))

	var page notificationPage
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/notifications?page=1&page_size=50", c.adminToken, nil, &page))
	assert.NotZero(t, page.Total)
	readPath := fmt.Sprintf("/api/v1/notifications/%d/read", page.Notifications[0].ID)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, readPath, c.adminToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, readPath, c.memberToken, nil, nil))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrGroupNotFound, http.StatusNotFound},
		{domain.ErrNotAMember, http.StatusForbidden},
		{domain.ErrNotOwner, http.StatusForbidden},
		{domain.ErrAlreadyProcessed, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", domain.ErrExceedsGroupFunds), http.StatusUnprocessableEntity},
		{domain.ErrNotActive, http.StatusUnprocessableEntity},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{fmt.Errorf("%w: db: %w", domain.ErrPersistence, errors.New("conn reset")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
