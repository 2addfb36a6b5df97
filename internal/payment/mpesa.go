package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chama-backend/internal/domain"
	"chama-backend/internal/logger"
)

const (
	DarajaSandboxURL = "https://sandbox.safaricom.co.ke"

	darajaTokenPath       = "/oauth/v1/generate?grant_type=client_credentials"
	darajaSTKPushPath     = "/mpesa/stkpush/v1/processrequest"
	darajaTimestamp       = "20060102150405"
	darajaTransactionType = "CustomerPayBillOnline"
	tokenRefreshMargin    = time.Minute
)

type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	Timeout        time.Duration
}

// DarajaClient talks to Safaricom's Daraja API (Lipa na M-Pesa Online).
type DarajaClient struct {
	cfg    DarajaConfig
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewDarajaClient(cfg DarajaConfig) *DarajaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DarajaSandboxURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DarajaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

func (c *DarajaClient) Name() string {
	return "mpesa"
}

type darajaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

func (c *DarajaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+darajaTokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %w", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: token request returned %d: %s", ErrGatewayRejected, resp.StatusCode, body)
	}

	var token darajaTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrGatewayRejected)
	}

	ttl := time.Hour
	if secs, err := strconv.Atoi(token.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.token = token.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenRefreshMargin)
	return c.token, nil
}

// Password is base64(shortcode + passkey + timestamp).
func (c *DarajaClient) Password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}

// Initiate sends an STK push prompting the customer to pay. M-Pesa only
// accepts whole shillings, so the amount is rounded up.
func (c *DarajaClient) Initiate(ctx context.Context, in InitiateRequest) (*InitiateResult, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(darajaTimestamp)
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.Password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   darajaTransactionType,
		Amount:            in.Amount.Ceil().IntPart(),
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  in.AccountReference,
		TransactionDesc:   in.Description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode stk push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+darajaSTKPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stk push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	logger.ExternalServiceCall("mpesa", "stk_push", "account_reference", in.AccountReference, "amount", payload.Amount)
	resp, err := c.client.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: stk push: %w", ErrGatewayUnavailable, err)
		logger.ExternalServiceResult("mpesa", "stk_push", err)
		return nil, err
	}
	defer resp.Body.Close()

	var out stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode stk push response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.ResponseCode != "0" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = out.ResponseDescription
		}
		err = fmt.Errorf("%w: stk push returned %d: %s", ErrGatewayRejected, resp.StatusCode, msg)
		logger.ExternalServiceResult("mpesa", "stk_push", err)
		return nil, err
	}

	logger.ExternalServiceResult("mpesa", "stk_push", nil, "checkout_request_id", out.CheckoutRequestID)
	return &InitiateResult{
		ProviderRequestID: out.CheckoutRequestID,
		CustomerMessage:   out.CustomerMessage,
	}, nil
}

// NormalizePhone converts Kenyan numbers such as 0712345678, +254712345678
// or 712345678 to the 2547XXXXXXXX form Daraja expects.
func NormalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(strings.TrimSpace(phone))
	switch {
	case strings.HasPrefix(p, "254"):
	case strings.HasPrefix(p, "0"):
		p = "254" + p[1:]
	default:
		p = "254" + p
	}
	if len(p) != 12 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
		}
	}
	return p, nil
}

type darajaCallback struct {
	Body struct {
		STKCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseDarajaCallback turns an STK push result body into a PaymentCallback.
func ParseDarajaCallback(r io.Reader) (domain.PaymentCallback, error) {
	var cb darajaCallback
	if err := json.NewDecoder(r).Decode(&cb); err != nil {
		return domain.PaymentCallback{}, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}
	stk := cb.Body.STKCallback
	if stk.CheckoutRequestID == "" {
		return domain.PaymentCallback{}, fmt.Errorf("%w: missing CheckoutRequestID", ErrInvalidCallback)
	}

	out := domain.PaymentCallback{
		ProviderRequestID: stk.CheckoutRequestID,
		ResultCode:        stk.ResultCode,
	}
	if !out.Succeeded() {
		out.FailureReason = stk.ResultDesc
		return out, nil
	}
	for _, item := range stk.CallbackMetadata.Item {
		if item.Name != "MpesaReceiptNumber" {
			continue
		}
		var receipt string
		if err := json.Unmarshal(item.Value, &receipt); err != nil {
			return domain.PaymentCallback{}, fmt.Errorf("%w: receipt number: %w", ErrInvalidCallback, err)
		}
		out.ConfirmationCode = receipt
	}
	return out, nil
}
