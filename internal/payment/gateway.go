// Package payment adapts mobile-money providers. Initiate starts a customer
// payment; the outcome arrives later as a provider callback.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidCallback    = errors.New("invalid payment callback")
)

type InitiateRequest struct {
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

type InitiateResult struct {
	ProviderRequestID string
	CustomerMessage   string
}

type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
}
