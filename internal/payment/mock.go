package payment

import (
	"context"

	"chama-backend/internal/logger"

	"github.com/google/uuid"
)

// MockGateway accepts every request without contacting a provider. It is
// used for local development; callbacks are posted by hand.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) Name() string {
	return "mock"
}

func (g *MockGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	id := "ws_CO_" + uuid.NewString()
	logger.InfoContext(ctx, "💸 Mock payment initiated", "provider_request_id", id, "phone", phone, "amount", req.Amount)
	return &InitiateResult{
		ProviderRequestID: id,
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}
