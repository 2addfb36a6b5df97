package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chama-backend/internal/logger"
	"chama-backend/internal/metrics"

	"github.com/sony/gobreaker"
)

type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerGateway stops calling a failing provider until its timeout passes.
// Rejections by the provider are business outcomes and do not trip it.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerGateway(next Gateway, s BreakerSettings) *BreakerGateway {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	name := next.Name()
	settings := gobreaker.Settings{
		Name:        "payment-" + name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrGatewayUnavailable)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("Payment gateway breaker state changed", "gateway", name, "from", from.String(), "to", to.String())
			metrics.GatewayBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
	metrics.GatewayBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	return &BreakerGateway{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (g *BreakerGateway) Name() string {
	return g.next.Name()
}

func (g *BreakerGateway) State() gobreaker.State {
	return g.breaker.State()
}

func (g *BreakerGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Initiate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s breaker: %w", ErrGatewayUnavailable, g.next.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	return out.(*InitiateResult), nil
}
