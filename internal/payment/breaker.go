package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"storefront/internal/metrics"
)

// Breaker wraps gobreaker with Prometheus state and failure metrics.
type Breaker struct {
	*gobreaker.CircuitBreaker
	name string
}

func NewBreaker(name string, logger *zap.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(metrics.ServiceName, cbName).Set(stateValue(to))
			logger.Warn("circuit breaker state changed",
				zap.String("circuit", cbName),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	metrics.CircuitBreakerState.WithLabelValues(metrics.ServiceName, name).Set(0)
	return &Breaker{CircuitBreaker: cb, name: name}
}

// Execute runs fn through the breaker. Open-state rejections are reported
// with the circuit name.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.CircuitBreaker.Execute(fn)
	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(metrics.ServiceName, b.name).Inc()
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, fmt.Errorf("circuit breaker %s is open (provider unavailable)", b.name)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("circuit breaker %s: too many requests in half-open state", b.name)
	}
	return result, err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
