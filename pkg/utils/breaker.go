package utils

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewCircuitBreaker returns a breaker that opens once at least 3 requests in a 10s window
// have a failure ratio of 60% or more, and probes again after 60s. Caller cancellations,
// deadlines and any of the benign errors do not count against the provider.
func NewCircuitBreaker(name string, logger *zap.Logger, benign ...error) *gobreaker.CircuitBreaker {
	logger = OrNop(logger)
	benign = append(benign, context.Canceled, context.DeadlineExceeded)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			for _, target := range benign {
				if errors.Is(err, target) {
					return true
				}
			}
			return false
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn("circuit breaker opened", zap.String("breaker", name), zap.String("from", from.String()))
				return
			}
			logger.Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
