package nntp

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerConfig returns a function that creates circuit breakers for servers.
// This is a helper for common use cases.
//
// Only failures that say something about the server count: transport and
// handshake errors and rejected credentials. Negative responses such as
// 430 are successful requests, and caller cancellations are ignored.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) *gobreaker.CircuitBreaker[*Request] {
	return func(addr string) *gobreaker.CircuitBreaker[*Request] {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return !isServerFailure(err)
			},
		}
		return gobreaker.NewCircuitBreaker[*Request](settings)
	}
}

func isServerFailure(err error) bool {
	return ShouldReconnect(err) ||
		errors.Is(err, ErrAuthRejected) ||
		errors.Is(err, ErrPasswordRequired)
}
