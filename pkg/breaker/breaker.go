// Package breaker builds circuit breakers for remote model collaborators.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/papercomputeco/shelf/pkg/metrics"
)

const (
	DefaultMinRequests  = 5
	DefaultFailureRatio = 0.6
	DefaultOpenTimeout  = 30 * time.Second
	DefaultInterval     = time.Minute
	DefaultHalfOpenMax  = 1
)

// Options configures a breaker. Zero values take the defaults.
type Options struct {
	Name string

	// MinRequests is the number of calls in an interval before the
	// failure ratio is considered.
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
	Interval     time.Duration
	HalfOpenMax  uint32

	// Success reports errors that do not count against the remote, such as
	// an empty but valid answer. Caller cancellation never counts.
	Success func(error) bool

	Logger *slog.Logger
}

// New creates a circuit breaker whose transitions are logged and exported
// as metrics.
func New[T any](opts Options) *gobreaker.CircuitBreaker[T] {
	if opts.MinRequests == 0 {
		opts.MinRequests = DefaultMinRequests
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = DefaultFailureRatio
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.HalfOpenMax == 0 {
		opts.HalfOpenMax = DefaultHalfOpenMax
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	logger := opts.Logger
	success := opts.Success
	metrics.BreakerState.WithLabelValues(opts.Name).Set(stateValue(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.HalfOpenMax,
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= opts.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return success != nil && success(err)
		},
	})
}

// Rejected reports whether err came from the breaker refusing a call rather
// than from the remote itself.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
