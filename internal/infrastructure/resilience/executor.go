package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what a failure means: whether
// another attempt may succeed and whether it speaks against the remote side.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// StateObserver is told about every circuit breaker transition.
type StateObserver func(operation, state string)

// Executor runs remote calls under a retry policy, inside one circuit
// breaker per operation name.
type Executor struct {
	cfg      Config
	logger   *slog.Logger
	observer StateObserver

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

type ExecutorOption func(*Executor)

func WithStateObserver(observer StateObserver) ExecutorOption {
	return func(e *Executor) { e.observer = observer }
}

func NewExecutor(cfg Config, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "resilience"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn until it succeeds, fails permanently, runs out of
// attempts, or the next wait would outlast ctx. An open circuit fails fast
// with gobreaker.ErrOpenState.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = countEveryFailure
	}

	if !e.cfg.Breaker.Enabled {
		return e.retry(ctx, op, fn, classify)
	}
	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classify)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	policy := e.cfg.Retry
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= policy.MaxAttempts || !classify(err).Retryable {
			return err
		}

		wait := policy.delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			e.logger.Warn("retry_abandoned",
				"operation", operation,
				"attempt", attempt,
				"reason", "deadline before next attempt",
				"error", err,
			)
			return err
		}
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func (e *Executor) breaker(operation string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	settings := e.cfg.Breaker.settings(operation)
	settings.IsSuccessful = func(err error) bool {
		return err == nil || !classify(err).RecordFailure
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		if e.observer != nil {
			e.observer(name, to.String())
		}
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](settings)
	e.breakers[operation] = cb
	return cb
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func countEveryFailure(error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}
