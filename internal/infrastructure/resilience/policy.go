package resilience

import (
	"math"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy bounds how often a failed call is repeated and how long the
// executor waits between attempts.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy decides when the circuit of one operation opens and how
// many trial calls it lets through before closing again.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

// DefaultConfig suits a paid chat-completions endpoint: few attempts, a
// breaker that needs a handful of calls before judging.
func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      5,
			FailureRatio:     0.6,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	}
}

// withDefaults fills unset or out-of-range knobs. Breaker.Enabled is taken
// as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	return Config{
		Retry:   c.Retry.withDefaults(def.Retry),
		Breaker: c.Breaker.withDefaults(def.Breaker),
	}
}

func (p RetryPolicy) withDefaults(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// delay is the wait after the given failed attempt, counting from 1.
func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if d >= float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

func (p BreakerPolicy) withDefaults(def BreakerPolicy) BreakerPolicy {
	if p.MinRequests == 0 {
		p.MinRequests = def.MinRequests
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = def.OpenTimeout
	}
	if p.HalfOpenMaxCalls == 0 {
		p.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return p
}

// tripped reports whether the closed-state counts justify opening.
func (p BreakerPolicy) tripped(counts gobreaker.Counts) bool {
	if counts.Requests < p.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}

func (p BreakerPolicy) settings(operation string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        operation,
		MaxRequests: p.HalfOpenMaxCalls,
		Timeout:     p.OpenTimeout,
		ReadyToTrip: p.tripped,
	}
}
