package pricing

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// RetryConfig configures retries of a single refresh.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 200ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 5s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// DisableJitter turns off the up-to-25% random delay increase.
	DisableJitter bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	return c
}

// delay returns the wait before attempt+1.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if d > c.MaxDelay || d < 0 {
		d = c.MaxDelay
	}
	if !c.DisableJitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// retry runs op until it succeeds, attempts are exhausted or ctx is done.
func retry(ctx context.Context, cfg RetryConfig, op func(context.Context) (*Table, error), onRetry func(attempt int, err error)) (*Table, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		t, err := op(ctx)
		if err == nil {
			return t, nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// BreakerConfig configures the refresh circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed refreshes before the
	// circuit opens.
	// Default: 3
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before one probe
	// refresh is allowed.
	// Default: 1 minute
	ResetTimeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = time.Minute
	}
	return c
}

// BreakerState is the refresh circuit state.
type BreakerState int

const (
	// BreakerClosed allows refreshes.
	BreakerClosed BreakerState = iota
	// BreakerOpen suspends refreshes.
	BreakerOpen
	// BreakerHalfOpen allows a single probe refresh.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

func newBreaker(cfg BreakerConfig, now func() time.Time) *breaker {
	return &breaker{cfg: cfg.withDefaults(), now: now}
}

// allow reports whether a refresh may run and reserves the probe slot when
// half-open.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
	}
	return true
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.lastFailure = b.now()
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.state = BreakerOpen
		}
	}
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

func (b *breaker) currentLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		b.state = BreakerHalfOpen
		b.probing = false
	}
	return b.state
}
