package postgrest

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"
)

type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64
	RetryableStatus   []int
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatus: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (c RetryConfig) retryableStatus(code int) bool {
	for _, s := range c.RetryableStatus {
		if s == code {
			return true
		}
	}
	return false
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	OnStateChange    func(from, to CircuitState)
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker trips after FailureThreshold consecutive failures and probes again after Timeout.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Timeout {
			return ErrCircuitOpen
		}
		b.transition(CircuitHalfOpen)
	}
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitClosed:
		b.failures = 0
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(CircuitClosed)
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transition(CircuitOpen)
	}
}

func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == CircuitOpen {
		b.openedAt = b.now()
	}
	if b.cfg.OnStateChange != nil && from != to {
		go b.cfg.OnStateChange(from, to)
	}
}

// resilientTransport retries idempotent requests and feeds the breaker.
// POST is never retried: a lost response to an insert may still have landed.
type resilientTransport struct {
	base    http.RoundTripper
	retry   RetryConfig
	breaker *Breaker
	sleep   func(ctx context.Context, d time.Duration) error
}

func newResilientTransport(base http.RoundTripper, retry RetryConfig, breaker *Breaker) *resilientTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &resilientTransport{base: base, retry: retry, breaker: breaker, sleep: sleepCtx}
}

func (t *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.breaker != nil {
		if err := t.breaker.Allow(); err != nil {
			return nil, err
		}
	}
	maxRetries := t.retry.MaxRetries
	if !idempotent(req.Method) {
		maxRetries = 0
	}
	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := t.sleep(req.Context(), t.retry.backoff(attempt)); err != nil {
				return nil, err
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req = req.Clone(req.Context())
				req.Body = body
			}
		}
		resp, lastErr = t.base.RoundTrip(req)
		if lastErr != nil {
			if retryableErr(lastErr) && attempt < maxRetries {
				continue
			}
			break
		}
		if t.retry.retryableStatus(resp.StatusCode) && attempt < maxRetries {
			resp.Body.Close()
			continue
		}
		if unhealthyStatus(resp.StatusCode) {
			break
		}
		t.recordSuccess()
		return resp, nil
	}
	t.recordFailure()
	return resp, lastErr
}

func (t *resilientTransport) recordSuccess() {
	if t.breaker != nil {
		t.breaker.RecordSuccess()
	}
}

func (t *resilientTransport) recordFailure() {
	if t.breaker != nil {
		t.breaker.RecordFailure()
	}
}

func unhealthyStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func retryableErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
