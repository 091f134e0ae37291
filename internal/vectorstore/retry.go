package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryConfig controls query retries.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Backoff is the wait before the first retry. It doubles on each retry.
	Backoff time.Duration

	// CircuitBreakerThreshold is the number of consecutive transient
	// failures that opens the circuit.
	CircuitBreakerThreshold int

	// CircuitResetAfter is how long an open circuit stays open.
	CircuitResetAfter time.Duration
}

// DefaultRetryConfig returns the retry policy used by the remote backends.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:              3,
		Backoff:                 time.Second,
		CircuitBreakerThreshold: 5,
		CircuitResetAfter:       30 * time.Second,
	}
}

// IsTransientError reports whether err is worth retrying.
// gRPC unavailability and timeouts are transient, as are Postgres
// connection and serialization failures.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
			return true
		default:
			return false
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return false
		}
		switch pgErr.Code[:2] {
		case "08", "40", "53", "57":
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// retrier runs read operations with exponential backoff behind a circuit breaker.
type retrier struct {
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	failures int
	lastFail time.Time
}

func newRetrier(cfg RetryConfig) *retrier {
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.CircuitResetAfter <= 0 {
		cfg.CircuitResetAfter = 30 * time.Second
	}
	return &retrier{cfg: cfg, sleep: sleepCtx}
}

func (r *retrier) do(ctx context.Context, operationName string, operation func() error) error {
	backoff := r.cfg.Backoff

	for attempt := 0; ; attempt++ {
		if r.isCircuitOpen() {
			return fmt.Errorf("%s: %w", operationName, ErrCircuitOpen)
		}

		err := operation()
		if err == nil {
			r.reset()
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		r.recordFailure()

		if attempt >= r.cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, r.cfg.MaxRetries, err)
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("%s canceled: %w", operationName, err)
		}
		backoff *= 2
	}
}

func (r *retrier) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	r.lastFail = time.Now()
}

func (r *retrier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = 0
}

func (r *retrier) isCircuitOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures >= r.cfg.CircuitBreakerThreshold {
		if time.Since(r.lastFail) > r.cfg.CircuitResetAfter {
			r.failures = 0
			return false
		}
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
