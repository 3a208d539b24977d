package agent

import (
	"context"
	"errors"
	"math"
	"time"
)

// retryPolicy bounds the exponential backoff retry around invoke (spec.md
// section 7: AgentInvocationError/AgentProtocolError "retried with
// exponential backoff up to a small bound; then the candidate or review
// fails"). Trimmed from the jitter/notify/specialized-policy surface of
// quorum-ai's internal/service.RetryPolicy down to the fields this module
// actually needs.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
}

// defaultRetryPolicy is the small bound spec.md section 7 calls for: three
// attempts total, doubling from half a second, capped at five.
var defaultRetryPolicy = retryPolicy{
	maxAttempts: 3,
	baseDelay:   500 * time.Millisecond,
	maxDelay:    5 * time.Second,
	multiplier:  2.0,
}

func (p retryPolicy) delay(attempt int) time.Duration {
	d := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt-1))
	if d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}
	return time.Duration(d)
}

// isRetryable reports whether err is a transient Agent Adapter failure worth
// retrying: a failed invocation or malformed output, as opposed to context
// cancellation or an unknown-role configuration error.
func isRetryable(err error) bool {
	return errors.Is(err, ErrInvocation) || errors.Is(err, ErrProtocol)
}

// invokeWithRetry calls invoke, retrying retryable errors with exponential
// backoff up to p.maxAttempts before giving up and returning the last error.
func invokeWithRetry(ctx context.Context, p retryPolicy, cfg CommandConfig, wsPath, promptText, sessionID string, result any) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := invoke(ctx, cfg, wsPath, promptText, sessionID, result)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == p.maxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return lastErr
}
