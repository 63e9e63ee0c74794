// Package retry retries transient network operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// MaxDelay caps the delay between attempts.
const MaxDelay = 30 * time.Second

// IsRetryableError determines if an error is transient and worth retrying.
// Returns true for network timeouts, connection errors, and temporary failures.
// Returns false for context cancellation, permanent errors, and authentication failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"try again",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"connection timed out",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff runs operation until it succeeds, returns a non-retryable
// error, or maxRetries retries have been spent. The delay starts at
// baseDelay and doubles on each attempt, capped at MaxDelay. Context
// cancellation stops retries immediately.
//
// Example usage:
//
//	err := retry.RetryWithBackoff(ctx, log, 3, 2*time.Second, func() error {
//	    return probe.Check(ctx)
//	})
func RetryWithBackoff(ctx context.Context, log *slog.Logger, maxRetries int, baseDelay time.Duration, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = operation()

		if lastErr == nil {
			if attempt > 0 && log != nil {
				log.Info("operation succeeded after retry", "retries", attempt)
			}
			return nil
		}

		if !IsRetryableError(lastErr) {
			return lastErr
		}

		if attempt == maxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
		}

		delay := Backoff(baseDelay, attempt)
		if log != nil {
			log.Warn("retryable error",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"error", lastErr,
				"retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

// Backoff returns the delay before retry number attempt (zero based).
func Backoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return MaxDelay
	}
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > MaxDelay || delay <= 0 {
		return MaxDelay
	}
	return delay
}
