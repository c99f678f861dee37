package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of retry attempts
	InitialWait time.Duration // Initial wait duration (will be doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// IsRetryableError checks if an error is worth retrying.
// Returns true for transient network errors, timeouts and 5xx-equivalent
// remote failures; false for validation and permanent conflicts.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Errors explicitly marked permanent are never retried
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Remote API errors carry their own retry classification
	var transient interface{ Retriable() bool }
	if errors.As(err, &transient) {
		return transient.Retriable()
	}

	// Unwrap url.Error from the http client
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		err = urlErr.Err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var syscallError syscall.Errno
	if errors.As(err, &syscallError) {
		switch syscallError {
		case syscall.EAGAIN, // Resource temporarily unavailable
			syscall.ETIMEDOUT,    // Connection timed out
			syscall.ECONNRESET,   // Connection reset
			syscall.ECONNABORTED, // Connection aborted
			syscall.ECONNREFUSED, // Connection refused
			syscall.ENETDOWN,     // Network is down
			syscall.ENETUNREACH,  // Network unreachable
			syscall.EHOSTDOWN,    // Host is down
			syscall.EHOSTUNREACH: // Host unreachable
			return true
		}
	}

	// Check error messages for common transient patterns
	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"connection aborted",
		"broken pipe",
		"no route to host",
		"network is unreachable",
		"network is down",
		"host is down",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"bad gateway",
		"gateway timeout",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff executes a function with exponential backoff retry logic
// Returns the result of the function or the final error after all retries exhausted
func RetryWithBackoff[T any](cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	waitDuration := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation()

		// Success - return immediately
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d",
					operationName, attempt, cfg.MaxAttempts)
			}
			return result, nil
		}

		// Check if error is retryable
		if !IsRetryableError(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		// Last attempt - return the error
		if attempt == cfg.MaxAttempts {
			WarnLog("Retry: %s failed after %d attempts: %v",
				operationName, cfg.MaxAttempts, err)
			return result, fmt.Errorf("max retries exceeded (%d attempts): %w",
				cfg.MaxAttempts, err)
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, cfg.MaxAttempts, waitDuration, err)

		// Wait before retry (exponential backoff)
		time.Sleep(waitDuration)

		waitDuration *= 2
		if waitDuration > cfg.MaxWait {
			waitDuration = cfg.MaxWait
		}
	}

	return result, fmt.Errorf("unexpected retry loop exit: %w", err)
}

// Retry executes a function with retry logic (no return value)
// Convenience wrapper for operations that don't return a value
func Retry(cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}
