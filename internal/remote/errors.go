package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/franz/radiola/internal/util"
)

// APIError is the error object of the response envelope
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

// classify wraps the error with the sentinel matching its retry class, so
// util.IsRetryableError and the executor agree on what to do with it.
func (e *APIError) classify() error {
	switch {
	case e.IsDuplicate():
		return fmt.Errorf("%w: %s", errDuplicate, e.Message)
	case e.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", util.ErrNotFound, e.Message)
	case e.Retriable():
		return e
	default:
		// Validation errors and permanent conflicts must never be retried
		return fmt.Errorf("%w: %s", util.ErrPermanent, e.Error())
	}
}

// Retriable reports whether the failure is transient (rate limit, server
// error) rather than a validation or permanent conflict.
func (e *APIError) Retriable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsDuplicate reports whether the error means the idempotency key was
// already fully processed by the remote.
func (e *APIError) IsDuplicate() bool {
	return e.StatusCode == http.StatusConflict && e.Code == "duplicate"
}

var errDuplicate = errors.New("duplicate idempotency key")

// IsDuplicate reports whether err marks an already-processed idempotency key
func IsDuplicate(err error) bool {
	return errors.Is(err, errDuplicate)
}

// IsNotFound reports whether err is a remote not-found
func IsNotFound(err error) bool {
	return errors.Is(err, util.ErrNotFound)
}
