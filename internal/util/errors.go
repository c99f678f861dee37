package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a resource was not found in any source
	ErrNotFound = errors.New("not found")

	// ErrChannelNotFound indicates a channel slug could not be resolved
	ErrChannelNotFound = errors.New("channel not found")

	// ErrNotEditable indicates a field is outside the staging allow-list
	ErrNotEditable = errors.New("field not editable")

	// ErrNoAppliedEdit indicates undo found no applied edit for the cell
	ErrNoAppliedEdit = errors.New("no applied edit found")

	// ErrBusy indicates a channel is already being pulled elsewhere
	ErrBusy = errors.New("channel busy")

	// ErrNotLeader indicates this executor does not hold the leader lease
	ErrNotLeader = errors.New("not leader")

	// ErrPermanent marks a remote failure that must not be retried
	ErrPermanent = errors.New("permanent remote failure")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsNotFound reports whether err wraps ErrNotFound or ErrChannelNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrChannelNotFound)
}
