package clips

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Error types
var (
	// ErrValidation indicates missing or malformed caller input
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced clip or user does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a key collision on create or a version mismatch on replace
	ErrConflict = errors.New("conflict")

	// ErrConfiguration indicates required backend configuration is absent
	ErrConfiguration = errors.New("configuration error")

	// ErrBackendUnavailable indicates a network failure reaching a backing store
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidStatusTransition indicates a status change the lifecycle does not allow
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ValidationError describes which input was rejected
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ClipError represents an error related to clip operations
type ClipError struct {
	ClipID  string
	OwnerID string
	Op      string
	Err     error
}

func (e *ClipError) Error() string {
	return fmt.Sprintf("clip operation %s failed for clip %s (owner %s): %v", e.Op, e.ClipID, e.OwnerID, e.Err)
}

func (e *ClipError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob or record store operations
type StorageError struct {
	Backend string
	Name    string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for %s on backend %s: %v", e.Op, e.Name, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// unavailableError keeps the original cause reachable while matching ErrBackendUnavailable
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBackendUnavailable, e.cause)
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.cause}
}

// ClassifyBackendError wraps err in a StorageError for backend and marks
// connection-level failures as ErrBackendUnavailable. Nil stays nil.
func ClassifyBackendError(backend, name, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) && !errors.Is(err, ErrBackendUnavailable) {
		err = &unavailableError{cause: err}
	}
	return &StorageError{Backend: backend, Name: name, Op: op, Err: err}
}

// IsConnectionError reports whether err is a dial, DNS or timeout failure
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// BackendName returns the backend recorded on the first StorageError in err's chain
func BackendName(err error) string {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Backend
	}
	return ""
}
