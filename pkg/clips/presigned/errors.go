package presigned

import "errors"

// Signature validation errors
var (
	// ErrNoSecretKey is returned when attempting to sign URLs without a configured secret key
	ErrNoSecretKey = errors.New("presigned: no secret key configured")

	// ErrMissingSignature is returned when a signature query parameter is missing
	ErrMissingSignature = errors.New("presigned: missing signature parameter")

	// ErrInvalidTimestamp is returned when st or se cannot be parsed
	ErrInvalidTimestamp = errors.New("presigned: invalid validity timestamp")

	// ErrNotYetValid is returned before the grant start time
	ErrNotYetValid = errors.New("presigned: URL is not yet valid")

	// ErrExpired is returned when the presigned URL has expired
	ErrExpired = errors.New("presigned: URL has expired")

	// ErrInvalidSignature is returned when the signature is invalid
	ErrInvalidSignature = errors.New("presigned: invalid signature")

	// ErrPermissionDenied is returned when the granted permission does not cover the request method
	ErrPermissionDenied = errors.New("presigned: permission does not allow this operation")
)

// IsAuthError returns true if the error is a signature validation error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrNotYetValid) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrPermissionDenied)
}
