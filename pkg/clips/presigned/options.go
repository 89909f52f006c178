package presigned

import "time"

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
// The key should be at least 32 bytes for security
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithPathPrefix sets the route prefix the blob handlers are mounted on.
// Default is "/blobs".
func WithPathPrefix(prefix string) Option {
	return func(s *Signer) {
		s.pathPrefix = prefix
	}
}

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
