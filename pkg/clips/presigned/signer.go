package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
)

// Signer generates and validates HMAC-signed grant URLs
type Signer struct {
	secretKey  []byte
	pathPrefix string
	now        func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		pathPrefix: "/blobs",
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.pathPrefix = "/" + strings.Trim(s.pathPrefix, "/")

	return s
}

// IsEnabled returns true if a secret key is set
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// PathPrefix returns the route prefix signed URLs are built under
func (s *Signer) PathPrefix() string {
	return s.pathPrefix
}

// Path returns the unsigned URL path of an object
func (s *Signer) Path(container, objectName string) string {
	segments := strings.Split(objectName, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.pathPrefix + "/" + url.PathEscape(container) + "/" + strings.Join(segments, "/")
}

// Sign returns the signed path and query for one permission on one object
func (s *Signer) Sign(container, objectName string, perm clips.Permission, validFrom, validUntil time.Time) (string, error) {
	if !s.IsEnabled() {
		return "", ErrNoSecretKey
	}

	st, se := validFrom.Unix(), validUntil.Unix()
	q := url.Values{}
	q.Set("sp", string(perm))
	q.Set("st", strconv.FormatInt(st, 10))
	q.Set("se", strconv.FormatInt(se, 10))
	q.Set("sig", s.generateSignature(createPayload(string(perm), container+"/"+objectName, st, se)))

	return s.Path(container, objectName) + "?" + q.Encode(), nil
}

// Grant issues a clips.Grant rooted at baseURL. The window starts
// clips.GrantClockSkew before now and ends ttl after it.
func (s *Signer) Grant(baseURL, container, objectName string, perm clips.Permission, ttl time.Duration) (*clips.Grant, error) {
	if container == "" {
		return nil, fmt.Errorf("%w: container name is not set", clips.ErrConfiguration)
	}
	if !s.IsEnabled() {
		return nil, fmt.Errorf("%w: %v", clips.ErrConfiguration, ErrNoSecretKey)
	}
	if !perm.IsValid() {
		return nil, clips.NewValidationError("permission", "unknown permission "+string(perm))
	}

	from, until := clips.GrantWindow(s.now().UTC().Truncate(time.Second), ttl)
	signed, err := s.Sign(container, objectName, perm, from, until)
	if err != nil {
		return nil, err
	}

	return &clips.Grant{
		URL:        strings.TrimRight(baseURL, "/") + signed,
		ObjectName: objectName,
		Permission: perm,
		ValidFrom:  from,
		ValidUntil: until,
	}, nil
}

// ValidateRequest checks the signature, window and permission of a request
// for container/objectName.
func (s *Signer) ValidateRequest(r *http.Request, container, objectName string) error {
	query := r.URL.Query()
	sp, sig := query.Get("sp"), query.Get("sig")
	if sp == "" || sig == "" {
		return ErrMissingSignature
	}

	st, err := strconv.ParseInt(query.Get("st"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: st: %v", ErrInvalidTimestamp, err)
	}
	se, err := strconv.ParseInt(query.Get("se"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: se: %v", ErrInvalidTimestamp, err)
	}

	return s.Validate(r.Method, container, objectName, sp, st, se, sig)
}

// Validate validates a signature for the given method
func (s *Signer) Validate(method, container, objectName, sp string, st, se int64, signature string) error {
	if !s.IsEnabled() {
		return ErrNoSecretKey
	}

	now := s.now().Unix()
	if now < st {
		return ErrNotYetValid
	}
	if now > se {
		return ErrExpired
	}

	expected := s.generateSignature(createPayload(sp, container+"/"+objectName, st, se))
	// Compare signatures using constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}

	if !Permits(sp, method) {
		return ErrPermissionDenied
	}
	return nil
}

// Permits reports whether permission string sp covers an HTTP method.
// Reads need 'r'; writes need 'c' or 'w'.
func Permits(sp, method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return strings.Contains(sp, "r")
	case http.MethodPut:
		return strings.ContainsAny(sp, "cw")
	default:
		return false
	}
}

// createPayload creates the signature payload: PERMISSION|RESOURCE|START|EXPIRY
func createPayload(sp, resource string, st, se int64) string {
	return fmt.Sprintf("%s|%s|%d|%d", sp, resource, st, se)
}

// generateSignature generates HMAC-SHA256 signature for the given payload
func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
