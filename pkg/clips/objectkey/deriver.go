package objectkey

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Role distinguishes the objects a clip references
type Role string

const (
	RoleVideo     Role = "video"
	RoleThumbnail Role = "thumbnail"
)

// ThumbnailPlaceholder replaces a thumbnail file name that sanitizes to nothing
const ThumbnailPlaceholder = "thumbnail.jpg"

var (
	ErrMissingOwner   = errors.New("owner id is required")
	ErrInvalidOwner   = errors.New("owner id must not contain '/'")
	ErrMissingClipID  = errors.New("clip id is required")
	ErrInvalidRole    = errors.New("unknown object role")
	ErrEmptyVideoName = errors.New("video file name is empty after sanitization")
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)
)

// SanitizeFileName trims raw, collapses whitespace runs to '_' and strips
// every character outside [A-Za-z0-9_.-].
func SanitizeFileName(raw string) string {
	s := strings.TrimSpace(raw)
	s = whitespaceRun.ReplaceAllString(s, "_")
	return disallowed.ReplaceAllString(s, "")
}

// Parts is the decomposition of a derived object name
type Parts struct {
	OwnerID  string
	ClipID   string
	Role     Role
	FileName string
}

// Deriver builds object names of the form {ownerId}/{clipId}-{role}-{fileName}.
// The owner prefix keeps an owner's objects enumerable by prefix listing.
type Deriver struct {
	placeholder string
}

// NewDeriver creates a Deriver using ThumbnailPlaceholder
func NewDeriver() *Deriver {
	return &Deriver{placeholder: ThumbnailPlaceholder}
}

// Derive returns the object name for one role of a clip. The result depends
// only on its inputs.
func (d *Deriver) Derive(ownerID, clipID string, role Role, rawFileName string) (string, error) {
	if ownerID == "" {
		return "", ErrMissingOwner
	}
	if strings.Contains(ownerID, "/") {
		return "", ErrInvalidOwner
	}
	if clipID == "" {
		return "", ErrMissingClipID
	}

	name := SanitizeFileName(rawFileName)
	switch role {
	case RoleVideo:
		if name == "" {
			return "", ErrEmptyVideoName
		}
	case RoleThumbnail:
		if name == "" {
			name = d.placeholder
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	return fmt.Sprintf("%s/%s-%s-%s", ownerID, clipID, role, name), nil
}

// Prefix returns the listing prefix shared by every object of ownerID
func (d *Deriver) Prefix(ownerID string) string {
	if ownerID == "" {
		return ""
	}
	return ownerID + "/"
}

// Parse splits a derived name back into its parts. ok is false for names
// this Deriver could not have produced.
func (d *Deriver) Parse(name string) (parts Parts, ok bool) {
	owner, rest, found := strings.Cut(name, "/")
	if !found || owner == "" || rest == "" {
		return Parts{}, false
	}

	best := -1
	var role Role
	for _, r := range []Role{RoleVideo, RoleThumbnail} {
		idx := strings.Index(rest, "-"+string(r)+"-")
		if idx > 0 && (best == -1 || idx < best) {
			best, role = idx, r
		}
	}
	if best == -1 {
		return Parts{}, false
	}

	fileName := rest[best+len(role)+2:]
	if fileName == "" {
		return Parts{}, false
	}
	return Parts{
		OwnerID:  owner,
		ClipID:   rest[:best],
		Role:     role,
		FileName: fileName,
	}, true
}
