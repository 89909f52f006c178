package clips

import (
	"slices"
	"time"
)

// ClipStatus represents the upload lifecycle of a clip
type ClipStatus string

const (
	ClipStatusPendingUpload ClipStatus = "pending-upload"
	ClipStatusUploaded      ClipStatus = "uploaded"
	ClipStatusReady         ClipStatus = "ready"
	ClipStatusFailed        ClipStatus = "failed"
)

// IsValid reports whether s is a known clip status
func (s ClipStatus) IsValid() bool {
	switch s {
	case ClipStatusPendingUpload, ClipStatusUploaded, ClipStatusReady, ClipStatusFailed:
		return true
	}
	return false
}

// ParseClipStatus converts a string to ClipStatus
func ParseClipStatus(s string) (ClipStatus, error) {
	status := ClipStatus(s)
	if !status.IsValid() {
		return "", NewValidationError("status", "unknown status "+s)
	}
	return status, nil
}

// DefaultGenre is used when a clip is created without a genre
const DefaultGenre = "unknown"

// Permission is the capability bound into an access grant.
// The values match the permission strings carried on grant URLs.
type Permission string

const (
	PermissionRead        Permission = "r"
	PermissionWriteCreate Permission = "cw"
)

// IsValid reports whether p is a known permission
func (p Permission) IsValid() bool {
	return p == PermissionRead || p == PermissionWriteCreate
}

const (
	// GrantClockSkew backdates the start of every grant to tolerate client clock drift
	GrantClockSkew = 60 * time.Second

	DefaultWriteGrantTTL = 15 * time.Minute
	DefaultReadGrantTTL  = 60 * time.Minute
)

// Clip is the metadata record of one uploaded video
type Clip struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"userId"`
	Title               string     `json:"title"`
	Genre               string     `json:"genre"`
	Status              ClipStatus `json:"status"`
	VideoObjectName     string     `json:"videoObjectName"`
	ThumbnailObjectName *string    `json:"thumbnailObjectName"`
	Views               int64      `json:"views"`
	Likes               []string   `json:"likes"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	Version             int64      `json:"version"`
}

// Clone returns a deep copy of the clip
func (c *Clip) Clone() *Clip {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ThumbnailObjectName != nil {
		name := *c.ThumbnailObjectName
		cp.ThumbnailObjectName = &name
	}
	cp.Likes = slices.Clone(c.Likes)
	if cp.Likes == nil {
		cp.Likes = []string{}
	}
	return &cp
}

// ObjectNames returns every non-empty object name referenced by the clip
func (c *Clip) ObjectNames() []string {
	names := make([]string, 0, 2)
	if c.VideoObjectName != "" {
		names = append(names, c.VideoObjectName)
	}
	if c.ThumbnailObjectName != nil && *c.ThumbnailObjectName != "" {
		names = append(names, *c.ThumbnailObjectName)
	}
	return names
}

// References reports whether name is one of the clip's object names
func (c *Clip) References(name string) bool {
	return slices.Contains(c.ObjectNames(), name)
}

// LikedBy reports whether likerID is in the likes set
func (c *Clip) LikedBy(likerID string) bool {
	return slices.Contains(c.Likes, likerID)
}

// ToggleLike flips likerID's membership in the likes set and returns the
// resulting state.
func (c *Clip) ToggleLike(likerID string) bool {
	if c.Likes == nil {
		c.Likes = []string{}
	}
	if i := slices.Index(c.Likes, likerID); i >= 0 {
		c.Likes = slices.Delete(c.Likes, i, i+1)
		return false
	}
	c.Likes = append(c.Likes, likerID)
	return true
}

// normalizeLikes drops duplicates left behind by older writers
func (c *Clip) normalizeLikes() {
	if c.Likes == nil {
		c.Likes = []string{}
		return
	}
	seen := make(map[string]struct{}, len(c.Likes))
	out := c.Likes[:0]
	for _, id := range c.Likes {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	c.Likes = out
}

// Grant is a time-boxed capability URL for one operation on one object.
// Grants are derived on demand and never stored.
type Grant struct {
	URL        string     `json:"url"`
	ObjectName string     `json:"objectName"`
	Permission Permission `json:"permission"`
	ValidFrom  time.Time  `json:"validFrom"`
	ValidUntil time.Time  `json:"validUntil"`
}

// GrantWindow returns the validity window of a grant issued at now
func GrantWindow(now time.Time, ttl time.Duration) (validFrom, validUntil time.Time) {
	return now.Add(-GrantClockSkew), now.Add(ttl)
}

// User is a login handle record
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
	Version     int64     `json:"version"`
}

// Clone returns a copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// ObjectInfo describes an object held by a BlobStore
type ObjectInfo struct {
	Name         string
	Size         int64
	ContentType  string
	LastModified time.Time
}
