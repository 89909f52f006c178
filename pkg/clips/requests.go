package clips

// CreateClipRequest contains parameters for creating a clip
type CreateClipRequest struct {
	Title             string
	Genre             string
	OwnerID           string
	VideoFileName     string
	ThumbnailFileName string
}

// CreateClipResult is the persisted record plus one upload grant per object name
type CreateClipResult struct {
	Clip            *Clip
	VideoUpload     *Grant
	ThumbnailUpload *Grant // nil when the clip has no thumbnail
}

// Playback holds freshly issued read grants for a clip
type Playback struct {
	ClipID    string
	OwnerID   string
	Video     *Grant
	Thumbnail *Grant // nil when the clip has no thumbnail
}

// ListClipsRequest selects either one owner's clips or, with All, every clip
type ListClipsRequest struct {
	OwnerID string
	All     bool
}

// ClipPatch enumerates the mutable clip fields. Nil fields are left unchanged.
// An empty ThumbnailObjectName clears the thumbnail.
type ClipPatch struct {
	Title               *string     `json:"title,omitempty"`
	Genre               *string     `json:"genre,omitempty"`
	Status              *ClipStatus `json:"status,omitempty"`
	VideoObjectName     *string     `json:"videoObjectName,omitempty"`
	ThumbnailObjectName *string     `json:"thumbnailObjectName,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ClipPatch) IsEmpty() bool {
	return p.Title == nil && p.Genre == nil && p.Status == nil &&
		p.VideoObjectName == nil && p.ThumbnailObjectName == nil
}

// UpdateClipRequest contains parameters for patching a clip
type UpdateClipRequest struct {
	ID      string
	OwnerID string
	Patch   ClipPatch
}

// DeleteResult reports which objects were removed alongside the record
type DeleteResult struct {
	Deleted      bool
	DeletedBlobs []string
	FailedBlobs  []string
}

// LikeResult is the like count and the caller's state after a toggle
type LikeResult struct {
	Likes int
	Liked bool
}

// LoginResult is the user record and whether this login created it
type LoginResult struct {
	User    *User
	Created bool
}
