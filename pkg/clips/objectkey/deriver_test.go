package objectkey

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "example", input: "My Clip!! 01.mp4", expected: "My_Clip_01.mp4"},
		{name: "already clean", input: "clip.mp4", expected: "clip.mp4"},
		{name: "surrounding whitespace", input: "   clip.mp4\t", expected: "clip.mp4"},
		{name: "tabs and newlines collapse", input: "a \t\n b.mov", expected: "a_b.mov"},
		{name: "slashes stripped", input: "../../etc/passwd", expected: "....etcpasswd"},
		{name: "unicode stripped", input: "café vidéo.mp4", expected: "caf_vido.mp4"},
		{name: "only symbols", input: "!!!???", expected: ""},
		{name: "empty", input: "", expected: ""},
		{name: "keeps dash underscore dot", input: "a-b_c.d", expected: "a-b_c.d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFileName(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDeriver_Derive(t *testing.T) {
	d := NewDeriver()
	clipID := "5f0c8a43-2a7e-4c55-9b0a-3e1f2d4c6b7a"

	tests := []struct {
		name     string
		owner    string
		role     Role
		file     string
		expected string
		err      error
	}{
		{
			name:     "video",
			owner:    "alice",
			role:     RoleVideo,
			file:     "clip.mp4",
			expected: "alice/" + clipID + "-video-clip.mp4",
		},
		{
			name:     "thumbnail",
			owner:    "alice",
			role:     RoleThumbnail,
			file:     "cover art.png",
			expected: "alice/" + clipID + "-thumbnail-cover_art.png",
		},
		{
			name:     "thumbnail placeholder",
			owner:    "alice",
			role:     RoleThumbnail,
			file:     "???",
			expected: "alice/" + clipID + "-thumbnail-" + ThumbnailPlaceholder,
		},
		{name: "empty video name", owner: "alice", role: RoleVideo, file: "!!", err: ErrEmptyVideoName},
		{name: "missing owner", owner: "", role: RoleVideo, file: "clip.mp4", err: ErrMissingOwner},
		{name: "slash in owner", owner: "a/b", role: RoleVideo, file: "clip.mp4", err: ErrInvalidOwner},
		{name: "unknown role", owner: "alice", role: Role("audio"), file: "clip.mp3", err: ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Derive(tt.owner, clipID, tt.role, tt.file)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected error %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}

	t.Run("missing clip id", func(t *testing.T) {
		if _, err := d.Derive("alice", "", RoleVideo, "clip.mp4"); !errors.Is(err, ErrMissingClipID) {
			t.Errorf("expected ErrMissingClipID, got %v", err)
		}
	})
}

func TestDeriver_Deterministic(t *testing.T) {
	d := NewDeriver()

	first, err := d.Derive("bob", "id-1", RoleVideo, "My Clip!! 01.mp4")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := d.Derive("bob", "id-1", RoleVideo, "My Clip!! 01.mp4")
	if first != second {
		t.Errorf("same inputs produced %s and %s", first, second)
	}

	other, _ := d.Derive("bob", "id-2", RoleVideo, "My Clip!! 01.mp4")
	if other == first {
		t.Errorf("distinct clip ids produced the same name %s", other)
	}

	thumb, _ := d.Derive("bob", "id-1", RoleThumbnail, "My Clip!! 01.mp4")
	if thumb == first {
		t.Errorf("video and thumbnail collided on %s", thumb)
	}
	if !strings.HasPrefix(first, d.Prefix("bob")) {
		t.Errorf("expected %s to start with owner prefix", first)
	}
}

func TestDeriver_Parse(t *testing.T) {
	d := NewDeriver()
	clipID := "5f0c8a43-2a7e-4c55-9b0a-3e1f2d4c6b7a"

	name, err := d.Derive("alice", clipID, RoleThumbnail, "a-video-b.png")
	if err != nil {
		t.Fatal(err)
	}
	parts, ok := d.Parse(name)
	if !ok {
		t.Fatalf("expected %s to parse", name)
	}
	if parts.OwnerID != "alice" || parts.ClipID != clipID || parts.Role != RoleThumbnail || parts.FileName != "a-video-b.png" {
		t.Errorf("unexpected parts: %+v", parts)
	}

	for _, bad := range []string{"", "noslash", "alice/", "alice/abc", "alice/abc-video-", "/id-video-x.mp4"} {
		if _, ok := d.Parse(bad); ok {
			t.Errorf("expected %q not to parse", bad)
		}
	}
}
