package presigned_test

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/presigned"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSigner_GrantWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := presigned.New(presigned.WithSecretKey("test-secret-key"), presigned.WithClock(fixedClock(now)))

	grant, err := signer.Grant("http://localhost:8080/", "videos", "alice/c1-video-clip.mp4", clips.PermissionWriteCreate, 15*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-60*time.Second), grant.ValidFrom)
	assert.Equal(t, now.Add(15*time.Minute), grant.ValidUntil)
	assert.Equal(t, clips.PermissionWriteCreate, grant.Permission)
	assert.Equal(t, "alice/c1-video-clip.mp4", grant.ObjectName)

	u, err := url.Parse(grant.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", u.Host)
	assert.Equal(t, "/blobs/videos/alice/c1-video-clip.mp4", u.Path)
	q := u.Query()
	assert.Equal(t, "cw", q.Get("sp"))
	assert.Equal(t, strconv.FormatInt(grant.ValidFrom.Unix(), 10), q.Get("st"))
	assert.Equal(t, strconv.FormatInt(grant.ValidUntil.Unix(), 10), q.Get("se"))
	assert.NotEmpty(t, q.Get("sig"))
}

func TestSigner_GrantRequiresConfiguration(t *testing.T) {
	t.Run("NoKey", func(t *testing.T) {
		_, err := presigned.New().Grant("", "videos", "a/b", clips.PermissionRead, time.Hour)
		assert.ErrorIs(t, err, clips.ErrConfiguration)
	})

	t.Run("NoContainer", func(t *testing.T) {
		signer := presigned.New(presigned.WithSecretKey("k"))
		_, err := signer.Grant("", "", "a/b", clips.PermissionRead, time.Hour)
		assert.ErrorIs(t, err, clips.ErrConfiguration)
	})

	t.Run("BadPermission", func(t *testing.T) {
		signer := presigned.New(presigned.WithSecretKey("k"))
		_, err := signer.Grant("", "videos", "a/b", clips.Permission("rwx"), time.Hour)
		assert.ErrorIs(t, err, clips.ErrValidation)
	})
}

func TestSigner_Validate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	signer := presigned.New(presigned.WithSecretKey("test-secret-key"), presigned.WithClock(func() time.Time { return clock }))

	from, until := clips.GrantWindow(now, 15*time.Minute)
	signed, err := signer.Sign("videos", "alice/c1-video-clip.mp4", clips.PermissionWriteCreate, from, until)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()
	st, _ := strconv.ParseInt(q.Get("st"), 10, 64)
	se, _ := strconv.ParseInt(q.Get("se"), 10, 64)
	sig := q.Get("sig")

	tests := []struct {
		name   string
		at     time.Time
		method string
		object string
		sig    string
		want   error
	}{
		{"ValidPut", now, "PUT", "alice/c1-video-clip.mp4", sig, nil},
		{"SkewedClientClock", now.Add(-59 * time.Second), "PUT", "alice/c1-video-clip.mp4", sig, nil},
		{"BeforeWindow", now.Add(-61 * time.Second), "PUT", "alice/c1-video-clip.mp4", sig, presigned.ErrNotYetValid},
		{"AfterWindow", now.Add(16 * time.Minute), "PUT", "alice/c1-video-clip.mp4", sig, presigned.ErrExpired},
		{"OtherObject", now, "PUT", "alice/c2-video-clip.mp4", sig, presigned.ErrInvalidSignature},
		{"Tampered", now, "PUT", "alice/c1-video-clip.mp4", strings.Repeat("0", len(sig)), presigned.ErrInvalidSignature},
		{"WriteGrantCannotRead", now, "GET", "alice/c1-video-clip.mp4", sig, presigned.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock = tt.at
			err := signer.Validate(tt.method, "videos", tt.object, q.Get("sp"), st, se, tt.sig)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
				assert.True(t, presigned.IsAuthError(err))
			}
		})
	}
}

func TestPermits(t *testing.T) {
	tests := []struct {
		sp     string
		method string
		want   bool
	}{
		{"r", "GET", true},
		{"r", "HEAD", true},
		{"r", "PUT", false},
		{"cw", "PUT", true},
		{"cw", "GET", false},
		{"rcw", "DELETE", false},
	}
	for _, tt := range tests {
		if got := presigned.Permits(tt.sp, tt.method); got != tt.want {
			t.Errorf("Permits(%q, %q) = %v, want %v", tt.sp, tt.method, got, tt.want)
		}
	}
}
