package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key, eventType string
	body           []byte
}

type fakePublisher struct {
	err  error
	sent []published
}

func (f *fakePublisher) Publish(ctx context.Context, key, eventType string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key, eventType, body})
	return nil
}

func (f *fakePublisher) Name() string { return "fake" }
func (f *fakePublisher) Close() error { return nil }

func testClip() *clips.Clip {
	return &clips.Clip{
		ID:              "c1",
		OwnerID:         "alice",
		Title:           "Demo",
		Genre:           clips.DefaultGenre,
		Status:          clips.ClipStatusPendingUpload,
		VideoObjectName: "alice/c1-video-clip.mp4",
		Likes:           []string{},
		Version:         1,
	}
}

func TestSink_PublishesCloudEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "")
	ctx := context.Background()

	require.NoError(t, sink.ClipCreated(ctx, testClip()))
	require.NoError(t, sink.ObjectDeleteFailed(ctx, testClip(), "alice/c1-video-clip.mp4", errors.New("timeout")))
	require.Len(t, pub.sent, 2)

	assert.Equal(t, "alice", pub.sent[0].key)
	assert.Equal(t, TypeClipCreated, pub.sent[0].eventType)

	e, data, err := Decode(pub.sent[0].body)
	require.NoError(t, err)
	assert.Equal(t, TypeClipCreated, e.Type())
	assert.Equal(t, DefaultSource, e.Source())
	assert.Equal(t, "alice/c1", e.Subject())
	assert.Equal(t, "alice/c1-video-clip.mp4", data.Clip.VideoObjectName)

	_, data, err = Decode(pub.sent[1].body)
	require.NoError(t, err)
	assert.Equal(t, "alice/c1-video-clip.mp4", data.ObjectName)
	assert.Equal(t, "timeout", data.Error)
}

func TestSink_PublishError(t *testing.T) {
	sink := NewSink(&fakePublisher{err: errors.New("broker down")}, "test")
	err := sink.ClipDeleted(context.Background(), testClip())
	assert.ErrorContains(t, err, "broker down")
}

func TestEncode_Time(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	body, err := Encode("src", TypeClipUpdated, at, ClipEventData{Clip: testClip()})
	require.NoError(t, err)

	e, _, err := Decode(body)
	require.NoError(t, err)
	assert.True(t, at.Equal(e.Time()))
}
