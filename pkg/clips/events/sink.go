// Package events publishes clip lifecycle events as structured-mode
// CloudEvents over a pluggable transport.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/metrics"
)

// CloudEvent types emitted by Sink
const (
	TypeClipCreated        = "com.musicmoments.clip.created"
	TypeClipUpdated        = "com.musicmoments.clip.updated"
	TypeClipDeleted        = "com.musicmoments.clip.deleted"
	TypeObjectDeleteFailed = "com.musicmoments.clip.object_delete_failed"

	// ContentType is the structured-mode CloudEvents media type
	ContentType = "application/cloudevents+json"

	DefaultSource = "/music-moments-api"
)

// Publisher moves one encoded event onto a transport. key groups events of
// one owner so transports with partitions keep them ordered.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, body []byte) error
	Name() string
	Close() error
}

// ClipEventData is the data payload of every clip event
type ClipEventData struct {
	Clip       *clips.Clip `json:"clip"`
	ObjectName string      `json:"objectName,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Sink implements clips.EventSink on top of a Publisher
type Sink struct {
	publisher Publisher
	source    string
	now       func() time.Time
}

// NewSink creates a Sink. An empty source uses DefaultSource.
func NewSink(publisher Publisher, source string) *Sink {
	if source == "" {
		source = DefaultSource
	}
	return &Sink{publisher: publisher, source: source, now: time.Now}
}

func (s *Sink) ClipCreated(ctx context.Context, clip *clips.Clip) error {
	return s.emit(ctx, TypeClipCreated, ClipEventData{Clip: clip})
}

func (s *Sink) ClipUpdated(ctx context.Context, clip *clips.Clip) error {
	return s.emit(ctx, TypeClipUpdated, ClipEventData{Clip: clip})
}

func (s *Sink) ClipDeleted(ctx context.Context, clip *clips.Clip) error {
	return s.emit(ctx, TypeClipDeleted, ClipEventData{Clip: clip})
}

func (s *Sink) ObjectDeleteFailed(ctx context.Context, clip *clips.Clip, objectName string, cause error) error {
	data := ClipEventData{Clip: clip, ObjectName: objectName}
	if cause != nil {
		data.Error = cause.Error()
	}
	return s.emit(ctx, TypeObjectDeleteFailed, data)
}

// Close releases the underlying transport
func (s *Sink) Close() error {
	return s.publisher.Close()
}

func (s *Sink) emit(ctx context.Context, eventType string, data ClipEventData) error {
	body, err := Encode(s.source, eventType, s.now(), data)
	if err != nil {
		return err
	}

	err = s.publisher.Publish(ctx, data.Clip.OwnerID, eventType, body)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.EventsPublished.WithLabelValues(s.publisher.Name(), eventType, status).Inc()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

// Encode builds a structured-mode CloudEvent for one clip event
func Encode(source, eventType string, at time.Time, data ClipEventData) ([]byte, error) {
	e := event.New()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(eventType)
	e.SetTime(at.UTC())
	if data.Clip != nil {
		e.SetSubject(data.Clip.OwnerID + "/" + data.Clip.ID)
	}
	if err := e.SetData(event.ApplicationJSON, data); err != nil {
		return nil, fmt.Errorf("failed to encode event data: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return json.Marshal(e)
}

// Decode parses a structured-mode CloudEvent produced by Encode
func Decode(body []byte) (*event.Event, *ClipEventData, error) {
	e := event.New()
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, nil, fmt.Errorf("failed to decode event: %w", err)
	}
	var data ClipEventData
	if err := e.DataAs(&data); err != nil {
		return nil, nil, fmt.Errorf("failed to decode event data: %w", err)
	}
	return &e, &data, nil
}
