package clips

import (
	"context"
	"errors"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ClipCreated(ctx context.Context, clip *Clip) error { return nil }

func (n *NoopEventSink) ClipUpdated(ctx context.Context, clip *Clip) error { return nil }

func (n *NoopEventSink) ClipDeleted(ctx context.Context, clip *Clip) error { return nil }

func (n *NoopEventSink) ObjectDeleteFailed(ctx context.Context, clip *Clip, objectName string, cause error) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action.
// Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// ClipCreated logs the clip creation event
func (l *LoggingEventSink) ClipCreated(ctx context.Context, clip *Clip) error {
	l.logger.InfoContext(ctx, "Clip created", "clip_id", clip.ID, "owner_id", clip.OwnerID, "status", clip.Status)
	return nil
}

// ClipUpdated logs the clip update event
func (l *LoggingEventSink) ClipUpdated(ctx context.Context, clip *Clip) error {
	l.logger.InfoContext(ctx, "Clip updated", "clip_id", clip.ID, "owner_id", clip.OwnerID, "status", clip.Status, "version", clip.Version)
	return nil
}

// ClipDeleted logs the clip deletion event
func (l *LoggingEventSink) ClipDeleted(ctx context.Context, clip *Clip) error {
	l.logger.InfoContext(ctx, "Clip deleted", "clip_id", clip.ID, "owner_id", clip.OwnerID)
	return nil
}

// ObjectDeleteFailed logs an object left behind by a clip deletion
func (l *LoggingEventSink) ObjectDeleteFailed(ctx context.Context, clip *Clip, objectName string, cause error) error {
	l.logger.WarnContext(ctx, "Clip object left behind", "clip_id", clip.ID, "owner_id", clip.OwnerID, "object_name", objectName, "err", cause)
	return nil
}

// MultiEventSink forwards every event to each sink in order and joins their errors
type MultiEventSink []EventSink

func (m MultiEventSink) ClipCreated(ctx context.Context, clip *Clip) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ClipCreated(ctx, clip))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) ClipUpdated(ctx context.Context, clip *Clip) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ClipUpdated(ctx, clip))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) ClipDeleted(ctx context.Context, clip *Clip) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ClipDeleted(ctx, clip))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) ObjectDeleteFailed(ctx context.Context, clip *Clip, objectName string, cause error) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ObjectDeleteFailed(ctx, clip, objectName, cause))
	}
	return errors.Join(errs...)
}
