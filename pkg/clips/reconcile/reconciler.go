// Package reconcile repairs the drift between clip records and object storage
// left behind by non-atomic create and delete sequences.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/metrics"
	"github.com/mateer-t1/music-moments-api/pkg/clips/objectkey"
)

const (
	DefaultPendingDeadline = time.Hour
	DefaultOrphanGrace     = 24 * time.Hour
)

// Options configures one reconciliation pass
type Options struct {
	// OwnerID limits the pass to one owner; empty covers every owner
	OwnerID string

	// PendingDeadline is how long a clip may stay pending-upload before it is
	// promoted or failed
	PendingDeadline time.Duration

	// OrphanGrace is the minimum age of an unreferenced object before deletion
	OrphanGrace time.Duration

	// DryRun reports what would change without writing anything
	DryRun bool
}

// Result contains the actions taken (or, in a dry run, planned) by a pass
type Result struct {
	// ClipsScanned is the number of records inspected
	ClipsScanned int64

	// ObjectsScanned is the number of stored objects inspected
	ObjectsScanned int64

	// Promoted lists stale pending clips whose video exists, now uploaded
	Promoted []string

	// Expired lists stale pending clips with no video, now failed
	Expired []string

	// Missing lists uploaded or ready clips whose video vanished, now failed
	Missing []string

	// OrphansDeleted lists object names with no referencing record
	OrphansDeleted []string

	// Failed lists clip ids or object names whose repair errored
	Failed []string

	DryRun bool
}

// Reconciler scans records and objects and repairs the differences
type Reconciler struct {
	service clips.Service
	repo    clips.ClipRepository
	store   clips.BlobStore
	deriver *objectkey.Deriver
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a Reconciler. Status changes go through service so they use
// the same state machine, version check and events as API updates.
func New(service clips.Service, repo clips.ClipRepository, store clips.BlobStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		service: service,
		repo:    repo,
		store:   store,
		deriver: objectkey.NewDeriver(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one reconciliation pass. Individual repair failures are
// collected in Result.Failed; only scan failures abort the pass.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.PendingDeadline <= 0 {
		opts.PendingDeadline = DefaultPendingDeadline
	}
	if opts.OrphanGrace <= 0 {
		opts.OrphanGrace = DefaultOrphanGrace
	}

	result := &Result{DryRun: opts.DryRun}
	now := r.now().UTC()

	records, err := r.repo.ScanClips(ctx, clips.ClipFilter{OwnerID: opts.OwnerID})
	if err != nil {
		return result, fmt.Errorf("failed to scan clips: %w", err)
	}

	referenced := make(map[string]struct{})
	for _, clip := range records {
		result.ClipsScanned++
		for _, name := range clip.ObjectNames() {
			referenced[name] = struct{}{}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r.reconcileClip(ctx, clip, now.Add(-opts.PendingDeadline), opts.DryRun, result)
	}

	objects, err := r.store.List(ctx, r.deriver.Prefix(opts.OwnerID))
	if err != nil {
		return result, fmt.Errorf("failed to list objects: %w", err)
	}
	cutoff := now.Add(-opts.OrphanGrace)
	for _, obj := range objects {
		result.ObjectsScanned++
		if _, ok := referenced[obj.Name]; ok {
			continue
		}
		// objects this service did not name are left alone
		if _, ok := r.deriver.Parse(obj.Name); !ok {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		r.deleteOrphan(ctx, obj.Name, opts.DryRun, result)
	}

	r.logger.Info("Reconciliation finished",
		"dry_run", opts.DryRun,
		"clips_scanned", result.ClipsScanned,
		"objects_scanned", result.ObjectsScanned,
		"promoted", len(result.Promoted),
		"expired", len(result.Expired),
		"missing", len(result.Missing),
		"orphans_deleted", len(result.OrphansDeleted),
		"failed", len(result.Failed))
	return result, nil
}

func (r *Reconciler) reconcileClip(ctx context.Context, clip *clips.Clip, pendingCutoff time.Time, dryRun bool, result *Result) {
	switch clip.Status {
	case clips.ClipStatusPendingUpload:
		if !clip.CreatedAt.Before(pendingCutoff) {
			return
		}
		exists, err := r.videoExists(ctx, clip)
		if err != nil {
			r.fail(result, clip.ID, "stat video", err)
			return
		}
		if exists {
			r.transition(ctx, clip, clips.ClipStatusUploaded, "promote", dryRun, result, &result.Promoted)
		} else {
			r.transition(ctx, clip, clips.ClipStatusFailed, "expire", dryRun, result, &result.Expired)
		}

	case clips.ClipStatusUploaded, clips.ClipStatusReady:
		exists, err := r.videoExists(ctx, clip)
		if err != nil {
			r.fail(result, clip.ID, "stat video", err)
			return
		}
		if !exists {
			r.transition(ctx, clip, clips.ClipStatusFailed, "missing", dryRun, result, &result.Missing)
		}
	}
}

func (r *Reconciler) videoExists(ctx context.Context, clip *clips.Clip) (bool, error) {
	_, err := r.store.Stat(ctx, clip.VideoObjectName)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, clips.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (r *Reconciler) transition(ctx context.Context, clip *clips.Clip, to clips.ClipStatus, action string, dryRun bool, result *Result, into *[]string) {
	if dryRun {
		recordAction(action, dryRun, nil)
		r.logger.Info("[DRY-RUN] Would change clip status", "clip_id", clip.ID, "owner_id", clip.OwnerID, "from", clip.Status, "to", to)
		*into = append(*into, clip.ID)
		return
	}

	status := to
	_, err := r.service.UpdateClip(ctx, clips.UpdateClipRequest{
		ID:      clip.ID,
		OwnerID: clip.OwnerID,
		Patch:   clips.ClipPatch{Status: &status},
	})
	recordAction(action, dryRun, err)
	if err != nil {
		r.fail(result, clip.ID, action, err)
		return
	}
	r.logger.Info("Changed clip status", "clip_id", clip.ID, "owner_id", clip.OwnerID, "from", clip.Status, "to", to)
	*into = append(*into, clip.ID)
}

func (r *Reconciler) deleteOrphan(ctx context.Context, name string, dryRun bool, result *Result) {
	if dryRun {
		recordAction("delete_orphan", dryRun, nil)
		r.logger.Info("[DRY-RUN] Would delete orphaned object", "object_name", name)
		result.OrphansDeleted = append(result.OrphansDeleted, name)
		return
	}
	_, err := r.store.DeleteIfExists(ctx, name)
	recordAction("delete_orphan", dryRun, err)
	if err != nil {
		r.fail(result, name, "delete orphan", err)
		return
	}
	r.logger.Info("Deleted orphaned object", "object_name", name)
	result.OrphansDeleted = append(result.OrphansDeleted, name)
}

func recordAction(action string, dryRun bool, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ReconcileActions.WithLabelValues(action, strconv.FormatBool(dryRun), outcome).Inc()
}

func (r *Reconciler) fail(result *Result, id, action string, err error) {
	r.logger.Error("Reconciliation step failed", "target", id, "action", action, "err", err)
	result.Failed = append(result.Failed, id)
}

// RunEvery runs a pass immediately and then once per interval until ctx is done
func (r *Reconciler) RunEvery(ctx context.Context, interval time.Duration, opts Options) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx, opts); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("Reconciliation pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
