package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/reconcile"
	"github.com/spf13/cobra"
)

// NewReconcileCommand creates the reconcile command
func NewReconcileCommand() *cobra.Command {
	var (
		owner           string
		dryRun          bool
		interval        time.Duration
		pendingDeadline time.Duration
		orphanGrace     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair drift between clip records and stored objects",
		Long: `Promote or fail stale pending-upload clips, fail clips whose video is
missing, and delete objects no clip references once they are older than the
grace period. With --interval the pass repeats until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, comps, err := buildComponents(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			opts := cfg.ReconcileOptions()
			opts.OwnerID = owner
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = dryRun
			}
			if pendingDeadline > 0 {
				opts.PendingDeadline = pendingDeadline
			}
			if orphanGrace > 0 {
				opts.OrphanGrace = orphanGrace
			}

			reconciler := comps.Reconciler()
			if interval > 0 {
				err := reconciler.RunEvery(cmd.Context(), interval, opts)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			result, err := reconciler.Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}
			printResult(cmd, result)
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d repairs failed", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only reconcile this owner's clips and objects")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned changes without applying them")
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat the pass at this interval")
	cmd.Flags().DurationVar(&pendingDeadline, "pending-deadline", 0, "age after which pending-upload clips are resolved")
	cmd.Flags().DurationVar(&orphanGrace, "orphan-grace", 0, "minimum age of an unreferenced object before deletion")

	return cmd
}

func printResult(cmd *cobra.Command, result *reconcile.Result) {
	out := cmd.OutOrStdout()
	if result.DryRun {
		fmt.Fprintln(out, "Dry run, nothing was changed")
	}
	fmt.Fprintf(out, "Clips scanned:   %d\n", result.ClipsScanned)
	fmt.Fprintf(out, "Objects scanned: %d\n", result.ObjectsScanned)
	printList(cmd, "Promoted to uploaded", result.Promoted)
	printList(cmd, "Expired pending uploads", result.Expired)
	printList(cmd, "Missing video", result.Missing)
	printList(cmd, "Orphans deleted", result.OrphansDeleted)
	printList(cmd, "Failed", result.Failed)
}

func printList(cmd *cobra.Command, label string, items []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", label, len(items))
	for _, item := range items {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", item)
	}
}

// NewGrantCommand creates the grant command
func NewGrantCommand() *cobra.Command {
	var (
		permission string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "grant <object-name>",
		Short: "Issue an access grant URL for an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm := clips.Permission(permission)
			if !perm.IsValid() {
				return fmt.Errorf("permission must be %q or %q", clips.PermissionRead, clips.PermissionWriteCreate)
			}

			_, comps, err := buildComponents(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			if perm == clips.PermissionWriteCreate {
				if err := comps.Store.EnsureContainer(cmd.Context()); err != nil {
					return err
				}
			}
			grant, err := comps.Store.IssueGrant(cmd.Context(), args[0], perm, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue grant: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, grant.URL)
			fmt.Fprintf(out, "valid from %s until %s\n",
				grant.ValidFrom.Format(time.RFC3339), grant.ValidUntil.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&permission, "permission", "p", string(clips.PermissionRead), "r (read) or cw (write-create)")
	cmd.Flags().DurationVar(&ttl, "ttl", clips.DefaultReadGrantTTL, "grant lifetime")

	return cmd
}

// NewUploadCommand creates the upload command
func NewUploadCommand() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <file> <object-name>",
		Short: "Upload a local file directly to the object store",
		Long: `Upload a local file under the given object name, bypassing grants. Used
to backfill objects for clips whose client upload never arrived.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath, objectName := args[0], args[1]

			file, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", filePath, err)
			}
			defer file.Close()

			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(filePath))
			}

			_, comps, err := buildComponents(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			if err := comps.Store.EnsureContainer(cmd.Context()); err != nil {
				return err
			}
			if err := comps.Store.Put(cmd.Context(), objectName, file, contentType); err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			info, err := comps.Store.Stat(cmd.Context(), objectName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes)\n", info.Name, info.Size)
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: guessed from the file extension)")

	return cmd
}
