// Package restore implements the local developer restore: verify the
// expected artifact exists, download it, restore it with a manifest-driven
// relocation plan, then clean up both copies of the artifact.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/frobelworks/dbops/internal/blob"
	"github.com/frobelworks/dbops/internal/mssql"
	"github.com/frobelworks/dbops/internal/naming"
)

// ErrArtifactNotFound aborts the run before any side effect when the
// expected artifact is not in the container. There is no fallback to an
// older or differently named artifact.
var ErrArtifactNotFound = errors.New("restore: backup artifact not found")

// Engine is the subset of engine operations the restore needs.
type Engine interface {
	FileList(ctx context.Context, bakPath string) ([]mssql.BackupFile, error)
	RestoreWithMove(ctx context.Context, targetDB, bakPath string, moves []mssql.Relocation, timeout time.Duration) error
}

// Orchestrator runs the four-phase pipeline.
type Orchestrator struct {
	Blobs     blob.Store
	Engine    Engine
	Database  string
	Developer string
	WorkDir   string
	// Timeout bounds the restore statement; large backups need well over
	// the driver default.
	Timeout time.Duration
	// Now supplies the date for the expected artifact name.
	Now func() time.Time
	Out io.Writer
}

// Run executes the pipeline. On success the target database exists, the
// artifact is gone both remotely and locally, and the restored database's
// own files remain in the working directory.
func (o *Orchestrator) Run(ctx context.Context) error {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	name := naming.ArtifactName(o.Database, o.Developer, now())
	target := naming.TargetDatabase(o.Database, o.Developer)

	// Phase 1: existence gate. No side effects before this passes.
	fmt.Fprintf(o.Out, "Checking %s for %s\n", o.Blobs.Identifier(), name)
	exists, err := o.Blobs.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking for artifact %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s is not in %s, run 'dbops backup' first", ErrArtifactNotFound, name, o.Blobs.Identifier())
	}
	fmt.Fprintf(o.Out, "✓ Artifact found.\n")

	// Phase 2: download, overwriting any stale local copy.
	localPath := filepath.Join(o.WorkDir, name)
	fmt.Fprintf(o.Out, "Downloading to %s\n", localPath)
	if err := o.Blobs.Download(ctx, name, localPath); err != nil {
		return fmt.Errorf("downloading artifact %s: %w", name, err)
	}
	fmt.Fprintf(o.Out, "✓ Artifact downloaded.\n")

	// Phase 3: manifest-driven restore.
	files, err := o.Engine.FileList(ctx, localPath)
	if err != nil {
		return fmt.Errorf("reading backup manifest: %w", err)
	}
	plan := mssql.BuildPlan(files, o.WorkDir)
	fmt.Fprintf(o.Out, "Restoring %s (%d files relocated)\n", target, len(plan))
	if err := o.Engine.RestoreWithMove(ctx, target, localPath, plan, o.Timeout); err != nil {
		return fmt.Errorf("restoring %s: %w", target, err)
	}
	fmt.Fprintf(o.Out, "✓ Database %s restored.\n", target)

	// Phase 4: cleanup. The remote artifact goes unconditionally; a local
	// deletion failure is only a warning, the restore already succeeded.
	if err := o.Blobs.Delete(ctx, name); err != nil {
		return fmt.Errorf("deleting remote artifact %s: %w", name, err)
	}
	fmt.Fprintf(o.Out, "✓ Remote artifact deleted.\n")

	if err := os.Remove(localPath); err != nil {
		fmt.Fprintf(o.Out, "⚠ Could not delete local file %s: %v\n", localPath, err)
	} else {
		fmt.Fprintf(o.Out, "✓ Local artifact deleted.\n")
	}

	return nil
}
