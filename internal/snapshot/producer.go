// Package snapshot issues the production backup: a full, compressed,
// copy-only backup written by the engine directly to the storage container.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/frobelworks/dbops/internal/naming"
)

// Engine is the single engine operation the producer needs.
type Engine interface {
	BackupToURL(ctx context.Context, database, blobURL string) error
}

// Producer computes the artifact name for today and runs the backup.
type Producer struct {
	Engine     Engine
	Database   string
	Developer  string
	AccountURL string
	Container  string
	// Now supplies the date for the artifact name; defaults to time.Now.
	Now func() time.Time
	Out io.Writer
}

// Run performs the backup. Any engine failure propagates unretried; the
// destination object is overwritten if it already exists.
func (p *Producer) Run(ctx context.Context) (string, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	name := naming.ArtifactName(p.Database, p.Developer, now())
	url := naming.BlobURL(p.AccountURL, p.Container, name)

	fmt.Fprintf(p.Out, "Backing up %s to %s\n", p.Database, url)
	if err := p.Engine.BackupToURL(ctx, p.Database, url); err != nil {
		return "", err
	}
	fmt.Fprintf(p.Out, "✓ Backup written: %s\n", name)

	return name, nil
}
