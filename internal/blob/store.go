// Package blob accesses the storage container that hands backup artifacts
// from the snapshot producer to the local restore.
package blob

import "context"

// Store defines the container operations the workflows need.
type Store interface {
	// Exists reports whether an artifact with exactly this name is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Download fetches an artifact to a local path, overwriting any
	// existing file.
	Download(ctx context.Context, name, destPath string) error
	// Delete removes an artifact from the container.
	Delete(ctx context.Context, name string) error
	// Identifier returns a string identifying the container for progress
	// output.
	Identifier() string
}
