// Package archive mirrors the dated output files of a run to object storage.
package archive

import "context"

// ObjectStorage stores files under object paths.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error
	// Exists reports whether objectPath is present.
	Exists(ctx context.Context, objectPath string) (bool, error)
}
