package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// LocalStorage implements ObjectStorage on a local directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates basePath if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, eris.Wrapf(err, "archive: create %s", basePath)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload copies localPath into the archive directory.
func (l *LocalStorage) Upload(ctx context.Context, localPath, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := l.fullPath(objectPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "archive: create dir for %s", objectPath)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return eris.Wrapf(err, "archive: open %s", localPath)
	}
	defer src.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return eris.Wrap(err, "archive: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "archive: copy %s", localPath)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "archive: close temp file")
	}
	return eris.Wrapf(os.Rename(tmp.Name(), dest), "archive: rename to %s", objectPath)
}

// Exists reports whether objectPath has been uploaded.
func (l *LocalStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.fullPath(objectPath))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "archive: stat %s", objectPath)
	}
	return true, nil
}

func (l *LocalStorage) fullPath(objectPath string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(objectPath))
}
