package geostore

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/banshee-data/geotrack/internal/fsutil"
	"github.com/banshee-data/geotrack/internal/security"
)

// FileUploader writes images under a directory and returns URLs below a
// public prefix, e.g. "/images/person-3-<session>-<uuid>.jpg".
type FileUploader struct {
	fs        fsutil.FileSystem
	dir       string
	urlPrefix string
}

// NewFileUploader creates a FileUploader writing into dir.
func NewFileUploader(fs fsutil.FileSystem, dir, urlPrefix string) *FileUploader {
	return &FileUploader{fs: fs, dir: dir, urlPrefix: urlPrefix}
}

// Upload implements ImageUploader.
func (u *FileUploader) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := u.fs.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	name := security.SanitizeFilename(key) + "-" + uuid.NewString() + ".jpg"
	target, err := security.JoinWithin(u.dir, name)
	if err != nil {
		return "", err
	}
	if err := u.fs.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path.Join(u.urlPrefix, name), nil
}
