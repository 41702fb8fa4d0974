package geostore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/geotrack/internal/fsutil"
)

func TestFileUploader(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	up := NewFileUploader(mfs, "/var/geotrack/images", "/images")

	url, err := up.Upload(context.Background(), "traffic light-2-abc", []byte("jpeg"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/images/traffic_light-2-abc-"), url)
	assert.True(t, strings.HasSuffix(url, ".jpg"), url)

	data, err := mfs.ReadFile(filepath.Join("/var/geotrack/images", strings.TrimPrefix(url, "/images/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	other, err := up.Upload(context.Background(), "traffic light-2-abc", []byte("jpeg"))
	require.NoError(t, err)
	assert.NotEqual(t, url, other, "every upload gets a unique name")
}

func TestFileUploader_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	up := NewFileUploader(fsutil.NewMemoryFileSystem(), "/img", "/images")
	_, err := up.Upload(ctx, "k", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileUploader_HostileKey(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	up := NewFileUploader(mfs, "/img", "/images")

	url, err := up.Upload(context.Background(), "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/images/etc_passwd-"), url)

	files := mfs.Files()
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0], "/img/"), files[0])
}
