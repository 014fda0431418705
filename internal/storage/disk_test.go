package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/station-helpdesk/internal/config"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

func textUpload(name, body string) Upload {
	return Upload{
		OriginalName: name,
		Size:         int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func newStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(config.UploadConfig{
		Dir:               filepath.Join(t.TempDir(), "uploads"),
		MaxFiles:          2,
		MaxFileSizeMB:     1,
		AllowedExtensions: []string{"txt", "png"},
	})
	require.NoError(t, err)
	return store
}

func TestDiskStore_SaveAndRemove(t *testing.T) {
	store := newStore(t)

	att, err := store.Save(context.Background(), textUpload("pump-log.TXT", "pressure drop at 09:14"))
	require.NoError(t, err)

	assert.NotEqual(t, "pump-log.TXT", att.Filename)
	assert.True(t, strings.HasSuffix(att.Filename, ".txt"))
	assert.Equal(t, "pump-log.TXT", att.OriginalName)
	assert.Equal(t, int64(len("pressure drop at 09:14")), att.Size)
	assert.Contains(t, att.MimeType, "text/plain")

	content, err := os.ReadFile(att.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "pressure drop at 09:14", string(content))

	require.NoError(t, store.Remove(att))
	_, err = os.Stat(att.StoragePath)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, store.Remove(att))
}

func TestDiskStore_Validate(t *testing.T) {
	store := newStore(t)

	assert.NoError(t, store.Validate([]Upload{textUpload("a.txt", "x"), textUpload("b.png", "y")}))

	err := store.Validate([]Upload{textUpload("a.exe", "x")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	tooMany := []Upload{textUpload("a.txt", "x"), textUpload("b.txt", "x"), textUpload("c.txt", "x")}
	assert.True(t, apperrors.HasCode(store.Validate(tooMany), apperrors.CodeValidation))

	big := textUpload("big.txt", "x")
	big.Size = 2 * 1024 * 1024
	assert.True(t, apperrors.HasCode(store.Validate([]Upload{big}), apperrors.CodeValidation))
}
