package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medstock/medstock/internal/config"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	info, err := s.Put(ctx, "reports/2024-03-01.json", "application/json", strings.NewReader(`{"total":3}`))
	require.NoError(t, err)
	assert.Equal(t, "reports/2024-03-01.json", info.Key)
	assert.Equal(t, int64(11), info.Size)
	assert.NotEmpty(t, info.ETag)

	_, err = s.Put(ctx, "reports/2024-03-01.json", "application/json", strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Put(ctx, "other/x.json", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)

	got, rc, err := s.Get(ctx, "reports/2024-03-01.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, `{"total":3}`, string(body))
	assert.Equal(t, int64(11), got.Size)

	_, _, err = s.Get(ctx, "reports/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx, "reports/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "reports/2024-03-01.json", list[0].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFilesystem(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestCleanKey(t *testing.T) {
	for _, bad := range []string{"", "  ", "/etc/passwd", "../up.json", `a\b`} {
		_, err := CleanKey(bad)
		assert.Error(t, err, bad)
	}
	k, err := CleanKey("reports//a.json")
	require.NoError(t, err)
	assert.Equal(t, "reports/a.json", k)
}

func TestOpen_Filesystem(t *testing.T) {
	s, err := Open(context.Background(), &config.Config{ExportDriver: config.ExportFS, ExportDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "fs", s.Driver())

	_, err = Open(context.Background(), &config.Config{ExportDriver: "ftp"})
	assert.Error(t, err)
}

func TestOpen_S3(t *testing.T) {
	s, err := Open(context.Background(), &config.Config{
		ExportDriver:            config.ExportS3,
		ExportS3Bucket:          "exports",
		ExportS3Region:          "eu-west-1",
		ExportS3Endpoint:        "http://localhost:9000",
		ExportS3PathStyle:       true,
		ExportS3AccessKeyID:     "minio",
		ExportS3SecretAccessKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3", s.Driver())

	_, err = NewS3(context.Background(), S3Config{})
	assert.Error(t, err)
}
