package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-forecast/internal/config"
)

func TestLocalClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)

	payload := []byte(`{"run_id":7}`)
	require.NoError(t, client.UploadObject(ctx, "forecast-archives/7.json", payload))

	dest := filepath.Join(t.TempDir(), "out", "7.json")
	require.NoError(t, client.DownloadObject(ctx, "forecast-archives/7.json", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestNewWithoutProvider(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = New(context.Background(), config.StorageConfig{Provider: "ftp"})
	assert.Error(t, err)
}

func TestSevallaRequiresSettings(t *testing.T) {
	_, err := NewSevallaClient(SevallaConfig{})
	assert.Error(t, err)

	_, err = NewSevallaClient(SevallaConfig{Endpoint: "s3.example.com"})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("a/b.json"))
	assert.Equal(t, "text/csv", contentType("202401_sales.csv"))
	assert.Equal(t, "application/octet-stream", contentType("blob"))
}

func TestDownloadPrefix(t *testing.T) {
	ctx := context.Background()
	client, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, client.UploadObject(ctx, "sales/202401_kentucky.csv", []byte("sku,units\n")))
	require.NoError(t, client.UploadObject(ctx, "sales/notes.txt", []byte("skip")))
	require.NoError(t, client.UploadObject(ctx, "other/202401_burnaby.csv", []byte("sku,units\n")))

	dest := t.TempDir()
	paths, err := DownloadPrefix(ctx, client, "sales", "", dest, ".csv")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "202401_kentucky.csv")}, paths)

	single := t.TempDir()
	paths, err = DownloadPrefix(ctx, client, "sales/", "202401_kentucky.csv", single)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(single, "202401_kentucky.csv")}, paths)
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "sales/a.csv", resolveObjectKey("sales/", "a.csv"))
	assert.Equal(t, "sales/a.csv", resolveObjectKey("sales", "/sales/a.csv"))
	assert.Equal(t, "a.csv", resolveObjectKey("", "/a.csv"))
	assert.Equal(t, "2024/a.csv", objectRelativePath("sales", "sales/2024/a.csv"))
	assert.Equal(t, "a.csv", objectRelativePath("sales", "other/a.csv"))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", endpointURL("s3.example.com", true))
	assert.Equal(t, "http://s3.example.com", endpointURL("//s3.example.com", false))
	assert.Equal(t, "http://minio:9000", endpointURL("http://minio:9000", true))
}
