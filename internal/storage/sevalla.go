package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chartmuseum/storage"
)

// SevallaConfig encapsulates the connection info for Sevalla (S3-compatible) storage.
type SevallaConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// BackendClient implements ObjectStorage on top of a chartmuseum backend.
type BackendClient struct {
	name    string
	backend storage.Backend
}

func (c SevallaConfig) validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("sevalla endpoint must be provided")
	case c.AccessKey == "" || c.SecretKey == "":
		return fmt.Errorf("sevalla credentials must be provided")
	case c.Bucket == "":
		return fmt.Errorf("sevalla bucket must be provided")
	}
	return nil
}

// endpointURL adds a scheme to bare host endpoints
func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "https"
	if !useSSL {
		scheme = "http"
	}
	return scheme + "://" + strings.TrimPrefix(endpoint, "//")
}

// NewSevallaClient builds a client backed by chartmuseum's Amazon storage
// backend. Archives and sales exports share the bucket under their own key
// prefixes.
func NewSevallaClient(cfg SevallaConfig) (*BackendClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	os.Setenv("AWS_ACCESS_KEY_ID", cfg.AccessKey)
	os.Setenv("AWS_SECRET_ACCESS_KEY", cfg.SecretKey)
	os.Setenv("AWS_REGION", region)
	os.Setenv("AWS_DEFAULT_REGION", region)

	backend := storage.NewAmazonS3BackendWithOptions(
		cfg.Bucket,
		"", // no prefix
		region,
		endpoint,
		"",
		&storage.AmazonS3Options{
			S3ForcePathStyle: awsBool(true),
		},
	)

	return &BackendClient{name: "sevalla", backend: backend}, nil
}

// NewLocalClient stores objects under a directory on disk
func NewLocalClient(dir string) (*BackendClient, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage directory must be provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating storage directory %s: %w", dir, err)
	}
	return &BackendClient{name: "local", backend: storage.NewLocalFilesystemBackend(dir)}, nil
}

// ListObjects lists all objects for a given prefix.
func (c *BackendClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	files, err := c.backend.ListObjects(prefix)
	if err != nil {
		return nil, fmt.Errorf("%s list failed: %w", c.name, err)
	}
	results := make([]ObjectInfo, 0, len(files))
	for _, object := range files {
		results = append(results, ObjectInfo{
			Key:  object.Path,
			Size: int64(len(object.Content)),
		})
	}
	return results, nil
}

// DownloadObject downloads an object to the provided destination path.
func (c *BackendClient) DownloadObject(ctx context.Context, key, destPath string) error {
	object, err := c.backend.GetObject(key)
	if err != nil {
		return fmt.Errorf("%s get %s failed: %w", c.name, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}
	if err := os.WriteFile(destPath, object.Content, 0o644); err != nil {
		return fmt.Errorf("failed writing %s: %w", destPath, err)
	}
	return nil
}

// UploadObject writes data under key, replacing any existing object.
func (c *BackendClient) UploadObject(ctx context.Context, key string, data []byte) error {
	if err := c.backend.PutObject(key, data); err != nil {
		return fmt.Errorf("%s put %s failed: %w", c.name, key, err)
	}
	return nil
}

var _ ObjectStorage = (*BackendClient)(nil)

func awsBool(v bool) *bool {
	return &v
}
