package storage

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-forecast/internal/config"
)

const (
	ProviderNone    = ""
	ProviderLocal   = "local"
	ProviderMinio   = "minio"
	ProviderSevalla = "sevalla"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations archives and
// the ingest pipeline need.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}

// New builds the configured backend. It returns nil without error when no
// provider is configured.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	var (
		store ObjectStorage
		err   error
	)
	switch cfg.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderLocal:
		store, err = NewLocalClient(cfg.LocalDir)
	case ProviderMinio:
		store, err = NewMinioClient(ctx, MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	case ProviderSevalla:
		store, err = NewSevallaClient(SevallaConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
