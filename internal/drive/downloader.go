package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrFolderNotFound  = errors.New("drive folder not found")
	ErrUnsupportedFile = errors.New("unsupported drive file type")
)

// DownloadOptions controls how files are pulled from Google Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
}

// Downloader pulls sales exports from Drive into a local directory.
type Downloader struct {
	source Source
}

// NewDownloader creates a new Downloader.
func NewDownloader(s Source) *Downloader {
	return &Downloader{source: s}
}

// DownloadFolderCSV downloads all non-trashed CSV and XLSX files from the given Drive folder
// into DownloadDir and returns local CSV paths.
//
//   - CSV files are downloaded directly.
//   - XLSX files are downloaded to a temporary .xlsx, then the first sheet is converted
//     to CSV in DownloadDir and the temporary .xlsx is removed.
func (d *Downloader) DownloadFolderCSV(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if err := ensureDir(opts.DownloadDir); err != nil {
		return nil, err
	}

	files, err := d.source.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}

	var localPaths []string
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !supported(f.Name) {
			log.Debug().Str("file", f.Name).Msg("skipping non sales export")
			continue
		}
		path, err := d.fetch(ctx, f, opts.DownloadDir)
		if err != nil {
			return nil, err
		}
		localPaths = append(localPaths, path)
	}

	return localPaths, nil
}

// DownloadFile downloads a single CSV or XLSX file and returns its local CSV path
func (d *Downloader) DownloadFile(ctx context.Context, fileID, dir string) (string, error) {
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	f, err := d.source.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if !supported(f.Name) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, f.Name)
	}
	return d.fetch(ctx, f, dir)
}

func (d *Downloader) fetch(ctx context.Context, f *File, dir string) (string, error) {
	name := filepath.Base(f.Name)
	localPath := filepath.Join(dir, name)
	if err := d.save(ctx, f, localPath); err != nil {
		return "", err
	}
	if strings.ToLower(filepath.Ext(name)) == ".csv" {
		return localPath, nil
	}

	// XLSX: convert first sheet to CSV next to it
	csvPath := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+".csv")
	if err := convertXLSXToCSV(localPath, csvPath); err != nil {
		return "", fmt.Errorf("failed to convert %s to csv: %w", f.Name, err)
	}
	_ = os.Remove(localPath)
	return csvPath, nil
}

func (d *Downloader) save(ctx context.Context, f *File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", path, err)
	}
	if err := d.source.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		return fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	return out.Close()
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}
	return nil
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".csv" || ext == ".xlsx"
}
