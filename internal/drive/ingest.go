package drive

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/service"
)

// Importer runs the sales history pipeline over local files
type Importer interface {
	Import(ctx context.Context, paths []string) (service.ImportResult, error)
}

// IngestService pulls sales exports from Drive and imports them
type IngestService struct {
	source     Source
	downloader *Downloader
	importer   Importer
	dataDir    string
	folderPath string
}

func NewIngestService(source Source, importer Importer, dataDir, folderPath string) *IngestService {
	return &IngestService{
		source:     source,
		downloader: NewDownloader(source),
		importer:   importer,
		dataDir:    dataDir,
		folderPath: folderPath,
	}
}

// IngestFile downloads one Drive file and imports it. The file name must
// follow the YYYYMM_<warehouse> convention of the pipeline.
func (s *IngestService) IngestFile(ctx context.Context, fileID string) (service.ImportResult, error) {
	dir, cleanup, err := s.workDir()
	if err != nil {
		return service.ImportResult{}, err
	}
	defer cleanup()

	path, err := s.downloader.DownloadFile(ctx, fileID, dir)
	if err != nil {
		return service.ImportResult{}, err
	}
	return s.importer.Import(ctx, []string{path})
}

// IngestFolder downloads every export of a folder and imports the ones the
// pipeline accepts. An empty folder id resolves path, then the configured
// folder path.
func (s *IngestService) IngestFolder(ctx context.Context, folderID, path string) (service.ImportResult, error) {
	if folderID == "" {
		if path == "" {
			path = s.folderPath
		}
		id, err := s.source.FindFolderByPath(ctx, path)
		if err != nil {
			return service.ImportResult{}, err
		}
		folderID = id
	}

	dir, cleanup, err := s.workDir()
	if err != nil {
		return service.ImportResult{}, err
	}
	defer cleanup()

	files, err := s.downloader.DownloadFolderCSV(ctx, DownloadOptions{FolderID: folderID, DownloadDir: dir})
	if err != nil {
		return service.ImportResult{}, err
	}
	log.Info().Str("folder_id", folderID).Int("files", len(files)).Msg("drive folder downloaded")
	if len(files) == 0 {
		return service.ImportResult{}, nil
	}
	return s.importer.Import(ctx, []string{dir})
}

func (s *IngestService) workDir() (string, func(), error) {
	if s.dataDir != "" {
		if err := os.MkdirAll(s.dataDir, 0755); err != nil {
			return "", nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(s.dataDir, "drive-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
