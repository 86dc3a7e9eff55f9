package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-forecast/internal/app"
	"github.com/andresuchdata/autopo-forecast/internal/drive"
	"github.com/andresuchdata/autopo-forecast/internal/service"
	"github.com/andresuchdata/autopo-forecast/internal/storage"
	"github.com/andresuchdata/autopo-forecast/pkg/logger"
)

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import monthly sales history files (YYYYMM_<warehouse>.csv)",
		ArgsUsage: "[file or directory...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "drive-folder-id",
				Usage: "Google Drive folder to import",
			},
			&cli.StringFlag{
				Name:  "drive-path",
				Usage: "Google Drive folder path to import, e.g. Exports/Sales",
			},
			&cli.StringFlag{
				Name:  "drive-file-id",
				Usage: "Single Google Drive file to import",
			},
			&cli.StringFlag{
				Name:    "storage-prefix",
				Usage:   "Object storage prefix holding sales CSV files",
				EnvVars: []string{"SALES_STORAGE_PREFIX"},
			},
			&cli.StringFlag{
				Name:  "storage-key",
				Usage: "Single object to import, relative to --storage-prefix",
			},
		},
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	a, err := sess.open(c)
	if err != nil {
		return err
	}

	var results []service.ImportResult
	if c.Args().Len() > 0 {
		res, err := a.Ingest.Import(c.Context, c.Args().Slice())
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if c.IsSet("drive-folder-id") || c.IsSet("drive-path") || c.IsSet("drive-file-id") {
		res, err := importFromDrive(c, a)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if c.IsSet("storage-prefix") || c.IsSet("storage-key") {
		res, err := importFromStorage(c, a)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		return fmt.Errorf("nothing to import: pass paths, a drive folder or a storage prefix")
	}
	return printJSON(results)
}

func importFromDrive(c *cli.Context, a *app.App) (service.ImportResult, error) {
	cfg := a.Config
	if cfg.Drive.CredentialsJSON == "" {
		return service.ImportResult{}, fmt.Errorf("GOOGLE_CREDENTIALS_JSON is required for drive imports")
	}
	source, err := drive.NewService(c.Context, cfg.Drive.CredentialsJSON)
	if err != nil {
		return service.ImportResult{}, err
	}
	ingest := drive.NewIngestService(source, a.Ingest, cfg.App.DataDir, cfg.Drive.FolderPath)

	if fileID := c.String("drive-file-id"); fileID != "" {
		return ingest.IngestFile(c.Context, fileID)
	}
	return ingest.IngestFolder(c.Context, c.String("drive-folder-id"), c.String("drive-path"))
}

func importFromStorage(c *cli.Context, a *app.App) (service.ImportResult, error) {
	if a.Storage == nil {
		return service.ImportResult{}, fmt.Errorf("STORAGE_PROVIDER must be set for storage imports")
	}

	if err := os.MkdirAll(a.Config.App.DataDir, 0o755); err != nil {
		return service.ImportResult{}, fmt.Errorf("failed to ensure data dir: %w", err)
	}
	dir, err := os.MkdirTemp(a.Config.App.DataDir, "storage-*")
	if err != nil {
		return service.ImportResult{}, fmt.Errorf("failed to create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths, err := storage.DownloadPrefix(c.Context, a.Storage, c.String("storage-prefix"), c.String("storage-key"), dir, ".csv")
	if err != nil {
		return service.ImportResult{}, err
	}
	logger.Log.Info().Int("files", len(paths)).Str("dir", filepath.Base(dir)).Msg("downloaded sales files from object storage")

	// the pipeline filters names it cannot parse when given the directory
	return a.Ingest.Import(c.Context, []string{dir})
}
