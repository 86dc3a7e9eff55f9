package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-forecast/internal/app"
	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/pkg/logger"
)

// session lazily opens the database and builds the services once per
// invocation
type session struct {
	db     *postgres.DB
	app    *app.App
	cancel context.CancelFunc
}

var sess = &session{}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string (defaults to the DB_* settings)",
		EnvVars: []string{"DATABASE_URL"},
	}
}

// openDB prefers --db-url through the pgx driver and falls back to the
// configured DSN
func openDB(c *cli.Context, cfg *config.Config) (*postgres.DB, error) {
	url := c.String("db-url")
	if url == "" {
		return postgres.NewDB(&cfg.Database)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return postgres.Wrap(sqlx.NewDb(db, "pgx")), nil
}

func (s *session) open(c *cli.Context) (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	cfg := config.Load()

	var backend app.Backend
	if c.Bool("memory") {
		backend = app.MemoryBackend()
	} else {
		db, err := openDB(c, cfg)
		if err != nil {
			return nil, err
		}
		s.db = db
		backend = app.PostgresBackend(db)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg, backend)
	if err != nil {
		cancel()
		return nil, err
	}
	s.app = a
	s.cancel = cancel

	if seeds := c.StringSlice("seed"); len(seeds) > 0 {
		res, err := a.Ingest.Import(c.Context, seeds)
		if err != nil {
			return nil, fmt.Errorf("failed to import seed data: %w", err)
		}
		logger.Log.Info().Int("files", res.Files).Int("invalidated", res.Invalidated).Msg("seed data imported")
	}
	return a, nil
}

func (s *session) close(c *cli.Context) error {
	if s.app != nil {
		s.cancel()
		s.app.Shutdown()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func main() {
	cliApp := &cli.App{
		Name:  "forecastctl",
		Usage: "Run demand forecasting and reorder planning from the command line",
		Flags: []cli.Flag{
			newDBURLFlag(),
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "Use an in-process store instead of PostgreSQL",
			},
			&cli.StringSliceFlag{
				Name:  "seed",
				Usage: "Sales history files or directories imported before the command runs",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   logger.FormatConsole,
				Usage:   "console or json",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.Init(c.String("log-level"), c.String("log-format"))
			return nil
		},
		After: sess.close,
		Commands: []*cli.Command{
			migrateCommand(),
			importCommand(),
			statsCommand(),
			seasonalCommand(),
			growthCommand(),
			forecastCommand(),
			learnCommand(),
			reorderCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("forecastctl failed")
	}
}

func keyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "sku", Required: true},
		&cli.StringFlag{Name: "warehouse", Required: true},
	}
}

func keyOf(c *cli.Context) domain.SKUKey {
	return domain.SKUKey{
		SKU:       strings.TrimSpace(c.String("sku")),
		Warehouse: strings.ToLower(strings.TrimSpace(c.String("warehouse"))),
	}
}

// parseMonth accepts YYYY-MM or YYYY-MM-DD. An empty value returns the zero
// time.
func parseMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return domain.MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", value)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
