package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-forecast/internal/cache"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/internal/service"
	"github.com/andresuchdata/autopo-forecast/pkg/logger"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database migrations",
		Action: func(c *cli.Context) error {
			if c.Bool("memory") {
				return fmt.Errorf("migrate needs a database")
			}
			if _, err := sess.open(c); err != nil {
				return err
			}
			if err := postgres.Migrate(c.Context, sess.db.DB.DB); err != nil {
				return err
			}
			logger.Log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Inspect and recalculate demand statistics",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Flags: keyFlags(),
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					stat, err := a.Stats.Get(c.Context, keyOf(c))
					if err != nil {
						return err
					}
					return printJSON(stat)
				},
			},
			{
				Name:  "recalculate",
				Usage: "Recalculate one key, or every key when --sku is omitted",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sku"},
					&cli.StringFlag{Name: "warehouse"},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					if c.IsSet("sku") {
						stat, err := a.Stats.Recalculate(c.Context, keyOf(c))
						if err != nil {
							return err
						}
						return printJSON(stat)
					}
					res, err := a.Stats.RecalculateAll(c.Context, progressLogger("demand stats"))
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name:  "invalidate",
				Flags: keyFlags(),
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					return a.Stats.Invalidate(c.Context, keyOf(c), service.ReasonManual)
				},
			},
		},
	}
}

func seasonalCommand() *cli.Command {
	return &cli.Command{
		Name:  "seasonal",
		Usage: "Inspect and recalculate seasonal profiles",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Flags: keyFlags(),
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					profile, err := a.Seasonal.Profile(c.Context, keyOf(c))
					if err != nil {
						return err
					}
					return printJSON(profile)
				},
			},
			{
				Name:  "recalculate",
				Usage: "Recalculate one key, or every key when --sku is omitted",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sku"},
					&cli.StringFlag{Name: "warehouse"},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					if c.IsSet("sku") {
						profile, err := a.Seasonal.Recalculate(c.Context, keyOf(c))
						if err != nil {
							return err
						}
						return printJSON(profile)
					}
					res, err := a.Seasonal.RecalculateAll(c.Context, progressLogger("seasonal factors"))
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
		},
	}
}

func growthCommand() *cli.Command {
	return &cli.Command{
		Name:  "growth",
		Usage: "Resolve the annual growth rate of a key",
		Flags: append(keyFlags(), &cli.Float64Flag{Name: "override", Usage: "Run level override"}),
		Action: func(c *cli.Context) error {
			a, err := sess.open(c)
			if err != nil {
				return err
			}
			var override *float64
			if c.IsSet("override") {
				v := c.Float64("override")
				override = &v
			}
			rate, err := a.Growth.Resolve(c.Context, keyOf(c), override)
			if err != nil {
				return err
			}
			return printJSON(rate)
		},
	}
}

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Create and manage forecast runs",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Submit a twelve month forecast run",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "start", Usage: "First forecast month, YYYY-MM"},
					&cli.Float64Flag{Name: "growth", Usage: "Growth override for every key"},
					&cli.StringSliceFlag{Name: "sku"},
					&cli.StringSliceFlag{Name: "warehouse"},
					&cli.BoolFlag{Name: "wait", Usage: "Block until the run finishes", Value: true},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					req := service.CreateRunRequest{
						Name:       c.String("name"),
						SKUs:       c.StringSlice("sku"),
						Warehouses: c.StringSlice("warehouse"),
					}
					start, err := parseMonth(c.String("start"))
					if err != nil {
						return err
					}
					if !start.IsZero() {
						req.ForecastStart = &start
					}
					if c.IsSet("growth") {
						g := c.Float64("growth")
						req.GrowthOverride = &g
					}

					run, err := a.Forecasts.Submit(c.Context, req)
					if err != nil {
						return err
					}
					if c.Bool("wait") {
						if run, err = a.Forecasts.Wait(c.Context, run.ID); err != nil {
							return err
						}
					}
					return printJSON(run)
				},
			},
			{
				Name: "list",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status"},
					&cli.BoolFlag{Name: "archived"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					filter := domain.RunFilter{
						IncludeArchived: c.Bool("archived"),
						Page:            1,
						PageSize:        c.Int("limit"),
					}
					if raw := c.String("status"); raw != "" {
						status, ok := domain.ParseRunStatus(raw)
						if !ok {
							return fmt.Errorf("invalid status %q", raw)
						}
						filter.Status = status
					}
					runs, total, err := a.Forecasts.ListRuns(c.Context, filter)
					if err != nil {
						return err
					}
					return printJSON(map[string]interface{}{"data": runs, "total": total})
				},
			},
			{
				Name:  "details",
				Flags: []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					details, err := a.Forecasts.ListDetails(c.Context, c.Int64("id"))
					if err != nil {
						return err
					}
					return printJSON(details)
				},
			},
			{
				Name:  "cancel",
				Flags: []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					run, err := a.Forecasts.Cancel(c.Context, c.Int64("id"))
					if err != nil {
						return err
					}
					return printJSON(run)
				},
			},
			{
				Name:  "archive",
				Usage: "Export a finished run to object storage",
				Flags: []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					run, err := a.Forecasts.Archive(c.Context, c.Int64("id"))
					if err != nil {
						return err
					}
					return printJSON(run)
				},
			},
		},
	}
}

func learnCommand() *cli.Command {
	return &cli.Command{
		Name:  "learn",
		Usage: "Measure forecast accuracy and manage learning adjustments",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Record actuals up to --as-of and analyse the results",
				Flags: []cli.Flag{&cli.StringFlag{Name: "as-of", Usage: "YYYY-MM-DD, defaults to today"}},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					asOf := time.Now().UTC()
					if raw := c.String("as-of"); raw != "" {
						if asOf, err = time.Parse("2006-01-02", raw); err != nil {
							return fmt.Errorf("invalid --as-of %q: %w", raw, err)
						}
					}
					recorded, err := a.Learning.RecordActuals(c.Context, asOf)
					if err != nil {
						return err
					}
					res, err := a.Learning.Analyze(c.Context)
					if err != nil {
						return err
					}
					return printJSON(map[string]interface{}{"recorded": recorded, "analysis": res})
				},
			},
			{
				Name: "summary",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sku"},
					&cli.StringFlag{Name: "warehouse"},
					&cli.BoolFlag{Name: "include-stockout"},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					filter := cache.AccuracyFilter{IncludeStockout: c.Bool("include-stockout")}
					if c.IsSet("sku") {
						filter.Keys = []domain.SKUKey{keyOf(c)}
					}
					summaries, err := a.Learning.Summary(c.Context, filter)
					if err != nil {
						return err
					}
					return printJSON(summaries)
				},
			},
			{
				Name:  "adjustments",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "pending", Usage: "Only adjustments not yet applied"}},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					var applied *bool
					if c.Bool("pending") {
						no := false
						applied = &no
					}
					adjustments, err := a.Learning.ListAdjustments(c.Context, applied)
					if err != nil {
						return err
					}
					return printJSON(adjustments)
				},
			},
			{
				Name:  "apply",
				Flags: []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					adj, err := a.Learning.Apply(c.Context, c.Int64("id"))
					if err != nil {
						return err
					}
					return printJSON(adj)
				},
			},
		},
	}
}

func reorderCommand() *cli.Command {
	return &cli.Command{
		Name:  "reorder",
		Usage: "Generate and review order recommendations",
		Subcommands: []*cli.Command{
			{
				Name: "generate",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "month", Usage: "Order month, YYYY-MM; defaults to the current month"},
					&cli.StringSliceFlag{Name: "sku"},
					&cli.StringSliceFlag{Name: "warehouse"},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					month, err := parseMonth(c.String("month"))
					if err != nil {
						return err
					}
					res, err := a.Reorder.Generate(c.Context, service.GenerateRequest{
						OrderMonth: month,
						SKUs:       c.StringSlice("sku"),
						Warehouses: c.StringSlice("warehouse"),
					})
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name: "list",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "month"},
					&cli.StringFlag{Name: "warehouse"},
					&cli.StringFlag{Name: "urgency"},
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					month, err := parseMonth(c.String("month"))
					if err != nil {
						return err
					}
					recs, total, err := a.Reorder.List(c.Context, domain.RecommendationFilter{
						OrderMonth: month,
						Warehouse:  c.String("warehouse"),
						Urgency:    domain.Urgency(c.String("urgency")),
						Page:       1,
						PageSize:   c.Int("limit"),
					})
					if err != nil {
						return err
					}
					return printJSON(map[string]interface{}{"data": recs, "total": total})
				},
			},
			{
				Name: "lock",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Required: true},
					&cli.StringFlag{Name: "user", EnvVars: []string{"USER"}},
				},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					rec, err := a.Reorder.Lock(c.Context, c.Int64("id"), c.String("user"))
					if err != nil {
						return err
					}
					return printJSON(rec)
				},
			},
			{
				Name:  "unlock",
				Flags: []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					rec, err := a.Reorder.Unlock(c.Context, c.Int64("id"))
					if err != nil {
						return err
					}
					return printJSON(rec)
				},
			},
			{
				Name:  "supply",
				Usage: "Show pending supply for a key",
				Flags: append(keyFlags(), &cli.StringFlag{Name: "as-of", Usage: "YYYY-MM-DD, defaults to today"}),
				Action: func(c *cli.Context) error {
					a, err := sess.open(c)
					if err != nil {
						return err
					}
					asOf := time.Now().UTC()
					if raw := c.String("as-of"); raw != "" {
						if asOf, err = time.Parse("2006-01-02", raw); err != nil {
							return fmt.Errorf("invalid --as-of %q: %w", raw, err)
						}
					}
					view, err := a.Reorder.SupplyView(c.Context, keyOf(c), asOf)
					if err != nil {
						return err
					}
					return printJSON(view)
				},
			},
		},
	}
}

func progressLogger(task string) service.ProgressFunc {
	return func(done, total int) {
		if done == total || done%100 == 0 {
			logger.Log.Info().Str("task", task).Int("done", done).Int("total", total).Msg("progress")
		}
	}
}
