package sales_history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline"
)

// Name is the pipeline identifier used in run tracking
const Name = "sales_history"

const defaultDateFormat = "200601"

// Config controls how sales history files are parsed.
type Config struct {
	// InputDateFormat is the layout of the period prefix in filenames
	InputDateFormat string
	// DefaultWarehouse is used when neither the file nor its name carries one
	DefaultWarehouse string
}

// SalesHistoryPipeline parses monthly sales exports into MonthlySales rows.
type SalesHistoryPipeline struct {
	config Config
}

// NewSalesHistoryPipeline creates a new sales history pipeline instance.
func NewSalesHistoryPipeline(cfg Config) *SalesHistoryPipeline {
	if cfg.InputDateFormat == "" {
		cfg.InputDateFormat = defaultDateFormat
	}
	return &SalesHistoryPipeline{config: cfg}
}

// Name returns the unique identifier of this pipeline.
func (p *SalesHistoryPipeline) Name() string {
	return Name
}

// GetSnapshotDate extracts the sales month from the filename prefix.
func (p *SalesHistoryPipeline) GetSnapshotDate(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	layout := p.config.InputDateFormat
	if len(base) < len(layout) {
		return time.Time{}, fmt.Errorf("filename %s does not contain date with layout %s", filename, layout)
	}

	t, err := time.Parse(layout, base[:len(layout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("filename %s does not contain date with layout %s: %w", filename, layout, err)
	}
	return domain.MonthStart(t), nil
}

// Validate performs basic validation on the input file.
func (p *SalesHistoryPipeline) Validate(inputFile string) error {
	info, err := os.Stat(inputFile)
	if err != nil {
		return fmt.Errorf("cannot stat input file %s: %w", inputFile, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected file", inputFile)
	}
	ext := strings.ToLower(filepath.Ext(inputFile))
	if ext != ".csv" {
		return fmt.Errorf("unsupported file extension %s for %s (only CSV supported)", ext, inputFile)
	}
	if _, err := p.GetSnapshotDate(inputFile); err != nil {
		return err
	}
	return nil
}

// Transform reads one CSV file and returns its sales rows.
func (p *SalesHistoryPipeline) Transform(ctx context.Context, inputFile string) ([]pipeline.TransformedRow, error) {
	period, err := p.GetSnapshotDate(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse period: %w", err)
	}

	file, err := os.Open(inputFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rows, err := p.parse(ctx, file, period, p.warehouseFromFilename(inputFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", inputFile, err)
	}

	source := filepath.Base(inputFile)
	out := make([]pipeline.TransformedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, pipeline.TransformedRow{Sales: r, Source: source})
	}
	return out, nil
}

// warehouseFromFilename returns the text after the period prefix, e.g.
// "202403_Kentucky.csv" gives "kentucky".
func (p *SalesHistoryPipeline) warehouseFromFilename(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	layout := p.config.InputDateFormat
	if len(name) > len(layout)+1 && name[len(layout)] == '_' {
		return strings.ToLower(strings.TrimSpace(name[len(layout)+1:]))
	}
	return ""
}

func (p *SalesHistoryPipeline) parse(ctx context.Context, r io.Reader, period time.Time, fileWarehouse string) ([]domain.MonthlySales, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := func(names ...string) int {
		targets := make(map[string]struct{}, len(names))
		for _, name := range names {
			targets[normalizeColumnName(name)] = struct{}{}
		}
		for i, h := range header {
			if _, ok := targets[normalizeColumnName(h)]; ok {
				return i
			}
		}
		return -1
	}

	idxSKU := colIndex("sku", "kode barang")
	idxWarehouse := colIndex("warehouse", "gudang", "store", "toko")
	idxUnits := colIndex("units_sold", "qty", "quantity", "sales", "penjualan")
	idxStockout := colIndex("stockout_days", "oos_days", "out of stock days")
	idxMonth := colIndex("month", "period", "bulan")

	if idxSKU < 0 {
		return nil, errors.New("missing sku column")
	}
	if idxUnits < 0 {
		return nil, errors.New("missing units sold column")
	}

	// Merge duplicate lines for the same key so a file yields one row per key
	type rowKey struct {
		key   domain.SKUKey
		month time.Time
	}
	merged := make(map[rowKey]*domain.MonthlySales)
	order := make([]rowKey, 0)

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(idx int) string {
			if idx < 0 || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		sku := get(idxSKU)
		if sku == "" {
			continue
		}

		warehouse := get(idxWarehouse)
		if warehouse == "" {
			warehouse = fileWarehouse
		}
		if warehouse == "" {
			warehouse = p.config.DefaultWarehouse
		}
		if warehouse == "" {
			return nil, fmt.Errorf("line %d: no warehouse for sku %s", line, sku)
		}
		warehouse = strings.ToLower(warehouse)

		month := period
		if raw := get(idxMonth); raw != "" {
			m, err := parseMonth(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			month = m
		}

		units, err := parseNumber(get(idxUnits))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid units sold: %w", line, err)
		}
		if units < 0 {
			units = 0
		}

		stockout, err := parseNumber(get(idxStockout))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid stockout days: %w", line, err)
		}

		k := rowKey{key: domain.SKUKey{SKU: sku, Warehouse: warehouse}, month: month}
		existing, ok := merged[k]
		if !ok {
			existing = &domain.MonthlySales{SKU: sku, Warehouse: warehouse, Month: month}
			merged[k] = existing
			order = append(order, k)
		}
		existing.UnitsSold += units
		existing.StockoutDays = clampStockoutDays(existing.StockoutDays+int(stockout), month)
	}

	out := make([]domain.MonthlySales, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out, nil
}

var monthLayouts = []string{"2006-01", "2006-01-02", "200601", "01/2006", "Jan 2006", "January 2006"}

func parseMonth(raw string) (time.Time, error) {
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return domain.MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised month %q", raw)
}

// parseNumber accepts plain and thousands-separated numbers; blank is zero.
func parseNumber(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	raw = strings.ReplaceAll(raw, ",", "")
	return strconv.ParseFloat(raw, 64)
}

func clampStockoutDays(days int, month time.Time) int {
	if days < 0 {
		return 0
	}
	if limit := domain.DaysInMonth(month); days > limit {
		return limit
	}
	return days
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}
