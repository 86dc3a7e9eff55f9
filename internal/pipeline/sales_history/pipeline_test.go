package sales_history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetSnapshotDate(t *testing.T) {
	p := NewSalesHistoryPipeline(Config{})

	got, err := p.GetSnapshotDate("/tmp/202403_WH-JKT.csv")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = p.GetSnapshotDate("sales.csv")
	assert.Error(t, err)
}

func TestTransformParsesAliasesAndClampsStockout(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "202402_wh-a.csv", strings.Join([]string{
		"SKU,Gudang,Qty,OOS Days",
		"A-1,WH1,\"1,200\",3",
		"A-2,,40,45",
		"A-1,WH1,10,-1",
		",WH1,5,0",
	}, "\n"))

	p := NewSalesHistoryPipeline(Config{})
	require.NoError(t, p.Validate(path))

	rows, err := p.Transform(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0].Sales
	assert.Equal(t, "A-1", first.SKU)
	assert.Equal(t, "wh1", first.Warehouse)
	assert.Equal(t, 1210.0, first.UnitsSold)
	assert.Equal(t, 2, first.StockoutDays)
	assert.Equal(t, "202402_wh-a.csv", rows[0].Source)

	second := rows[1].Sales
	assert.Equal(t, "wh-a", second.Warehouse, "falls back to the warehouse in the filename")
	assert.Equal(t, 29, second.StockoutDays, "february 2024 has 29 days")
}

func TestTransformUsesMonthColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "202401_history.csv", strings.Join([]string{
		"sku,warehouse,month,units_sold,stockout_days",
		"B-1,WH2,2023-11,12,0",
		"B-1,WH2,2023-12,15,1",
	}, "\n"))

	rows, err := NewSalesHistoryPipeline(Config{}).Transform(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC), rows[0].Sales.Month)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), rows[1].Sales.Month)
}

func TestTransformRejectsMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "202401_x.csv", "warehouse,units_sold\nWH,1\n")

	_, err := NewSalesHistoryPipeline(Config{}).Transform(context.Background(), path)
	assert.ErrorContains(t, err, "missing sku column")
}

func TestTransformRequiresWarehouse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "202401.csv", "sku,units_sold\nC-1,4\n")

	_, err := NewSalesHistoryPipeline(Config{}).Transform(context.Background(), path)
	assert.Error(t, err)

	rows, err := NewSalesHistoryPipeline(Config{DefaultWarehouse: "MAIN"}).Transform(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "main", rows[0].Sales.Warehouse)
}

func TestValidateRejectsNonCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "202401_x.txt", "sku\n")
	assert.Error(t, NewSalesHistoryPipeline(Config{}).Validate(path))
}
