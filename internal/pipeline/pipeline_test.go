package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	rows  map[string][]TransformedRow
	fail  map[string]error
	dates map[string]time.Time
}

func (f *fakePipeline) Name() string { return "fake" }

func (f *fakePipeline) Transform(_ context.Context, file string) ([]TransformedRow, error) {
	if err := f.fail[file]; err != nil {
		return nil, err
	}
	return f.rows[file], nil
}

func (f *fakePipeline) GetSnapshotDate(file string) (time.Time, error) {
	d, ok := f.dates[file]
	if !ok {
		return time.Time{}, errors.New("no date")
	}
	return d, nil
}

func (f *fakePipeline) Validate(string) error { return nil }

type collectingSink struct {
	mu      sync.Mutex
	batches [][]TransformedRow
}

func (c *collectingSink) sink(_ context.Context, rows []TransformedRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, rows)
	return nil
}

func (c *collectingSink) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func salesRow(sku string) TransformedRow {
	return TransformedRow{Sales: domain.MonthlySales{SKU: sku, Warehouse: "WH", UnitsSold: 1}}
}

func TestBatcherFlushesAtBatchSize(t *testing.T) {
	sink := &collectingSink{}
	b := NewBatcher("t", PipelineConfig{BatchSize: 2}, sink.sink)
	ctx := context.Background()

	require.NoError(t, b.Add(ctx, []TransformedRow{salesRow("a")}))
	assert.Empty(t, sink.batches)

	require.NoError(t, b.Add(ctx, []TransformedRow{salesRow("b")}))
	assert.Len(t, sink.batches, 1)

	require.NoError(t, b.Add(ctx, []TransformedRow{salesRow("c")}))
	require.NoError(t, b.Finalize(ctx))
	assert.Len(t, sink.batches, 2)
	assert.Equal(t, 3, b.Flushed())
}

func TestBatcherFlushesWhenStale(t *testing.T) {
	sink := &collectingSink{}
	b := NewBatcher("t", PipelineConfig{BatchSize: 100, FlushInterval: time.Minute}, sink.sink)
	clock := time.Now()
	b.now = func() time.Time { return clock }
	b.lastFlush = clock

	require.NoError(t, b.Add(context.Background(), []TransformedRow{salesRow("a")}))
	assert.Empty(t, sink.batches)

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, b.Add(context.Background(), []TransformedRow{salesRow("b")}))
	assert.Len(t, sink.batches, 1)
}

func TestBatcherPropagatesSinkError(t *testing.T) {
	b := NewBatcher("t", PipelineConfig{BatchSize: 1}, func(context.Context, []TransformedRow) error {
		return errors.New("db down")
	})
	err := b.Add(context.Background(), []TransformedRow{salesRow("a")})
	assert.ErrorContains(t, err, "db down")
}

func TestOrchestratorGroupsByMonthAndTracksRuns(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePipeline{
		rows: map[string][]TransformedRow{
			"a.csv": {salesRow("a"), salesRow("b")},
			"b.csv": {salesRow("c")},
			"c.csv": {salesRow("d")},
		},
		dates: map[string]time.Time{"a.csv": jan, "b.csv": jan.AddDate(0, 0, 10), "c.csv": feb},
	}
	store := NewMemoryRunStore()
	sink := &collectingSink{}
	cfg := PipelineConfig{Name: "fake", BatchSize: 10, WorkerCount: 2, RetryAttempts: 1}

	runs, err := NewOrchestrator(store, cfg, sink.sink).Run(context.Background(), p, []string{"c.csv", "a.csv", "b.csv"})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, jan, runs[0].Date)
	assert.Equal(t, StatusCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].ProcessedFiles)
	assert.Equal(t, 3, runs[0].TotalRows)
	assert.Equal(t, feb, runs[1].Date)
	assert.Equal(t, 4, sink.total())

	listed, err := store.ListPipelineRuns(context.Background(), "fake", 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, feb, listed[0].Date)

	jobs, err := store.GetFileJobsByRunID(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, FileStatusCompleted, j.Status)
	}
}

func TestWorkerMarksRunFailedOnFileError(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePipeline{
		rows:  map[string][]TransformedRow{"ok.csv": {salesRow("a")}},
		fail:  map[string]error{"bad.csv": errors.New("corrupt")},
		dates: map[string]time.Time{"ok.csv": jan, "bad.csv": jan},
	}
	store := NewMemoryRunStore()
	w := NewWorker(p, PipelineConfig{BatchSize: 10, WorkerCount: 1, RetryAttempts: 2}, store, (&collectingSink{}).sink)

	run, err := w.ProcessBatch(context.Background(), jan, []string{"ok.csv", "bad.csv"})
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "corrupt")

	jobs, err := store.GetFileJobsByRunID(context.Background(), run.ID)
	require.NoError(t, err)
	var failed *FileJob
	for _, j := range jobs {
		if j.FilePath == "bad.csv" {
			failed = j
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, FileStatusFailed, failed.Status)
	assert.Equal(t, 2, failed.RetryCount)
}

func TestWorkerReusesRunForSamePeriod(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePipeline{
		rows:  map[string][]TransformedRow{"a.csv": {salesRow("a")}},
		dates: map[string]time.Time{"a.csv": jan},
	}
	store := NewMemoryRunStore()
	w := NewWorker(p, DefaultPipelineConfig("fake"), store, (&collectingSink{}).sink)

	first, err := w.ProcessBatch(context.Background(), jan, []string{"a.csv"})
	require.NoError(t, err)
	second, err := w.ProcessBatch(context.Background(), jan, []string{"a.csv"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.ProcessedFiles)
	assert.Equal(t, 1, second.TotalRows)
}
