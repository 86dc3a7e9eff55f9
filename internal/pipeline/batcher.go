package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Batcher buffers transformed rows and hands them to a sink in batches
type Batcher struct {
	name      string
	config    PipelineConfig
	sink      Sink
	buffer    []TransformedRow
	flushed   int
	mu        sync.Mutex
	lastFlush time.Time
	now       func() time.Time
}

// NewBatcher creates a batcher that flushes into sink
func NewBatcher(name string, config PipelineConfig, sink Sink) *Batcher {
	capacity := config.BatchSize
	if capacity <= 0 {
		capacity = 1
	}
	return &Batcher{
		name:      name,
		config:    config,
		sink:      sink,
		buffer:    make([]TransformedRow, 0, capacity),
		lastFlush: time.Now(),
		now:       time.Now,
	}
}

// Add appends the rows of one file and flushes when the batch is full or stale
func (b *Batcher) Add(ctx context.Context, rows []TransformedRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = append(b.buffer, rows...)

	shouldFlush := (b.config.BatchSize > 0 && len(b.buffer) >= b.config.BatchSize) ||
		(b.config.FlushInterval > 0 && b.now().Sub(b.lastFlush) >= b.config.FlushInterval)

	if shouldFlush {
		return b.flushLocked(ctx)
	}
	return nil
}

// Finalize flushes whatever is still buffered
func (b *Batcher) Finalize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Flushed returns the number of rows handed to the sink so far
func (b *Batcher) Flushed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}

// flushLocked must be called with b.mu held
func (b *Batcher) flushLocked(ctx context.Context) error {
	if len(b.buffer) == 0 {
		return nil
	}

	batch := b.buffer
	if b.sink != nil {
		if err := b.sink(ctx, batch); err != nil {
			return fmt.Errorf("failed to flush %d rows: %w", len(batch), err)
		}
	}

	log.Debug().Str("pipeline", b.name).Int("rows", len(batch)).Msg("flushed batch")

	b.flushed += len(batch)
	b.buffer = make([]TransformedRow, 0, cap(batch))
	b.lastFlush = b.now()
	return nil
}
