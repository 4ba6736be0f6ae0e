package privacy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.vocdoni.io/dvote/log"
)

// Batcher collects items and flushes them as a shuffled batch, either when
// the batch is full or when the flush interval elapses. The shuffle
// decorrelates the order requests arrived in from the order they are
// processed in.
type Batcher[T any] struct {
	maxSize  int
	interval time.Duration
	flush    func([]T)
	clk      clock.Clock

	mu      sync.Mutex
	pending []T
	cancel  context.CancelFunc
}

// NewBatcher creates a batcher delivering batches to flush.
func NewBatcher[T any](maxSize int, interval time.Duration, clk clock.Clock, flush func([]T)) *Batcher[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Batcher[T]{
		maxSize:  maxSize,
		interval: interval,
		flush:    flush,
		clk:      clk,
	}
}

// Start launches the interval flusher. It returns an error if already
// running.
func (b *Batcher[T]) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return fmt.Errorf("batcher already running")
	}
	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
	return nil
}

// Stop halts the interval flusher and flushes any pending items.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.Flush()
}

// Submit queues an item, flushing immediately when the batch fills.
func (b *Batcher[T]) Submit(item T) {
	b.mu.Lock()
	b.pending = append(b.pending, item)
	full := len(b.pending) >= b.maxSize
	b.mu.Unlock()
	if full {
		b.Flush()
	}
}

// Flush shuffles and delivers the pending batch, if any.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	Shuffle(batch)
	log.Debugw("flushing privacy batch", "size", len(batch))
	b.flush(batch)
}

func (b *Batcher[T]) run(ctx context.Context) {
	ticker := b.clk.Ticker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
