package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchInserter persists a batch of entries.
type BatchInserter interface {
	BatchInsert(ctx context.Context, entries []Entry) error
}

// FlushFunc is notified after every flush attempt.
type FlushFunc func(count int, err error)

// Collector buffers entries in memory and writes them to the store in
// batches, either when the buffer reaches batchSize or every flushInterval.
// It is safe for concurrent use.
type Collector struct {
	store         BatchInserter
	buffer        []Entry
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	onFlush       FlushFunc
	now           func() time.Time
	done          chan struct{}
	stopped       chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a Collector. onFlush may be nil.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration, onFlush FlushFunc) *Collector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Collector{
		store:         store,
		buffer:        make([]Entry, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		onFlush:       onFlush,
		now:           time.Now,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start flushes on a timer until Stop is called or ctx is cancelled, then
// performs a final flush. It blocks, so run it in its own goroutine.
func (c *Collector) Start(ctx context.Context) {
	defer close(c.stopped)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Record buffers an entry. A missing CreatedAt is stamped with the current
// time.
func (c *Collector) Record(e Entry) {
	if e.TeamID == "" {
		slog.Warn("dropping activity entry without team", "action", e.Action, "resource_type", e.ResourceType)
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now().UTC()
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, e)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		c.flush()
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Entry, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.store.BatchInsert(ctx, batch)
	if err != nil {
		slog.Error("failed to flush activity entries", "count", len(batch), "error", err)
	}
	if c.onFlush != nil {
		c.onFlush(len(batch), err)
	}
}

// Stop signals Start to exit and waits for its final flush. It is safe to
// call more than once but must only be called after Start has been launched.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.stopped
}
