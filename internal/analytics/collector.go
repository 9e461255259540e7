package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omnidex-search/omnidex/pkg/kafka"
	"github.com/omnidex-search/omnidex/pkg/logger"
)

// Collector buffers search events off the request path and flushes them to
// Kafka in batches, either when the buffer reaches batchSize or on the
// flush interval. Tracking never blocks a query; a full buffer drops the
// oldest pending flush instead.
type Collector struct {
	producer      *kafka.Producer
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	log           *slog.Logger
	done          chan struct{}
}

func NewCollector(producer *kafka.Producer, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		producer:      producer,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           logger.WithComponent("analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.log.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track buffers one search event. A full batch triggers an immediate
// asynchronous flush.
func (c *Collector) Track(event SearchEvent) {
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: string(event.Type), Value: event})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		go c.flush(context.Background())
	}
}

// Close waits for the flush loop to drain and exit.
func (c *Collector) Close() {
	<-c.done
}

// BufferLen reports the number of events awaiting flush.
func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.log.Error("batch flush failed", "events", len(batch), "error", err)
		// Requeue once; cap the backlog so a dead broker cannot grow it
		// without bound.
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			c.log.Warn("analytics backlog overflow", "dropped", len(c.buffer)-limit)
			c.buffer = c.buffer[:limit]
		}
		c.mu.Unlock()
		return
	}
	c.log.Debug("batch flushed", "events", len(batch))
}
