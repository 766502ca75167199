package segmentz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Collector buffers completed segments for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	segments     []SegmentProtocol
	segmentsCh   chan SegmentProtocol
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:       name,
		segments:   make([]SegmentProtocol, 0, 8),
		segmentsCh: make(chan SegmentProtocol, bufferSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving segments from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining segments before shutdown.
			for {
				select {
				case seg := <-c.segmentsCh:
					c.buffer(seg)
				default:
					return
				}
			}
		case seg := <-c.segmentsCh:
			c.buffer(seg)
		}
	}
}

// Close stops the collector goroutine after draining queued segments.
// Buffered segments stay available to Export.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Collect buffers a segment with backpressure protection. It has the
// SegmentHandler signature so it can be registered on a Tracer directly.
// If the internal channel is full, the segment is dropped and the drop
// counter is incremented.
func (c *Collector) Collect(segment SegmentProtocol) {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.buffer(segment)
		return
	}

	select {
	case c.segmentsCh <- segment:
	default:
		// Channel full - drop segment to prevent blocking.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(segment SegmentProtocol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = append(c.segments, segment)
}

// Export returns all buffered segments and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []SegmentProtocol {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.segments) == 0 {
		return nil
	}

	result := make([]SegmentProtocol, len(c.segments))
	copy(result, c.segments)

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.segments) > 256 && len(c.segments) < cap(c.segments)/8 {
		newCap := cap(c.segments) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.segments = make([]SegmentProtocol, 0, newCap)
	} else {
		c.segments = c.segments[:0]
	}

	return result
}

// FlushTo exports buffered segments through exporter. Segments are removed
// from the buffer even when the export fails.
func (c *Collector) FlushTo(ctx context.Context, exporter Exporter) error {
	segments := c.Export()
	if len(segments) == 0 {
		return nil
	}
	if err := exporter.Export(ctx, segments); err != nil {
		return errors.Wrapf(err, "collector %s: flush %d segments", c.name, len(segments))
	}
	return nil
}

// Count returns the current number of buffered segments.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segments)
}

// DroppedCount returns the total number of segments dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, segments are buffered directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered segments and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.segments = c.segments[:0]
	c.droppedCount.Store(0)
}

// NewCollectorFromConfig creates a collector named after the service.
func NewCollectorFromConfig(cfg Config) *Collector {
	return NewCollector(cfg.ServiceName, cfg.BufferSize)
}
