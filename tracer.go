package segmentz

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"
)

// SegmentHandler is called when a segment completes.
type SegmentHandler func(segment SegmentProtocol)

type handlerEntry struct {
	handler SegmentHandler
	id      uint64
	async   bool
}

// Tracer creates segments and dispatches completed ones to handlers.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers          []handlerEntry
	panicHook         func(handlerID uint64, r interface{})
	workers           *workerPool
	traceIDPool       *idPool
	segmentIDPool     *idPool
	clock             clockz.Clock
	logger            logr.Logger
	serviceInstanceID int32
	handlersLock      sync.RWMutex
	idPoolOnce        sync.Once
	nextID            atomic.Uint64
	droppedSegments   atomic.Uint64
	disabled          atomic.Bool
}

// New creates a tracer for the given service instance.
// Uses the real clock and discards log output.
func New(serviceInstanceID int32) *Tracer {
	return &Tracer{
		handlers:          make([]handlerEntry, 0),
		clock:             clockz.RealClock,
		logger:            logr.Discard(),
		serviceInstanceID: serviceInstanceID,
	}
}

// NewFromConfig creates a tracer from a validated configuration.
func NewFromConfig(cfg Config) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := New(cfg.ServiceInstanceID)
	t.SetEnabled(!cfg.Disabled)
	if cfg.Workers > 0 {
		if err := t.EnableWorkerPool(cfg.Workers, cfg.QueueSize); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// WithClock sets the clock used for span and log timestamps.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	t.clock = clock
	return t
}

// WithLogger sets the logger used for diagnostics.
func (t *Tracer) WithLogger(logger logr.Logger) *Tracer {
	t.logger = logger.WithName("segmentz")
	return t
}

// ServiceInstanceID returns the local service instance id.
func (t *Tracer) ServiceInstanceID() int32 {
	return t.serviceInstanceID
}

// SetEnabled toggles tracing. A disabled tracer hands out no-op spans.
func (t *Tracer) SetEnabled(enabled bool) {
	t.disabled.Store(!enabled)
}

// Enabled reports whether the tracer records spans.
func (t *Tracer) Enabled() bool {
	return !t.disabled.Load()
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100
		t.traceIDPool = newUUIDPool(poolSize)
		t.segmentIDPool = newUUIDPool(poolSize)
	})
}

// NewSegment starts a segment with fresh trace and segment ids. The segment
// is dispatched to the tracer's handlers when its last span finishes.
func (t *Tracer) NewSegment() *Segment {
	t.ensureIDPools()
	seg := NewSegment(t.traceIDPool.Get(), t.segmentIDPool.Get(), t.serviceInstanceID, t.clock)
	seg.OnComplete(t.collectSegment)
	return seg
}

func (t *Tracer) collectSegment(seg *Segment) {
	t.executeHandlers(*seg.Flush())
}

// OnSegmentComplete registers a synchronous handler called when segments complete.
func (t *Tracer) OnSegmentComplete(handler SegmentHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSegmentCompleteAsync registers an asynchronous handler called when segments complete.
func (t *Tracer) OnSegmentCompleteAsync(handler SegmentHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SegmentHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any segment handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// executeHandlers calls all registered handlers with the completed segment.
func (t *Tracer) executeHandlers(segment SegmentProtocol) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if workers != nil {
				if !workers.submit(func() { t.safeCall(entry, segment) }) {
					t.droppedSegments.Add(1)
					t.logger.V(1).Info("segment dropped, worker queue full",
						"handler", entry.id, "segmentId", segment.SegmentID)
				}
			} else {
				go t.safeCall(entry, segment)
			}
		} else {
			t.safeCall(h, segment)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, segment SegmentProtocol) {
	defer func() {
		if r := recover(); r != nil {
			t.handlersLock.RLock()
			hook := t.panicHook
			t.handlersLock.RUnlock()

			if hook != nil {
				hook(entry.id, r)
				return
			}
			t.logger.Error(fmt.Errorf("%v", r), "segment handler panicked", "handler", entry.id)
		}
	}()
	entry.handler(segment)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = &workerPool{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSegments returns the number of segments dropped due to a full worker queue.
func (t *Tracer) DroppedSegments() uint64 {
	return t.droppedSegments.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// Segments completing after Close reach no handler.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.segmentIDPool != nil {
		t.segmentIDPool.Close()
	}
}

// workerPool runs async handlers on a fixed number of goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks chan func()
	stop  chan struct{}
	wg    sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

// submit queues task, reporting false when the queue is full.
func (w *workerPool) submit(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
