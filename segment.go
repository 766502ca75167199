package segmentz

import (
	"time"

	"github.com/zoobzio/clockz"
)

// TraceContext is the bookkeeping a span needs from the segment that owns it.
type TraceContext interface {
	// NextSpanID returns span ids strictly increasing from 0.
	NextSpanID() int32
	AddActiveSpan(span Span)
	FinishSpan(span Span)
	// AddFirstReferenceIfAbsent records ref as the segment's first reference
	// unless one is already set, adopting the propagated trace id.
	AddFirstReferenceIfAbsent(ref *SegmentReference)
	HasFirstReference() bool
	FirstReference() *SegmentReference
	TraceID() string
	SegmentID() string
	ServiceInstanceID() int32
	// FirstCreatedSpan is nil until the first span registers.
	FirstCreatedSpan() Span
	Now() time.Time
}

// Segment is the default TraceContext: the spans one process records for one
// request. Segments are not thread-safe; one goroutine drives a segment.
//
//nolint:govet // Field order optimized for readability
type Segment struct {
	clock             clockz.Clock
	onComplete        func(*Segment)
	firstRef          *SegmentReference
	firstSpan         Span
	active            []Span
	finished          []Span
	traceID           string
	segmentID         string
	serviceInstanceID int32
	nextSpanID        int32
	notified          int
	flushed           int
	completed         bool
}

// NewSegment creates a segment with explicit identifiers. Most callers use
// Tracer.NewSegment instead.
func NewSegment(traceID, segmentID string, serviceInstanceID int32, clock clockz.Clock) *Segment {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Segment{
		clock:             clock,
		traceID:           traceID,
		segmentID:         segmentID,
		serviceInstanceID: serviceInstanceID,
	}
}

// OnComplete sets the hook called once the last active span finishes.
func (s *Segment) OnComplete(hook func(*Segment)) {
	s.onComplete = hook
}

// NextSpanID allocates the next span id.
func (s *Segment) NextSpanID() int32 {
	id := s.nextSpanID
	s.nextSpanID++
	return id
}

// AddActiveSpan pushes span onto the active stack.
func (s *Segment) AddActiveSpan(span Span) {
	if s.firstSpan == nil {
		s.firstSpan = span
	}
	s.active = append(s.active, span)
}

// ActiveSpan returns the most recently started span that has not finished.
func (s *Segment) ActiveSpan() Span {
	if len(s.active) == 0 {
		return nil
	}
	return s.active[len(s.active)-1]
}

// FinishSpan moves span from the active stack to the finished queue. When
// the stack drains the segment completes and the completion hook runs.
//
// A span started after completion reopens the segment; the hook runs again
// once the stack drains a second time, so late spans are still delivered.
func (s *Segment) FinishSpan(span Span) {
	for i := len(s.active) - 1; i >= 0; i-- {
		if s.active[i] == span {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
	s.finished = append(s.finished, span)

	if len(s.active) == 0 && len(s.finished) > s.notified {
		s.completed = true
		s.notified = len(s.finished)
		if s.onComplete != nil {
			s.onComplete(s)
		}
	}
}

// AddFirstReferenceIfAbsent records the first propagated reference. The
// segment's generated trace id is replaced by the propagated one so every
// segment of the distributed trace reports the same id.
func (s *Segment) AddFirstReferenceIfAbsent(ref *SegmentReference) {
	if s.firstRef != nil || ref == nil {
		return
	}
	s.firstRef = ref
	if ref.TraceID != "" {
		s.traceID = ref.TraceID
	}
}

// HasFirstReference reports whether the segment was entered via propagation.
func (s *Segment) HasFirstReference() bool {
	return s.firstRef != nil
}

// FirstReference returns the first propagated reference, if any.
func (s *Segment) FirstReference() *SegmentReference {
	return s.firstRef
}

// TraceID returns the distributed trace id.
func (s *Segment) TraceID() string {
	return s.traceID
}

// SegmentID returns the id of this segment.
func (s *Segment) SegmentID() string {
	return s.segmentID
}

// ServiceInstanceID returns the local service instance id.
func (s *Segment) ServiceInstanceID() int32 {
	return s.serviceInstanceID
}

// FirstCreatedSpan returns the first span registered with the segment.
func (s *Segment) FirstCreatedSpan() Span {
	return s.firstSpan
}

// Now reads the segment's clock.
func (s *Segment) Now() time.Time {
	return s.clock.Now()
}

// Completed reports whether the segment has completed at least once and has
// no active span.
func (s *Segment) Completed() bool {
	return s.completed && len(s.active) == 0
}

// FinishedSpans returns the finished spans in finishing order.
func (s *Segment) FinishedSpans() []Span {
	return s.finished
}

// SegmentProtocol is the export shape of a completed segment.
type SegmentProtocol struct {
	Spans             []*SpanProtocol `json:"spans"`
	TraceID           string          `json:"traceId"`
	SegmentID         string          `json:"segmentId"`
	ServiceInstanceID int32           `json:"serviceInstanceId"`
}

// Transform maps the finished spans of the segment to its export shape.
func (s *Segment) Transform() *SegmentProtocol {
	return s.protocol(s.finished)
}

// Flush transforms the spans finished since the previous Flush. The first
// call covers the whole segment; later calls carry only late spans under the
// same trace and segment ids.
func (s *Segment) Flush() *SegmentProtocol {
	pending := s.finished[s.flushed:]
	s.flushed = len(s.finished)
	return s.protocol(pending)
}

func (s *Segment) protocol(spans []Span) *SegmentProtocol {
	p := &SegmentProtocol{
		TraceID:           s.traceID,
		SegmentID:         s.segmentID,
		ServiceInstanceID: s.serviceInstanceID,
		Spans:             make([]*SpanProtocol, 0, len(spans)),
	}
	for _, span := range spans {
		if sp := span.Transform(); sp != nil {
			p.Spans = append(p.Spans, sp)
		}
	}
	return p
}
