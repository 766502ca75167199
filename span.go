package segmentz

import (
	"time"
)

// Span represents a single unit of work inside a segment.
//
// There are two variants: recording spans created through NewEntrySpan,
// NewExitSpan and NewLocalSpan, and the disabled span returned by
// NewNoopSpan. Every mutator returns the span so calls can be chained, and
// the disabled span answers all of them without side effects.
//
// Spans are NOT thread-safe. A span belongs to the goroutine handling its
// segment. Finishing is idempotent: only the first Finish, FinishAt or
// FinishWithDuration takes effect, and mutations after finish are ignored.
type Span interface {
	SpanID() int32
	// ParentSpanID is -1 when the span is the root of its segment.
	ParentSpanID() int32
	OperationName() string
	IsEntry() bool
	IsExit() bool
	IsNoop() bool
	Peer() string
	Refs() []*SegmentReference
	Tags() []KeyValue
	Logs() []LogEntry
	Layer() Layer
	ComponentID() ComponentID
	IsError() bool
	StartTime() time.Time
	// EndTime is zero until the span finishes.
	EndTime() time.Time
	Finished() bool

	Tag(key Tag, value string) Span
	Log(fields ...KeyValue) Span
	ErrorOccurred() Span
	SetComponentID(id ComponentID) Span
	SetLayer(layer Layer) Span
	Start(t time.Time) Span
	Finish() Span
	FinishAt(t time.Time) Span
	FinishWithDuration(d time.Duration) Span

	// Transform returns the export shape of the span, or nil for a no-op span.
	Transform() *SpanProtocol
}

// LogEntry is a timestamped structured log attached to a span.
type LogEntry struct {
	Time time.Time
	Data []KeyValue
}

type spanKind uint8

const (
	kindLocal spanKind = iota
	kindEntry
	kindExit
)

func (k spanKind) label() string {
	switch k {
	case kindEntry:
		return SpanTypeEntry
	case kindExit:
		return SpanTypeExit
	default:
		return SpanTypeLocal
	}
}

// recordingSpan is the Span variant that records into its owning context.
//
//nolint:govet // Field order follows the protocol shape
type recordingSpan struct {
	// owner is borrowed from the segment that created the span and is only
	// valid while that segment is in use.
	owner         TraceContext
	refs          []*SegmentReference
	tags          []KeyValue
	logs          []LogEntry
	startTime     time.Time
	endTime       time.Time
	operationName string
	peer          string
	spanID        int32
	parentSpanID  int32
	component     ComponentID
	layer         Layer
	kind          spanKind
	errorOccurred bool
	finished      bool
}

// newSpan allocates an id from owner, links to parent and registers the span
// as active. A nil or no-op parent makes the span a segment root.
func newSpan(operation Key, owner TraceContext, parent Span, kind spanKind) *recordingSpan {
	s := &recordingSpan{
		owner:         owner,
		operationName: operation,
		spanID:        owner.NextSpanID(),
		parentSpanID:  -1,
		kind:          kind,
		startTime:     owner.Now(),
	}
	if parent != nil && !parent.IsNoop() {
		s.parentSpanID = parent.SpanID()
	}
	owner.AddActiveSpan(s)
	return s
}

func (s *recordingSpan) SpanID() int32 { return s.spanID }
func (s *recordingSpan) ParentSpanID() int32 { return s.parentSpanID }
func (s *recordingSpan) OperationName() string { return s.operationName }
func (s *recordingSpan) IsEntry() bool { return s.kind == kindEntry }
func (s *recordingSpan) IsExit() bool { return s.kind == kindExit }
func (s *recordingSpan) IsNoop() bool { return false }
func (s *recordingSpan) Peer() string { return s.peer }
func (s *recordingSpan) Refs() []*SegmentReference { return s.refs }
func (s *recordingSpan) Tags() []KeyValue { return s.tags }
func (s *recordingSpan) Logs() []LogEntry { return s.logs }
func (s *recordingSpan) Layer() Layer { return s.layer }
func (s *recordingSpan) ComponentID() ComponentID { return s.component }
func (s *recordingSpan) IsError() bool { return s.errorOccurred }
func (s *recordingSpan) StartTime() time.Time { return s.startTime }
func (s *recordingSpan) EndTime() time.Time { return s.endTime }
func (s *recordingSpan) Finished() bool { return s.finished }

// Tag appends a tag. Duplicate keys are kept in insertion order.
func (s *recordingSpan) Tag(key Tag, value string) Span {
	if !s.finished {
		s.tags = append(s.tags, KeyValue{Key: key, Value: value})
	}
	return s
}

// Log appends a log entry stamped with the owner's clock.
func (s *recordingSpan) Log(fields ...KeyValue) Span {
	if !s.finished {
		data := make([]KeyValue, len(fields))
		copy(data, fields)
		s.logs = append(s.logs, LogEntry{Time: s.owner.Now(), Data: data})
	}
	return s
}

// ErrorOccurred marks the span as failed.
func (s *recordingSpan) ErrorOccurred() Span {
	if !s.finished {
		s.errorOccurred = true
	}
	return s
}

func (s *recordingSpan) SetComponentID(id ComponentID) Span {
	if !s.finished {
		s.component = id
	}
	return s
}

func (s *recordingSpan) SetLayer(layer Layer) Span {
	if !s.finished {
		s.layer = layer
	}
	return s
}

// Start overrides the start time recorded at creation.
func (s *recordingSpan) Start(t time.Time) Span {
	if !s.finished {
		s.startTime = t
	}
	return s
}

// Finish ends the span now and hands it to the owner.
func (s *recordingSpan) Finish() Span {
	if s.finished {
		return s
	}
	return s.FinishAt(s.owner.Now())
}

// FinishAt ends the span at t and hands it to the owner.
func (s *recordingSpan) FinishAt(t time.Time) Span {
	// Prevent double-finishing.
	if s.finished {
		return s
	}
	s.endTime = t
	s.finished = true
	s.owner.FinishSpan(s)
	return s
}

// FinishWithDuration ends the span d after its start time.
func (s *recordingSpan) FinishWithDuration(d time.Duration) Span {
	return s.FinishAt(s.startTime.Add(d))
}

func (s *recordingSpan) addRef(ref *SegmentReference) {
	s.refs = append(s.refs, ref)
}

// SpanProtocol is the flat export shape of a finished span.
type SpanProtocol struct {
	Refs          []*ReferenceProtocol `json:"refs,omitempty"`
	Tags          []KeyValue           `json:"tags"`
	Logs          []LogProtocol        `json:"logs"`
	OperationName string               `json:"operationName"`
	Peer          string               `json:"peer,omitempty"`
	SpanType      string               `json:"spanType"`
	SpanLayer     string               `json:"spanLayer,omitempty"`
	StartTime     int64                `json:"startTime"`
	EndTime       int64                `json:"endTime"`
	SpanID        int32                `json:"spanId"`
	ParentSpanID  int32                `json:"parentSpanId"`
	ComponentID   ComponentID          `json:"componentId"`
	IsError       bool                 `json:"isError"`
}

// LogProtocol is the export shape of a LogEntry.
type LogProtocol struct {
	Data []KeyValue `json:"data"`
	Time int64      `json:"time"`
}

// Transform maps the span to its export shape. Times are epoch
// milliseconds; an unfinished span reports an end time of 0.
func (s *recordingSpan) Transform() *SpanProtocol {
	p := &SpanProtocol{
		SpanID:        s.spanID,
		ParentSpanID:  s.parentSpanID,
		StartTime:     epochMillis(s.startTime),
		EndTime:       epochMillis(s.endTime),
		OperationName: s.operationName,
		Peer:          s.peer,
		SpanType:      s.kind.label(),
		SpanLayer:     s.layer.Name(),
		ComponentID:   s.component,
		IsError:       s.errorOccurred,
		Tags:          make([]KeyValue, len(s.tags)),
		Logs:          make([]LogProtocol, 0, len(s.logs)),
	}
	copy(p.Tags, s.tags)

	if len(s.refs) > 0 {
		p.Refs = make([]*ReferenceProtocol, 0, len(s.refs))
		for _, ref := range s.refs {
			p.Refs = append(p.Refs, ref.Transform())
		}
	}

	for _, entry := range s.logs {
		data := make([]KeyValue, len(entry.Data))
		copy(data, entry.Data)
		p.Logs = append(p.Logs, LogProtocol{Time: epochMillis(entry.Time), Data: data})
	}

	return p
}

func epochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// noopSpan is the disabled Span variant.
type noopSpan struct{}

var disabledSpan = &noopSpan{}

// NewNoopSpan returns the disabled span. It allocates no id, registers with
// no context and never reaches a finishing sink.
func NewNoopSpan() Span {
	return disabledSpan
}

func (*noopSpan) SpanID() int32 { return -1 }
func (*noopSpan) ParentSpanID() int32 { return -1 }
func (*noopSpan) OperationName() string { return "" }
func (*noopSpan) IsEntry() bool { return false }
func (*noopSpan) IsExit() bool { return false }
func (*noopSpan) IsNoop() bool { return true }
func (*noopSpan) Peer() string { return "" }
func (*noopSpan) Refs() []*SegmentReference { return nil }
func (*noopSpan) Tags() []KeyValue { return nil }
func (*noopSpan) Logs() []LogEntry { return nil }
func (*noopSpan) Layer() Layer { return LayerNone }
func (*noopSpan) ComponentID() ComponentID { return ComponentUnknown }
func (*noopSpan) IsError() bool { return false }
func (*noopSpan) StartTime() time.Time { return time.Time{} }
func (*noopSpan) EndTime() time.Time { return time.Time{} }
func (*noopSpan) Finished() bool { return false }
func (*noopSpan) Transform() *SpanProtocol { return nil }

func (n *noopSpan) Tag(Tag, string) Span { return n }
func (n *noopSpan) Log(...KeyValue) Span { return n }
func (n *noopSpan) ErrorOccurred() Span { return n }
func (n *noopSpan) SetComponentID(ComponentID) Span { return n }
func (n *noopSpan) SetLayer(Layer) Span { return n }
func (n *noopSpan) Start(time.Time) Span { return n }
func (n *noopSpan) Finish() Span { return n }
func (n *noopSpan) FinishAt(time.Time) Span { return n }
func (n *noopSpan) FinishWithDuration(time.Duration) Span { return n }
