// Package segmentz provides span lifecycle management and cross-process
// trace-context propagation for a distributed tracing agent.
//
// A trace is split into segments: the part of a trace one process executes
// for one request. Spans form a tree inside their segment. When a request
// crosses a process boundary the segment writes a serialized reference into
// the outbound carrier under CarrierKey, and the downstream service decodes it
// to continue the same trace.
//
// Core Components:
//   - Tracer: Creates segments and dispatches completed ones to handlers.
//   - Segment: Default trace context; owns span ids and the active-span stack.
//   - Span: Entry, exit or local unit of work, or a disabled no-op span.
//   - SegmentReference: Linkage metadata carried between processes.
//   - Collector: Buffers completed segments for export.
//
// Basic Usage:
//
//	tracer := segmentz.New(1)
//	defer tracer.Close()
//
//	// Continue the caller's trace.
//	ctx, entry := tracer.StartEntrySpan(ctx, "GET /api", segmentz.HeaderCarrier(r.Header))
//	defer entry.Finish()
//
//	// Propagate to a downstream service.
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	_, exit := tracer.StartExitSpan(ctx, "GET /users", req.URL.Host, segmentz.HeaderCarrier(req.Header))
//	defer exit.Finish()
//
// Thread Safety:
//
// Tracer and Collector are safe for concurrent use. A Segment and its spans
// belong to exactly one request and must only be used by the goroutine
// handling that request.
package segmentz

import "strconv"

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// CarrierKey is the carrier slot holding a serialized SegmentReference.
// The suffix is the propagation protocol version.
const CarrierKey = "sw6"

// KeyValue is an ordered key/value pair used by tags and log payloads.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// KV is shorthand for building a KeyValue.
func KV(key, value string) KeyValue {
	return KeyValue{Key: key, Value: value}
}

// Layer classifies the kind of work a span represents.
type Layer int32

const (
	LayerNone Layer = iota
	LayerDatabase
	LayerRPCFramework
	LayerHTTP
	LayerMQ
	LayerCache
)

var layerNames = [...]string{
	LayerNone:         "",
	LayerDatabase:     "Database",
	LayerRPCFramework: "RPCFramework",
	LayerHTTP:         "Http",
	LayerMQ:           "MQ",
	LayerCache:        "Cache",
}

// Name returns the protocol name of the layer. LayerNone and unknown values
// have no protocol name.
func (l Layer) Name() string {
	if l < 0 || int(l) >= len(layerNames) {
		return ""
	}
	return layerNames[l]
}

// String implements fmt.Stringer.
func (l Layer) String() string {
	if l == LayerNone {
		return "None"
	}
	if name := l.Name(); name != "" {
		return name
	}
	return "Layer(" + strconv.Itoa(int(l)) + ")"
}

// ComponentID identifies the library or framework that produced a span.
type ComponentID int32

// ComponentUnknown is the default component.
const ComponentUnknown ComponentID = 0

// SpanType labels used in the span protocol.
const (
	SpanTypeEntry = "Entry"
	SpanTypeExit  = "Exit"
	SpanTypeLocal = "Local"
)
