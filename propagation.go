package segmentz

// NewEntrySpan creates the span that receives a request into the segment.
//
// If carrier holds a valid reference under CarrierKey it becomes the span's
// only ref and the segment's first reference, if the segment has none yet.
// A missing or malformed value is not an error: the span starts a new trace.
func NewEntrySpan(operation Key, tc TraceContext, parent Span, carrier Carrier) Span {
	return newEntrySpan(operation, tc, parent, Extract(carrier))
}

func newEntrySpan(operation Key, tc TraceContext, parent Span, ref *SegmentReference) Span {
	s := newSpan(operation, tc, parent, kindEntry)

	if ref != nil {
		tc.AddFirstReferenceIfAbsent(ref)
		s.addRef(ref)
	}

	return s
}

// NewExitSpan creates the span for an outbound call to peer.
//
// When carrier is non-nil a reference describing how to continue the trace
// is written into it under CarrierKey. Without a carrier the span is still
// recorded but the downstream service is not linked.
func NewExitSpan(operation Key, tc TraceContext, parent Span, peer string, carrier Carrier) Span {
	s := newSpan(operation, tc, parent, kindExit)
	s.peer = peer

	if carrier == nil {
		return s
	}

	link := resolveLinkage(tc)
	ref := &SegmentReference{
		TraceID:   tc.TraceID(),
		SegmentID: tc.SegmentID(),
		SpanID:    s.spanID,
		// No network address registry exists, so the peer always travels
		// as a raw string.
		NetworkAddress:          "#" + peer,
		EntryServiceInstanceID:  link.entryServiceInstanceID,
		ParentServiceInstanceID: tc.ServiceInstanceID(),
		EntryEndpoint:           link.entryEndpoint,
		ParentEndpoint:          link.parentEndpoint,
	}
	Inject(carrier, ref)

	return s
}

// NewLocalSpan creates a span for in-process work. It has no cross-process
// linkage.
func NewLocalSpan(operation Key, tc TraceContext, parent Span) Span {
	return newSpan(operation, tc, parent, kindLocal)
}

type linkage struct {
	entryEndpoint          Endpoint
	parentEndpoint         Endpoint
	entryServiceInstanceID int32
}

// resolveLinkage computes the entry and parent fields of an outbound
// reference.
//
// The entry fields name the operation that started the whole distributed
// trace, so a segment entered via propagation copies them from its first
// reference unchanged. The parent fields always describe this segment's own
// entry operation.
func resolveLinkage(tc TraceContext) linkage {
	local := localEntryEndpoint(tc)

	link := linkage{
		entryServiceInstanceID: tc.ServiceInstanceID(),
		entryEndpoint:          local,
		parentEndpoint:         local,
	}

	if tc.HasFirstReference() {
		first := tc.FirstReference()
		link.entryServiceInstanceID = first.EntryServiceInstanceID
		link.entryEndpoint = first.EntryEndpoint
	}

	return link
}

// localEntryEndpoint is the segment's first span when that span is an entry
// span, and the unknown endpoint otherwise.
func localEntryEndpoint(tc TraceContext) Endpoint {
	first := tc.FirstCreatedSpan()
	if first == nil || !first.IsEntry() {
		return UnknownEndpoint()
	}
	return EntryEndpoint(first.OperationName())
}
