package segmentz

import "context"

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "segmentz"
)

// contextBundle holds the segment and current span to reduce context allocations.
type contextBundle struct {
	segment *Segment
	span    Span
}

func bundleFrom(ctx context.Context) *contextBundle {
	if ctx == nil {
		return nil
	}
	bundle, _ := ctx.Value(bundleKey).(*contextBundle)
	return bundle
}

// ContextWithSpan returns a context carrying segment and span, so spans
// started from it become children of span.
func ContextWithSpan(ctx context.Context, segment *Segment, span Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bundleKey, &contextBundle{segment: segment, span: span})
}

// SpanFromContext extracts the current span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) Span {
	if bundle := bundleFrom(ctx); bundle != nil {
		return bundle.span
	}
	return nil
}

// SegmentFromContext extracts the current segment from a context.
// Returns nil if no segment is present.
func SegmentFromContext(ctx context.Context) *Segment {
	if bundle := bundleFrom(ctx); bundle != nil {
		return bundle.segment
	}
	return nil
}

// segmentFor returns the segment and parent span to use for a span started
// from ctx. A context without a live segment gets a new one.
func (t *Tracer) segmentFor(ctx context.Context) (*Segment, Span) {
	if bundle := bundleFrom(ctx); bundle != nil && bundle.segment != nil && !bundle.segment.Completed() {
		return bundle.segment, bundle.span
	}
	return t.NewSegment(), nil
}

// StartEntrySpan starts an entry span continuing the trace found in carrier.
// A nil carrier, or one without a usable reference, starts a new trace.
func (t *Tracer) StartEntrySpan(ctx context.Context, operation Key, carrier Carrier) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !t.Enabled() {
		return ctx, NewNoopSpan()
	}

	ref, err := ExtractReference(carrier)
	if err != nil {
		t.logger.V(1).Info("ignoring inbound carrier", "operation", operation, "error", err.Error())
	}

	seg, parent := t.segmentFor(ctx)
	span := newEntrySpan(operation, seg, parent, ref)
	return ContextWithSpan(ctx, seg, span), span
}

// StartExitSpan starts an exit span for a call to peer and writes the
// propagation reference into carrier.
func (t *Tracer) StartExitSpan(ctx context.Context, operation Key, peer string, carrier Carrier) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !t.Enabled() {
		return ctx, NewNoopSpan()
	}

	seg, parent := t.segmentFor(ctx)
	span := NewExitSpan(operation, seg, parent, peer, carrier)
	return ContextWithSpan(ctx, seg, span), span
}

// StartLocalSpan starts a span for in-process work.
func (t *Tracer) StartLocalSpan(ctx context.Context, operation Key) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !t.Enabled() {
		return ctx, NewNoopSpan()
	}

	seg, parent := t.segmentFor(ctx)
	span := NewLocalSpan(operation, seg, parent)
	return ContextWithSpan(ctx, seg, span), span
}
