package segmentz

import (
	"context"
	"runtime"
	"testing"
)

func BenchmarkNoopSpan(b *testing.B) {
	tracer := New(1)
	defer tracer.Close()

	ctx := context.Background()

	b.Run("disabled", func(b *testing.B) {
		tracer.SetEnabled(false)
		defer tracer.SetEnabled(true)

		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := tracer.StartLocalSpan(ctx, "test-op")
			span.Tag("key", "value").SetLayer(LayerHTTP).ErrorOccurred()
			span.Finish()
		}
	})

	b.Run("recording", func(b *testing.B) {
		tracer.OnSegmentComplete(func(_ SegmentProtocol) {})
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := tracer.StartLocalSpan(ctx, "test-op")
			span.Tag("key", "value").SetLayer(LayerHTTP).ErrorOccurred()
			span.Finish()
		}
	})
}

func BenchmarkExitSpanInject(b *testing.B) {
	seg, _ := newTestSegment()
	entry := NewEntrySpan("GET /api", seg, nil, nil)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		carrier := MapCarrier{}
		NewExitSpan("GET /users", seg, entry, "users:80", carrier).Finish()
	}
}

func TestNoopTracerBehavior(t *testing.T) {
	tracer := New(1)
	defer tracer.Close()
	tracer.SetEnabled(false)

	var segments int
	tracer.OnSegmentComplete(func(SegmentProtocol) { segments++ })

	ctx := context.Background()
	ctx, span := tracer.StartEntrySpan(ctx, "test-op", MapCarrier{CarrierKey: fullReference().Encode()})

	span.Tag("key", "value").Log(KV("event", "x")).SetComponentID(1)

	if id := span.SpanID(); id != -1 {
		t.Errorf("expected span id -1 for no-op span, got %d", id)
	}
	if refs := span.Refs(); len(refs) != 0 {
		t.Errorf("expected no refs on no-op span, got %d", len(refs))
	}
	if SegmentFromContext(ctx) != nil {
		t.Error("disabled tracer should not attach a segment to the context")
	}

	span.Finish()
	if segments != 0 {
		t.Errorf("no-op spans must not complete segments, got %d", segments)
	}

	// Re-enabling resumes normal behavior.
	tracer.SetEnabled(true)
	_, span = tracer.StartLocalSpan(ctx, "real-op")
	span.Tag("key", "value")
	span.Finish()

	if segments != 1 {
		t.Errorf("expected one segment after re-enabling, got %d", segments)
	}
}

func TestNoopMemoryUsage(t *testing.T) {
	tracer := New(1)
	defer tracer.Close()
	tracer.SetEnabled(false)

	var m1, m2 runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m1)

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		_, span := tracer.StartLocalSpan(ctx, Key("test-op"))
		span.Tag("key", "value")
		span.Finish()
	}

	runtime.GC()
	runtime.ReadMemStats(&m2)

	allocsPerOp := (m2.TotalAlloc - m1.TotalAlloc) / 1000

	// The threshold here is generous to account for runtime overhead
	if allocsPerOp > 100 {
		t.Errorf("no-op spans allocating too much memory: %d bytes per operation", allocsPerOp)
	}
}
