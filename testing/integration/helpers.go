package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/zoobzio/segmentz"
)

// MockService is an HTTP service instrumented with an entry span per request
// and an exit span for its optional downstream call.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockService struct {
	Tracer     *segmentz.Tracer
	Collector  *segmentz.Collector
	server     *httptest.Server
	downstream *MockService
	name       string
	failing    bool
}

// NewMockService starts a service. Requests to it call downstream first when
// it is non-nil.
func NewMockService(t *testing.T, name string, instanceID int32, downstream *MockService) *MockService {
	t.Helper()

	collector := segmentz.NewCollector(name, 16)
	collector.SetSyncMode(true)

	tracer := segmentz.New(instanceID)
	tracer.OnSegmentComplete(collector.Collect)

	svc := &MockService{
		Tracer:     tracer,
		Collector:  collector,
		downstream: downstream,
		name:       name,
	}
	svc.server = httptest.NewServer(http.HandlerFunc(svc.handle))

	t.Cleanup(func() {
		svc.server.Close()
		tracer.Close()
		collector.Close()
	})
	return svc
}

// SetFailing makes the service answer 500 and mark its entry span as failed.
func (m *MockService) SetFailing(failing bool) {
	m.failing = failing
}

// URL returns the base URL of the service.
func (m *MockService) URL() string {
	return m.server.URL
}

// Segments drains the segments the service has completed.
func (m *MockService) Segments() []segmentz.SegmentProtocol {
	return m.Collector.Export()
}

func (m *MockService) handle(w http.ResponseWriter, r *http.Request) {
	operation := r.Method + " /" + m.name
	ctx, entry := m.Tracer.StartEntrySpan(r.Context(), operation, segmentz.HeaderCarrier(r.Header))
	entry.SetLayer(segmentz.LayerHTTP).Tag("http.method", r.Method)

	status := http.StatusOK
	if m.downstream != nil {
		if err := m.callDownstream(ctx); err != nil {
			entry.ErrorOccurred().Log(segmentz.KV("event", "error"), segmentz.KV("message", err.Error()))
			status = http.StatusBadGateway
		}
	}
	if m.failing {
		entry.ErrorOccurred()
		status = http.StatusInternalServerError
	}
	entry.Tag("status_code", fmt.Sprint(status))

	// The segment must be complete before the caller sees the response.
	entry.Finish()
	w.WriteHeader(status)
}

func (m *MockService) callDownstream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.downstream.URL(), http.NoBody)
	if err != nil {
		return err
	}

	u, _ := url.Parse(m.downstream.URL())
	_, exit := m.Tracer.StartExitSpan(ctx, "GET /"+m.downstream.name, u.Host, segmentz.HeaderCarrier(req.Header))
	defer exit.Finish()
	exit.SetLayer(segmentz.LayerHTTP)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		exit.ErrorOccurred()
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		exit.ErrorOccurred()
		return fmt.Errorf("%s: status %d", m.downstream.name, resp.StatusCode)
	}
	return nil
}

// Call sends a request to the service, optionally carrying headers.
func Call(t *testing.T, svc *MockService, header http.Header) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, svc.URL(), http.NoBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("call %s: %v", svc.name, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}
