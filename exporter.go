package segmentz

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Exporter ships completed segments to a backend.
type Exporter interface {
	Export(ctx context.Context, segments []SegmentProtocol) error
}

// HTTPExporter posts segments as JSON arrays to a collector endpoint.
type HTTPExporter struct {
	client      *http.Client
	logger      logr.Logger
	endpoint    string
	batchSize   int
	concurrency int
}

// NewHTTPExporter creates an exporter posting to endpoint with one batch of
// up to 100 segments in flight at a time.
func NewHTTPExporter(endpoint string) *HTTPExporter {
	return &HTTPExporter{
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logr.Discard(),
		endpoint:    endpoint,
		batchSize:   100,
		concurrency: 1,
	}
}

// NewExporterFromConfig builds an HTTPExporter from the export settings.
func NewExporterFromConfig(cfg Config, logger logr.Logger) (*HTTPExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CollectorURL == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "collectorUrl is required for export")
	}

	e := NewHTTPExporter(cfg.CollectorURL)
	e.client.Timeout = time.Duration(cfg.ExportTimeout)
	e.batchSize = cfg.ExportBatchSize
	e.concurrency = cfg.ExportConcurrency
	e.logger = logger.WithName("exporter")
	return e, nil
}

// WithClient replaces the HTTP client.
func (e *HTTPExporter) WithClient(client *http.Client) *HTTPExporter {
	e.client = client
	return e
}

// WithBatching sets the batch size and how many batches are sent at once.
func (e *HTTPExporter) WithBatching(batchSize, concurrency int) *HTTPExporter {
	if batchSize > 0 {
		e.batchSize = batchSize
	}
	if concurrency > 0 {
		e.concurrency = concurrency
	}
	return e
}

// Export sends segments in batches. The first failing batch cancels the
// ones not yet sent and its error is returned.
func (e *HTTPExporter) Export(ctx context.Context, segments []SegmentProtocol) error {
	if len(segments) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(segments); start += e.batchSize {
		end := start + e.batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]
		g.Go(func() error {
			return e.post(ctx, batch)
		})
	}

	return g.Wait()
}

func (e *HTTPExporter) post(ctx context.Context, batch []SegmentProtocol) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "marshal segments")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error(err, "export failed", "segments", len(batch))
		return errors.Wrap(err, "post segments")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("unexpected response status code: %d", resp.StatusCode)
	}

	e.logger.V(1).Info("exported segments", "segments", len(batch))
	return nil
}
