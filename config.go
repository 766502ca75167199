package segmentz

import (
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration that reads from strings such as "5s" in
// configuration files.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return errors.Wrapf(err, "parse duration %q", s)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "parse duration")
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds agent settings.
type Config struct {
	ServiceName       string   `json:"serviceName"`
	CollectorURL      string   `json:"collectorUrl,omitempty"`
	ServiceInstanceID int32    `json:"serviceInstanceId"`
	BufferSize        int      `json:"bufferSize"`
	Workers           int      `json:"workers"`
	QueueSize         int      `json:"queueSize"`
	ExportBatchSize   int      `json:"exportBatchSize"`
	ExportConcurrency int      `json:"exportConcurrency"`
	ExportTimeout     Duration `json:"exportTimeout"`
	Disabled          bool     `json:"disabled"`
}

// DefaultConfig returns the settings used for anything left unset.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "unknown",
		BufferSize:        1000,
		QueueSize:         1000,
		ExportBatchSize:   100,
		ExportConcurrency: 2,
		ExportTimeout:     Duration(10 * time.Second),
	}
}

// ConfigFromEnv overlays SEGMENTZ_* environment variables on DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.ServiceName = getEnv("SEGMENTZ_SERVICE_NAME", cfg.ServiceName)
	cfg.CollectorURL = getEnv("SEGMENTZ_COLLECTOR_URL", cfg.CollectorURL)

	ints := []struct {
		key string
		dst *int
	}{
		{"SEGMENTZ_BUFFER_SIZE", &cfg.BufferSize},
		{"SEGMENTZ_WORKERS", &cfg.Workers},
		{"SEGMENTZ_QUEUE_SIZE", &cfg.QueueSize},
		{"SEGMENTZ_EXPORT_BATCH_SIZE", &cfg.ExportBatchSize},
		{"SEGMENTZ_EXPORT_CONCURRENCY", &cfg.ExportConcurrency},
	}
	for _, v := range ints {
		raw := os.Getenv(v.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", v.key)
		}
		*v.dst = n
	}

	if raw := os.Getenv("SEGMENTZ_SERVICE_INSTANCE_ID"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse SEGMENTZ_SERVICE_INSTANCE_ID")
		}
		cfg.ServiceInstanceID = int32(n)
	}

	if raw := os.Getenv("SEGMENTZ_EXPORT_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse SEGMENTZ_EXPORT_TIMEOUT")
		}
		cfg.ExportTimeout = Duration(d)
	}

	if raw := os.Getenv("SEGMENTZ_DISABLED"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse SEGMENTZ_DISABLED")
		}
		cfg.Disabled = b
	}

	return cfg, nil
}

// LoadConfig reads a YAML or JSON file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (cfg Config) Validate() error {
	if cfg.BufferSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "bufferSize must be >= 1, got %d", cfg.BufferSize)
	}
	if cfg.Workers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "workers must be >= 0, got %d", cfg.Workers)
	}
	if cfg.Workers > 0 && cfg.QueueSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "queueSize must be >= 1 when workers are enabled, got %d", cfg.QueueSize)
	}
	if cfg.ExportBatchSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "exportBatchSize must be >= 1, got %d", cfg.ExportBatchSize)
	}
	if cfg.ExportConcurrency < 1 {
		return errors.Wrapf(ErrInvalidConfig, "exportConcurrency must be >= 1, got %d", cfg.ExportConcurrency)
	}
	if cfg.ExportTimeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "exportTimeout must be > 0, got %s", time.Duration(cfg.ExportTimeout))
	}
	if cfg.CollectorURL != "" {
		u, err := url.Parse(cfg.CollectorURL)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "collectorUrl: %v", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Wrapf(ErrInvalidConfig, "collectorUrl scheme must be http or https, got %q", u.Scheme)
		}
	}
	return nil
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
