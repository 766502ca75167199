package segmentz

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SEGMENTZ_SERVICE_NAME", "orders")
	t.Setenv("SEGMENTZ_SERVICE_INSTANCE_ID", "12")
	t.Setenv("SEGMENTZ_COLLECTOR_URL", "http://collector:12800/v2/segments")
	t.Setenv("SEGMENTZ_WORKERS", "4")
	t.Setenv("SEGMENTZ_EXPORT_BATCH_SIZE", "25")
	t.Setenv("SEGMENTZ_EXPORT_TIMEOUT", "3s")
	t.Setenv("SEGMENTZ_DISABLED", "true")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.ServiceName)
	assert.Equal(t, int32(12), cfg.ServiceInstanceID)
	assert.Equal(t, "http://collector:12800/v2/segments", cfg.CollectorURL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 25, cfg.ExportBatchSize)
	assert.Equal(t, Duration(3*time.Second), cfg.ExportTimeout)
	assert.True(t, cfg.Disabled)
	assert.Equal(t, DefaultConfig().BufferSize, cfg.BufferSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnvErrors(t *testing.T) {
	cases := map[string]string{
		"SEGMENTZ_WORKERS":             "many",
		"SEGMENTZ_SERVICE_INSTANCE_ID": "x",
		"SEGMENTZ_EXPORT_TIMEOUT":      "soon",
		"SEGMENTZ_DISABLED":            "perhaps",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := ConfigFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	data := []byte(`
serviceName: payments
serviceInstanceId: 3
collectorUrl: https://collector.example/v2/segments
exportConcurrency: 4
exportTimeout: 1500ms
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "payments", cfg.ServiceName)
	assert.Equal(t, int32(3), cfg.ServiceInstanceID)
	assert.Equal(t, "https://collector.example/v2/segments", cfg.CollectorURL)
	assert.Equal(t, 4, cfg.ExportConcurrency)
	assert.Equal(t, Duration(1500*time.Millisecond), cfg.ExportTimeout)
	assert.Equal(t, DefaultConfig().ExportBatchSize, cfg.ExportBatchSize)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exportTimeout: later\n"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero buffer":        func(c *Config) { c.BufferSize = 0 },
		"negative workers":   func(c *Config) { c.Workers = -1 },
		"workers no queue":   func(c *Config) { c.Workers = 2; c.QueueSize = 0 },
		"zero batch":         func(c *Config) { c.ExportBatchSize = 0 },
		"zero concurrency":   func(c *Config) { c.ExportConcurrency = 0 },
		"zero timeout":       func(c *Config) { c.ExportTimeout = 0 },
		"bad collector url":  func(c *Config) { c.CollectorURL = "://nope" },
		"non-http collector": func(c *Config) { c.CollectorURL = "grpc://collector:11800" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"2s"`)))
	assert.Equal(t, Duration(2*time.Second), d)

	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, Duration(time.Microsecond), d)

	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))

	out, err := Duration(time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(out))
}
