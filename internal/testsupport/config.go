package testsupport

import (
	"path/filepath"
	"testing"

	"perch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Source.URL = "rtsp://camera.test/stream"
	cfg.Detector.Endpoint = "http://127.0.0.1:1/detect"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithVision enables the species classifier with the given key and, when
// non-empty, endpoint.
func WithVision(apiKey, baseURL string) ConfigOption {
	return func(c *config.Config) {
		c.Vision.Enabled = true
		c.Vision.APIKey = apiKey
		if baseURL != "" {
			c.Vision.BaseURL = baseURL
		}
	}
}

// WithWorkers sets the analysis worker count.
func WithWorkers(n int) ConfigOption {
	return func(c *config.Config) {
		c.Analysis.Workers = n
	}
}
