package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lpernett/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// VisionAPIKeyEnv is the environment variable consulted for the classifier
// API key when the config file does not carry one.
const VisionAPIKeyEnv = "PERCH_VISION_API_KEY"

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	MediaDir string `toml:"media_dir"`
	LogDir   string `toml:"log_dir"`
}

// Source contains configuration for the camera feed and reconnect policy.
type Source struct {
	URL                  string  `toml:"url"`
	FFmpegBinary         string  `toml:"ffmpeg_binary"`
	FrameRate            float64 `toml:"frame_rate"`
	ConnectBaseDelay     int     `toml:"connect_base_delay"`
	ConnectMaxDelay      int     `toml:"connect_max_delay"`
	ConnectMaxAttempts   int     `toml:"connect_max_attempts"`
	ReadFailureThreshold int     `toml:"read_failure_threshold"`
}

// Detector contains configuration for the object detection sidecar.
type Detector struct {
	Endpoint            string  `toml:"endpoint"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	BirdClassID         int     `toml:"bird_class_id"`
	MinAreaRatio        float64 `toml:"min_area_ratio"`
	ROIX1               float64 `toml:"roi_x1"`
	ROIY1               float64 `toml:"roi_y1"`
	ROIX2               float64 `toml:"roi_x2"`
	ROIY2               float64 `toml:"roi_y2"`
	RequestTimeout      int     `toml:"request_timeout"`
}

// Session contains visit lifecycle timing configuration.
type Session struct {
	DetectionIntervalMS int `toml:"detection_interval_ms"`
	AbsenceGracePeriod  int `toml:"absence_grace_period"`
	VisitCooldown       int `toml:"visit_cooldown"`
	MaxCapturesPerVisit int `toml:"max_captures_per_visit"`
	CaptureInterval     int `toml:"capture_interval"`
}

// Vision contains configuration for the species classifier.
type Vision struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	RetryBaseDelay int    `toml:"retry_base_delay"`
	RetryMaxDelay  int    `toml:"retry_max_delay"`
}

// Analysis contains configuration for the classification queue and workers.
type Analysis struct {
	Workers        int `toml:"workers"`
	QueueCapacity  int `toml:"queue_capacity"`
	QueueWatermark int `toml:"queue_watermark"`
	DrainTimeout   int `toml:"drain_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	VisitStarted   bool   `toml:"visit_started"`
	VisitCompleted bool   `toml:"visit_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for perchd.
//
// Configuration sections by subsystem:
//   - Paths: data, media, and log directories
//   - Source: camera URL and reconnect policy
//   - Detector: detection sidecar endpoint, thresholds, region of interest
//   - Session: visit state machine timing
//   - Vision: species classifier connection and retry settings
//   - Analysis: queue and worker pool sizing
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Detector      Detector      `toml:"detector"`
	Session       Session       `toml:"session"`
	Vision        Vision        `toml:"vision"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/perch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and secrets resolved from the
// environment.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// Side-load a .env file when present; environment always wins for secrets.
	_ = godotenv.Load()
	if key := strings.TrimSpace(os.Getenv(VisionAPIKeyEnv)); key != "" {
		cfg.Vision.APIKey = key
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("perch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for name, field := range map[string]*string{
		"data_dir":  &c.Paths.DataDir,
		"media_dir": &c.Paths.MediaDir,
		"log_dir":   &c.Paths.LogDir,
	} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", name, err)
		}
		*field = expanded
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		c.Paths.MediaDir = filepath.Join(c.Paths.DataDir, "media")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	c.Source.URL = strings.TrimSpace(c.Source.URL)
	c.Detector.Endpoint = strings.TrimSpace(c.Detector.Endpoint)
	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	c.Vision.BaseURL = strings.TrimSpace(c.Vision.BaseURL)
	c.Vision.Model = strings.TrimSpace(c.Vision.Model)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.MediaDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
