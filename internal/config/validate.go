package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.URL == "" {
		return errors.New("source.url is required (rtsp:// or http:// camera stream)")
	}
	if c.Source.FrameRate < 0.1 || c.Source.FrameRate > 30 {
		return fmt.Errorf("source.frame_rate %.2f out of range (0.1-30)", c.Source.FrameRate)
	}
	if err := ensurePositive(map[string]int{
		"source.connect_base_delay":     c.Source.ConnectBaseDelay,
		"source.connect_max_delay":      c.Source.ConnectMaxDelay,
		"source.connect_max_attempts":   c.Source.ConnectMaxAttempts,
		"source.read_failure_threshold": c.Source.ReadFailureThreshold,
	}); err != nil {
		return err
	}
	if c.Source.ConnectMaxDelay < c.Source.ConnectBaseDelay {
		return errors.New("source.connect_max_delay must be at least source.connect_base_delay")
	}
	return nil
}

func (c *Config) validateDetector() error {
	if c.Detector.Endpoint == "" {
		return errors.New("detector.endpoint is required (HTTP inference service URL)")
	}
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return errors.New("detector.confidence_threshold must be between 0 and 1")
	}
	if c.Detector.MinAreaRatio < 0 || c.Detector.MinAreaRatio > 1 {
		return errors.New("detector.min_area_ratio must be between 0 and 1")
	}
	for name, v := range map[string]float64{
		"detector.roi_x1": c.Detector.ROIX1,
		"detector.roi_y1": c.Detector.ROIY1,
		"detector.roi_x2": c.Detector.ROIX2,
		"detector.roi_y2": c.Detector.ROIY2,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.Detector.ROIX1 >= c.Detector.ROIX2 || c.Detector.ROIY1 >= c.Detector.ROIY2 {
		return errors.New("detector region of interest is empty (roi_x1/roi_y1 must be less than roi_x2/roi_y2)")
	}
	if c.Detector.RequestTimeout <= 0 {
		return errors.New("detector.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateSession() error {
	return ensurePositive(map[string]int{
		"session.detection_interval_ms":  c.Session.DetectionIntervalMS,
		"session.absence_grace_period":   c.Session.AbsenceGracePeriod,
		"session.visit_cooldown":         c.Session.VisitCooldown,
		"session.max_captures_per_visit": c.Session.MaxCapturesPerVisit,
		"session.capture_interval":       c.Session.CaptureInterval,
	})
}

func (c *Config) validateVision() error {
	if !c.Vision.Enabled {
		return nil
	}
	// Fail closed: a missing secret refuses startup instead of degrading to
	// an embedded credential.
	if strings.TrimSpace(c.Vision.APIKey) == "" {
		return fmt.Errorf("vision.api_key is required when vision.enabled is true; set %s or vision.api_key", VisionAPIKeyEnv)
	}
	if c.Vision.BaseURL == "" {
		return errors.New("vision.base_url must be set when vision.enabled is true")
	}
	if c.Vision.Model == "" {
		return errors.New("vision.model must be set when vision.enabled is true")
	}
	return ensurePositive(map[string]int{
		"vision.timeout_seconds":  c.Vision.TimeoutSeconds,
		"vision.max_retries":      c.Vision.MaxRetries,
		"vision.retry_base_delay": c.Vision.RetryBaseDelay,
		"vision.retry_max_delay":  c.Vision.RetryMaxDelay,
	})
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.Workers <= 0 {
		return errors.New("analysis.workers must be positive")
	}
	if c.Analysis.QueueCapacity < 0 {
		return errors.New("analysis.queue_capacity must not be negative (0 means unbounded)")
	}
	if c.Analysis.QueueWatermark <= 0 {
		return errors.New("analysis.queue_watermark must be positive")
	}
	if c.Analysis.DrainTimeout <= 0 {
		return errors.New("analysis.drain_timeout must be positive (seconds)")
	}
	return nil
}

func ensurePositive(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
