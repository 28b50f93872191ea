package main

import (
	"fmt"
	"time"

	"perch/internal/config"
)

func visionSummary(cfg *config.Config) string {
	if !cfg.Vision.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s (%s)", cfg.Vision.Model, cfg.Vision.BaseURL)
}

func orUnset(value string) string {
	if value == "" {
		return "(unset)"
	}
	return value
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
