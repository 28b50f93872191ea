package visit

import (
	"time"

	"perch/internal/detection"
)

// Status is the lifecycle status of a visit.
type Status string

const (
	// StatusActive marks a visit that is still accumulating captures.
	StatusActive Status = "active"
	// StatusAnalyzing marks a completed visit awaiting species classification.
	StatusAnalyzing Status = "analyzing"
	// StatusCompleted marks a visit with a final classification result.
	StatusCompleted Status = "completed"
	// StatusFailed marks a visit whose classification ultimately failed.
	StatusFailed Status = "failed"
)

// Confidence tiers reported by the species classifier.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// NormalizeConfidence maps arbitrary classifier output onto a known tier,
// defaulting to low.
func NormalizeConfidence(value string) string {
	switch value {
	case ConfidenceMedium, ConfidenceHigh:
		return value
	default:
		return ConfidenceLow
	}
}

// Capture is one stored evidence snapshot taken during a visit.
type Capture struct {
	ID         string
	VisitID    string
	Index      int
	Timestamp  time.Time
	ImagePath  string
	Detections []detection.Detection
}

// TotalArea returns the summed bounding-box area of all detections in the
// capture, in pixels.
func (c Capture) TotalArea() int {
	total := 0
	for _, d := range c.Detections {
		total += d.Area()
	}
	return total
}

// MaxConfidence returns the highest detection confidence in the capture.
func (c Capture) MaxConfidence() float64 {
	best := 0.0
	for _, d := range c.Detections {
		if d.Confidence > best {
			best = d.Confidence
		}
	}
	return best
}

// Score ranks a capture for classification: larger, more confident
// detections make better evidence.
func (c Capture) Score() float64 {
	return float64(c.TotalArea()) * c.MaxConfidence()
}

// Visit is one continuous presence episode.
type Visit struct {
	ID            string
	SessionID     string
	StartedAt     time.Time
	EndedAt       time.Time
	Status        Status
	Species       string
	Confidence    string
	Summary       string
	BirdCount     int
	BestCaptureID string
	Captures      []Capture
}

// Duration returns the visit length, or zero while the visit is still open.
func (v *Visit) Duration() time.Duration {
	if v.EndedAt.IsZero() {
		return 0
	}
	return v.EndedAt.Sub(v.StartedAt)
}

// BestCapture selects the capture with the highest score; ties go to the
// earliest capture. Returns nil when the visit has no captures.
func (v *Visit) BestCapture() *Capture {
	var best *Capture
	for i := range v.Captures {
		c := &v.Captures[i]
		if best == nil || c.Score() > best.Score() {
			best = c
		}
	}
	return best
}
