package detection

import (
	"context"

	"perch/internal/frames"
)

// Detection is one observed bird instance in a single frame. Coordinates are
// full-frame pixels.
type Detection struct {
	Box        [4]int  `json:"bbox"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	AreaRatio  float64 `json:"area_ratio"`
}

// Area returns the bounding box area in pixels.
func (d Detection) Area() int {
	w := d.Box[2] - d.Box[0]
	h := d.Box[3] - d.Box[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ROI is the sub-rectangle of a frame in which detections are considered
// valid, expressed as fractions of the frame dimensions.
type ROI struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Bounds converts the relative region into pixel coordinates for a frame of
// the given dimensions.
func (r ROI) Bounds(width, height int) (x1, y1, x2, y2 int) {
	x1 = int(float64(width) * r.X1)
	y1 = int(float64(height) * r.Y1)
	x2 = int(float64(width) * r.X2)
	y2 = int(float64(height) * r.Y2)
	return x1, y1, x2, y2
}

// Area returns the region area in pixels for a frame of the given dimensions.
func (r ROI) Area(width, height int) int {
	x1, y1, x2, y2 := r.Bounds(width, height)
	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// contains reports whether the pixel point lies inside the region for a
// frame of the given dimensions.
func (r ROI) contains(width, height, px, py int) bool {
	x1, y1, x2, y2 := r.Bounds(width, height)
	return px >= x1 && px < x2 && py >= y1 && py < y2
}

// Detector is the adapter contract for the object detection model. Identical
// input must yield identical output so the engine can be tested against a
// deterministic fake.
type Detector interface {
	Detect(ctx context.Context, frame *frames.Frame) ([]Detection, error)
}

// Filter applies the configured acceptance rules to raw model output: class
// match, confidence threshold, box center inside the region of interest, and
// minimum area relative to the region. AreaRatio is populated on the
// surviving detections.
func Filter(raw []Detection, roi ROI, width, height, classID int, confidence, minAreaRatio float64) []Detection {
	roiArea := roi.Area(width, height)
	if roiArea <= 0 {
		return nil
	}
	var kept []Detection
	for _, d := range raw {
		if d.ClassID != classID {
			continue
		}
		if d.Confidence < confidence {
			continue
		}
		cx := (d.Box[0] + d.Box[2]) / 2
		cy := (d.Box[1] + d.Box[3]) / 2
		if !roi.contains(width, height, cx, cy) {
			continue
		}
		ratio := float64(d.Area()) / float64(roiArea)
		if ratio < minAreaRatio {
			continue
		}
		d.AreaRatio = ratio
		kept = append(kept, d)
	}
	return kept
}
