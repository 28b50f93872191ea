// Package detection defines the bird detection data model and the adapter
// contract for the object detection model. The model itself runs out of
// process; the HTTP client here posts frames to an inference sidecar and
// filters the returned boxes by class, confidence, size, and region of
// interest.
package detection
