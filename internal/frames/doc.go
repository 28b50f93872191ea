// Package frames handles camera frame acquisition: an ffmpeg-backed MJPEG
// source, a single-slot buffer holding only the freshest frame, and an
// acquirer goroutine that keeps the source connected with bounded
// exponential-backoff reconnects.
package frames
