package frames

import (
	"context"
	"time"
)

// Frame is one decoded camera frame as JPEG bytes. Seq increases
// monotonically per source connection so consumers can tell fresh frames
// from ones they have already processed.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte
	Width     int
	Height    int
}

// Source opens a connection to a camera feed.
type Source interface {
	Open(ctx context.Context) (Reader, error)
}

// Reader yields successive frames from an open feed. Next blocks until a
// frame is available, the context is done, or the feed fails.
type Reader interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}
