package frames

import "sync"

// Cell is a single-slot buffer holding the most recent frame. Writers
// overwrite unconditionally; readers always observe the freshest frame and
// never block the acquirer. A plain mutex keeps the pointer swap and any
// future bookkeeping in one critical section.
type Cell struct {
	mu    sync.Mutex
	frame *Frame
}

// NewCell returns an empty cell.
func NewCell() *Cell {
	return &Cell{}
}

// Store replaces the buffered frame with the given one.
func (c *Cell) Store(frame *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = frame
}

// Load returns the most recent frame, or false when nothing has been
// published yet. The frame is shared, not copied; consumers must treat the
// data as read-only.
func (c *Cell) Load() (*Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return nil, false
	}
	return c.frame, true
}

// Clear drops the buffered frame. The acquirer calls this on disconnect so
// consumers do not keep acting on a stale image.
func (c *Cell) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = nil
}
