package analysis

import (
	"log/slog"
	"sync"
	"time"

	"perch/internal/logging"
)

// Task is one queued unit of classification work. The visit's captures are
// loaded from the store when the task runs, so a task survives a process
// restart as nothing more than the visit ID.
type Task struct {
	VisitID    string
	EnqueuedAt time.Time
}

// Queue is a FIFO of analysis tasks with depth monitoring. Enqueue never
// blocks the caller: when a capacity is set and reached, the oldest task is
// dropped and logged. Dequeue blocks until work arrives or the queue is
// closed and drained.
type Queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	items     []Task
	closed    bool
	capacity  int
	watermark int
	logger    *slog.Logger
}

// NewQueue builds a queue. capacity 0 means unbounded; watermark is the
// depth at which enqueues start logging a backlog warning.
func NewQueue(capacity, watermark int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	q := &Queue{capacity: capacity, watermark: watermark, logger: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a task. Returns false if the queue is closed.
func (q *Queue) Enqueue(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	if q.capacity > 0 && len(q.items) >= q.capacity {
		dropped := q.items[0]
		q.items = q.items[1:]
		q.logger.Warn("analysis queue full, dropping oldest task",
			logging.String(logging.FieldVisitID, dropped.VisitID),
			logging.Int("capacity", q.capacity))
	}

	q.items = append(q.items, task)
	if q.watermark > 0 && len(q.items) >= q.watermark {
		q.logger.Warn("analysis queue backlog",
			logging.Int("depth", len(q.items)),
			logging.Int("watermark", q.watermark))
	}
	q.cond.Signal()
	return true
}

// Dequeue removes the oldest task, blocking while the queue is open and
// empty. The second return is false once the queue is closed and drained.
func (q *Queue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Task{}, false
	}
	task := q.items[0]
	q.items = q.items[1:]
	return task, true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new tasks and wakes all waiting workers. Tasks
// already queued remain available to Dequeue so workers can drain.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
