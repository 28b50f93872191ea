package analysis

import (
	"sync"
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue(0, 25, nil)
	for _, id := range []string{"a", "b", "c"} {
		if !q.Enqueue(Task{VisitID: id, EnqueuedAt: time.Now()}) {
			t.Fatalf("enqueue %s rejected", id)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		task, ok := q.Dequeue()
		if !ok {
			t.Fatal("queue drained early")
		}
		if task.VisitID != want {
			t.Fatalf("dequeued %s, want %s", task.VisitID, want)
		}
	}
}

func TestQueueCapacityDropsOldest(t *testing.T) {
	q := NewQueue(2, 25, nil)
	q.Enqueue(Task{VisitID: "a"})
	q.Enqueue(Task{VisitID: "b"})
	q.Enqueue(Task{VisitID: "c"}) // drops a

	if got := q.Len(); got != 2 {
		t.Fatalf("depth = %d, want 2", got)
	}
	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	if first.VisitID != "b" || second.VisitID != "c" {
		t.Fatalf("kept %s,%s; want b,c", first.VisitID, second.VisitID)
	}
}

func TestQueueCloseDrainsRemainingTasks(t *testing.T) {
	q := NewQueue(0, 25, nil)
	q.Enqueue(Task{VisitID: "a"})
	q.Enqueue(Task{VisitID: "b"})
	q.Close()

	if q.Enqueue(Task{VisitID: "late"}) {
		t.Fatal("closed queue accepted a task")
	}

	if task, ok := q.Dequeue(); !ok || task.VisitID != "a" {
		t.Fatalf("first drain = %+v ok=%v", task, ok)
	}
	if task, ok := q.Dequeue(); !ok || task.VisitID != "b" {
		t.Fatalf("second drain = %+v ok=%v", task, ok)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("drained queue still yields tasks")
	}
}

func TestQueueCloseWakesBlockedWorkers(t *testing.T) {
	q := NewQueue(0, 25, nil)
	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Dequeue()
			results <- ok
		}()
	}

	// Give the workers a moment to block, then close.
	time.Sleep(20 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked workers were not woken by Close")
	}
	for i := 0; i < 3; i++ {
		if ok := <-results; ok {
			t.Fatal("worker received a task from an empty closed queue")
		}
	}
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	q := NewQueue(0, 1000, nil)
	const producers, perProducer = 4, 50

	var produced sync.WaitGroup
	for p := 0; p < producers; p++ {
		produced.Add(1)
		go func() {
			defer produced.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(Task{VisitID: "v"})
			}
		}()
	}

	var consumed sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for c := 0; c < 3; c++ {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for {
				_, ok := q.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}

	produced.Wait()
	q.Close()
	consumed.Wait()

	if count != producers*perProducer {
		t.Fatalf("consumed %d tasks, want %d", count, producers*perProducer)
	}
}
