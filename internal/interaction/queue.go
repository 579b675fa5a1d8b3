package interaction

import (
	"sync"

	"skirmish/server/internal/telemetry"
)

const (
	queueOccupancyMetricKey = "interaction_queue_occupancy"
	queueOverflowMetricKey  = "interaction_queue_overflow_total"
)

// DefaultQueueCapacity bounds the backlog when no capacity is configured.
const DefaultQueueCapacity = 1024

type queued struct {
	req      Request
	admitted int64
}

// queue is a fixed-size ring safe for concurrent producers and a single
// consumer. Every successful push signals readyC.
type queue struct {
	mu      sync.Mutex
	data    []queued
	head    int
	tail    int
	count   int
	ready   chan struct{}
	metrics telemetry.Metrics
}

// newQueue constructs a ring with the provided capacity.
func newQueue(capacity int, metrics telemetry.Metrics) *queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &queue{
		data:    make([]queued, capacity),
		ready:   make(chan struct{}, 1),
		metrics: metrics,
	}
}

// capacity reports the maximum number of requests the queue can hold.
func (q *queue) capacity() int {
	return len(q.data)
}

// readyC is signalled after a push. A single pending signal may cover
// several pushes.
func (q *queue) readyC() <-chan struct{} {
	return q.ready
}

// push stages a request, returning false when the ring is full.
func (q *queue) push(item queued) bool {
	q.mu.Lock()
	if q.count == len(q.data) {
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.Add(queueOverflowMetricKey, 1)
		}
		return false
	}
	q.data[q.tail] = item
	q.tail = (q.tail + 1) % len(q.data)
	q.count++
	q.storeOccupancyLocked()
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// drain returns all staged requests in FIFO order and clears the ring.
func (q *queue) drain() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	items := make([]queued, q.count)
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.data)
		items[i] = q.data[idx]
		q.data[idx] = queued{}
	}
	q.head = 0
	q.tail = 0
	q.count = 0
	q.storeOccupancyLocked()
	return items
}

// size reports the number of staged requests.
func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *queue) storeOccupancyLocked() {
	if q.metrics == nil {
		return
	}
	q.metrics.Store(queueOccupancyMetricKey, uint64(q.count))
}
