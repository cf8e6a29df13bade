// Package queue carries settled save jobs from field controllers to the
// persistence workers.
//
// Enqueue never blocks the caller: a full queue rejects the job and the
// field stays unmarked-as-saved rather than stalling input.
package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/pkg/metrics"
)

const (
	defaultCapacity = 4096
)

// SaveJob is one settled debounce period's persistence work. Generation
// ties the job back to the keystroke that produced it so a completion can
// be matched against the value still current for the field; Token travels
// with the persistence request and its log lines for correlation.
type SaveJob struct {
	Token      uuid.UUID
	Key        model.FieldKey
	Generation uint64
	Value      float64
	MeasuredAt string
	SessionID  int64 // 0 means the daily records endpoint
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, job SaveJob) bool

	// Dequeue returns a channel receiving jobs as they become available.
	// The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan SaveJob

	// Len returns the current number of queued jobs.
	Len() int

	// Close stops the queue; no further jobs are accepted.
	Close() error
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	jobs     chan SaveJob
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan SaveJob, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job SaveJob) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		metrics.RecordQueueEnqueueError()
		return false
	}
}

// Dequeue returns a channel receiving jobs until the queue closes.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan SaveJob {
	out := make(chan SaveJob)
	go func() {
		defer close(out)
		for job := range q.jobs {
			select {
			case out <- job:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.jobs))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}
