// Package worker drains the save-job queue into the backend of record.
//
// Workers never retry: a failed save is reported back to its field
// controller, which surfaces the error and waits for the next keystroke or
// an explicit retry. Completions are delivered to a sink regardless of
// outcome; matching a completion to the field's current value is the
// controller's job, not the worker's.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/peakfit/relay/internal/adapters/mq/queue"
	"github.com/peakfit/relay/internal/adapters/rest"
	"github.com/peakfit/relay/pkg/logger"
	"github.com/peakfit/relay/pkg/metrics"
)

const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Persister writes record batches to the backend of record.
type Persister interface {
	SaveRecords(ctx context.Context, batch rest.SaveBatch) error
	SaveSessionRecords(ctx context.Context, sessionID int64, batch rest.SaveBatch) error
}

// Result is the outcome of one save job, delivered to the sink.
type Result struct {
	Job queue.SaveJob
	Err error
}

// Sink receives save outcomes. Implementations must be safe for calls from
// multiple workers.
type Sink interface {
	SaveCompleted(res Result)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Result)

// SaveCompleted calls f.
func (f SinkFunc) SaveCompleted(res Result) { f(res) }

// JobSource defines how workers receive jobs.
type JobSource interface {
	Dequeue(ctx context.Context) <-chan queue.SaveJob
}

// Worker processes save jobs until stopped.
type Worker struct {
	source    JobSource
	persister Persister
	sink      Sink
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates a worker with configuration options.
func New(source JobSource, persister Persister, sink Sink, opts ...Option) *Worker {
	w := &Worker{
		source:    source,
		persister: persister,
		sink:      sink,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown stops the worker, waiting for the in-flight job.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process performs one persistence call and reports the outcome.
func (w *Worker) process(ctx context.Context, job queue.SaveJob) {
	batch := rest.SaveBatch{
		Token:       job.Token,
		Participant: job.Key.Participant,
		MeasuredAt:  job.MeasuredAt,
		Records: []rest.RecordValue{
			{RecordTypeID: job.Key.MetricTypeID, Value: job.Value},
		},
	}

	start := time.Now()
	var err error
	if job.SessionID != 0 {
		err = w.persister.SaveSessionRecords(ctx, job.SessionID, batch)
	} else {
		err = w.persister.SaveRecords(ctx, batch)
	}
	metrics.RecordSaveLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "save failed",
			logger.String("field", job.Key.String()),
			logger.String("save_token", job.Token.String()),
			logger.Error(err),
		)
	}
	if w.sink != nil {
		w.sink.SaveCompleted(Result{Job: job, Err: err})
	}
}

// Pool manages a fixed set of workers over one queue.
type Pool struct {
	workers []*Worker
	source  JobSource

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a pool of count workers.
func NewPool(count int, source JobSource, persister Persister, sink Sink) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{
		workers:  make([]*Worker, count),
		source:   source,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = New(source, persister, sink, WithName(fmt.Sprintf("worker-%d", i)))
	}
	metrics.UpdateWorkerActiveCount(count)
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
