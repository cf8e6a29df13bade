package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peakfit/relay/internal/adapters/mq/queue"
	"github.com/peakfit/relay/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func job(n int64) queue.SaveJob {
	return queue.SaveJob{
		Token:      uuid.New(),
		Key:        model.FieldKey{Participant: model.StudentID(n), MetricTypeID: 1},
		Value:      float64(n),
		MeasuredAt: "2026-08-31",
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given an in-memory save queue", t, func() {
		ctx := context.Background()

		Convey("Jobs flow through in order", func() {
			q := queue.NewInMemoryQueue()
			So(q.Enqueue(ctx, job(1)), ShouldBeTrue)
			So(q.Enqueue(ctx, job(2)), ShouldBeTrue)
			So(q.Len(), ShouldEqual, 2)

			out := q.Dequeue(ctx)
			first := <-out
			second := <-out
			So(first.Value, ShouldEqual, 1.0)
			So(second.Value, ShouldEqual, 2.0)
		})

		Convey("A full queue rejects instead of blocking", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(1))
			So(q.Enqueue(ctx, job(1)), ShouldBeTrue)

			start := time.Now()
			So(q.Enqueue(ctx, job(2)), ShouldBeFalse)
			So(time.Since(start), ShouldBeLessThan, 100*time.Millisecond)
		})

		Convey("A closed queue rejects new jobs and drains the rest", func() {
			q := queue.NewInMemoryQueue()
			So(q.Enqueue(ctx, job(1)), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Enqueue(ctx, job(2)), ShouldBeFalse)

			out := q.Dequeue(ctx)
			drained := <-out
			So(drained.Value, ShouldEqual, 1.0)

			_, open := <-out
			So(open, ShouldBeFalse)
		})

		Convey("Close is idempotent", func() {
			q := queue.NewInMemoryQueue()
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
		})

		Convey("A canceled dequeue context stops delivery", func() {
			q := queue.NewInMemoryQueue()
			dequeueCtx, cancel := context.WithCancel(ctx)
			out := q.Dequeue(dequeueCtx)
			cancel()
			So(q.Enqueue(ctx, job(1)), ShouldBeTrue)

			// At most the one in-flight job may still slip through before
			// the delivery channel closes.
			closed := false
			deadline := time.After(time.Second)
			for !closed {
				select {
				case _, open := <-out:
					closed = !open
				case <-deadline:
					t.Fatal("delivery channel never closed")
				}
			}
			So(closed, ShouldBeTrue)
		})
	})
}
