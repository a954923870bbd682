package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/gauntlet/internal/adapters/mq/queue"
	"github.com/okian/gauntlet/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity two", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		Convey("When jobs are enqueued and dequeued", func() {
			So(q.Enqueue(ctx, model.Job{ID: "j1"}), ShouldBeNil)
			So(q.Len(), ShouldEqual, 1)
			job := <-q.Dequeue()

			Convey("Then they come out in order", func() {
				So(job.ID, ShouldEqual, "j1")
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, model.Job{ID: "j1"}), ShouldBeNil)
			So(q.Enqueue(ctx, model.Job{ID: "j2"}), ShouldBeNil)
			err := q.Enqueue(ctx, model.Job{ID: "j3"})

			Convey("Then the extra job is rejected without blocking", func() {
				So(errors.Is(err, queue.ErrFull), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then enqueue fails", func() {
				So(errors.Is(q.Enqueue(cctx, model.Job{ID: "j1"}), context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, model.Job{ID: "j1"}), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then new jobs are refused and buffered ones drain", func() {
				So(errors.Is(q.Enqueue(ctx, model.Job{ID: "j2"}), queue.ErrClosed), ShouldBeTrue)
				So(q.IsClosed(), ShouldBeTrue)
				var ids []string
				for job := range q.Dequeue() {
					ids = append(ids, job.ID)
				}
				So(ids, ShouldResemble, []string{"j1"})
			})
		})
	})

	Convey("Given concurrent producers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					_ = q.Enqueue(ctx, model.Job{ID: fmt.Sprintf("j%d-%d", i, j)})
				}
			}(i)
		}
		wg.Wait()

		Convey("Then every job is buffered", func() {
			So(q.Len(), ShouldEqual, 100)
		})
	})
}
