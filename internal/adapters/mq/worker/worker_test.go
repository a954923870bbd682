package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/gauntlet/internal/adapters/mq/queue"
	"github.com/okian/gauntlet/internal/adapters/mq/worker"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// recordingRunner records the jobs it ran and fails the ones listed.
type recordingRunner struct {
	mu   sync.Mutex
	ran  []string
	fail map[string]bool
	wg   *sync.WaitGroup
}

func (r *recordingRunner) RunJob(_ context.Context, job model.Job) error {
	r.mu.Lock()
	r.ran = append(r.ran, job.ID)
	r.mu.Unlock()
	if r.wg != nil {
		defer r.wg.Done()
	}
	if r.fail[job.ID] {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func TestInMemoryWorker(t *testing.T) {
	Convey("Given a worker reading a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		var wg sync.WaitGroup
		r := &recordingRunner{fail: map[string]bool{"bad": true}, wg: &wg}
		w := worker.NewInMemoryWorker(q, r, worker.WithName("w1"), worker.WithLogger(logger.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		Convey("When jobs including a failing one are queued", func() {
			wg.Add(3)
			So(q.Enqueue(ctx, model.Job{ID: "a"}), ShouldBeNil)
			So(q.Enqueue(ctx, model.Job{ID: "bad"}), ShouldBeNil)
			So(q.Enqueue(ctx, model.Job{ID: "b"}), ShouldBeNil)
			wg.Wait()

			Convey("Then every job runs and a failure does not stop the worker", func() {
				So(r.count(), ShouldEqual, 3)
				sctx, scancel := context.WithTimeout(context.Background(), time.Second)
				defer scancel()
				So(w.Shutdown(sctx), ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of four workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		var wg sync.WaitGroup
		r := &recordingRunner{wg: &wg}
		pool := worker.NewPool(4, q, r)
		So(pool.Size(), ShouldEqual, 4)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		Convey("When fifty jobs are queued", func() {
			wg.Add(50)
			for i := 0; i < 50; i++ {
				So(q.Enqueue(ctx, model.Job{ID: fmt.Sprintf("j%d", i)}), ShouldBeNil)
			}
			wg.Wait()

			Convey("Then all run exactly once and shutdown closes the queue", func() {
				So(r.count(), ShouldEqual, 50)
				So(pool.Shutdown(context.Background()), ShouldBeNil)
				So(q.IsClosed(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a pool sized from the CPU count", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), worker.JobRunnerFunc(func(context.Context, model.Job) error { return nil }))

		Convey("Then it has at least one worker", func() {
			So(pool.Size(), ShouldBeGreaterThan, 0)
		})
	})
}
