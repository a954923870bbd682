package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gauntlet/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When a key is claimed for the first time", func() {
			seen, err := d.SeenAndRecord(ctx, "m1:round_1")

			Convey("Then the caller holds it", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then a second claim is refused", func() {
				seen, err := d.SeenAndRecord(ctx, "m1:round_1")
				So(err, ShouldBeNil)
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then unrecording lets the next caller claim it", func() {
				So(d.Unrecord(ctx, "m1:round_1"), ShouldBeNil)
				So(d.Size(), ShouldEqual, 0)
				seen, _ := d.SeenAndRecord(ctx, "m1:round_1")
				So(seen, ShouldBeFalse)
			})
		})

		Convey("When unrecording a key that was never claimed", func() {
			So(d.Unrecord(ctx, "missing"), ShouldBeNil)

			Convey("Then the size is unaffected", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := d.SeenAndRecord(cctx, "k")

			Convey("Then the claim fails without recording", func() {
				So(err, ShouldEqual, context.Canceled)
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded deduper at capacity", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			_, _ = d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
		}

		Convey("When another key is claimed", func() {
			_, _ = d.SeenAndRecord(ctx, "k4")

			Convey("Then the oldest claim is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				seen, _ := d.SeenAndRecord(ctx, "k1")
				So(seen, ShouldBeFalse)
				seen, _ = d.SeenAndRecord(ctx, "k4")
				So(seen, ShouldBeTrue)
			})
		})
	})

	Convey("Given a deduper with a claim TTL", t, func() {
		now := time.Unix(1000, 0)
		d := dedupe.NewInMemoryDeduper(
			dedupe.WithTTL(time.Second),
			dedupe.WithClock(func() time.Time { return now }),
		)
		_, _ = d.SeenAndRecord(ctx, "k")

		Convey("Then the claim holds inside the lease", func() {
			now = now.Add(500 * time.Millisecond)
			seen, _ := d.SeenAndRecord(ctx, "k")
			So(seen, ShouldBeTrue)
		})

		Convey("Then the claim lapses after the lease", func() {
			now = now.Add(2 * time.Second)
			seen, _ := d.SeenAndRecord(ctx, "k")
			So(seen, ShouldBeFalse)
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(-1))

		Convey("When many keys are claimed", func() {
			for i := 0; i < 1000; i++ {
				_, _ = d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
			})
		})
	})
}

func TestDeduperConcurrency(t *testing.T) {
	Convey("Given many goroutines racing for one key", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seen, err := d.SeenAndRecord(context.Background(), "m1:semifinal_bracket")
				if err == nil && !seen {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one wins the claim", func() {
			So(winners.Load(), ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
