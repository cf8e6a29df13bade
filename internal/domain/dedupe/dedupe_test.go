package dedupe_test

import (
	"context"
	"sync"
	"testing"

	"github.com/peakfit/relay/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryMarker(t *testing.T) {
	Convey("Given an in-memory marker", t, func() {
		ctx := context.Background()
		m := dedupe.NewInMemoryMarker()

		Convey("The first record of a key passes, repeats are seen", func() {
			So(m.SeenAndRecord(ctx, "2026-08-31"), ShouldBeFalse)
			So(m.SeenAndRecord(ctx, "2026-08-31"), ShouldBeTrue)
			So(m.Size(), ShouldEqual, 1)
		})

		Convey("Keys track independently", func() {
			So(m.SeenAndRecord(ctx, "2026-08-31"), ShouldBeFalse)
			So(m.SeenAndRecord(ctx, "2026-09-01"), ShouldBeFalse)
			So(m.Size(), ShouldEqual, 2)
		})

		Convey("Unrecord lets the key through again", func() {
			So(m.SeenAndRecord(ctx, "2026-08-31"), ShouldBeFalse)
			m.Unrecord(ctx, "2026-08-31")
			So(m.SeenAndRecord(ctx, "2026-08-31"), ShouldBeFalse)
			So(m.Size(), ShouldEqual, 1)
		})

		Convey("Unrecord of an absent key is a no-op", func() {
			m.Unrecord(ctx, "2026-08-31")
			So(m.Size(), ShouldEqual, 0)
		})

		Convey("Concurrent recording admits exactly one caller per key", func() {
			const goroutines = 32
			var wg sync.WaitGroup
			count := 0
			var mu sync.Mutex

			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					if !m.SeenAndRecord(ctx, "2026-08-31") {
						mu.Lock()
						count++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			So(count, ShouldEqual, 1)
			So(m.Size(), ShouldEqual, 1)
		})
	})
}
