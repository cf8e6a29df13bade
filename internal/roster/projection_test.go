package roster_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/internal/roster"
	"github.com/peakfit/relay/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

const testDate = "2026-08-31"

// fakeSource serves canned snapshots and counts fetches. hold, when set,
// blocks fetches until released so tests can pile up concurrent events.
type fakeSource struct {
	mu    sync.Mutex
	snaps map[string]model.AssignmentSnapshot
	err   error
	calls int
	hold  chan struct{}
}

func (f *fakeSource) Assignments(_ context.Context, date string) (model.AssignmentSnapshot, error) {
	f.mu.Lock()
	f.calls++
	hold := f.hold
	err := f.err
	snap := f.snaps[date]
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return model.AssignmentSnapshot{}, err
	}
	return snap, nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) set(snap model.AssignmentSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snap.Date] = snap
}

func snapshotWith(students ...model.Participant) model.AssignmentSnapshot {
	return model.AssignmentSnapshot{
		Date: testDate,
		Slots: map[model.TimeSlot]model.SlotAssignments{
			model.Morning: {
				Classes: []model.ClassGroup{{
					ClassNum:    1,
					Instructors: []model.Instructor{{ID: 1, Name: "Coach Park"}},
					Students:    students,
				}},
			},
		},
	}
}

func newSource(snap model.AssignmentSnapshot) *fakeSource {
	return &fakeSource{snaps: map[string]model.AssignmentSnapshot{snap.Date: snap}}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestProjectionEvents(t *testing.T) {
	Convey("Given a projection with a loaded date", t, func() {
		src := newSource(snapshotWith(model.Participant{ID: model.StudentID(1), Name: "Minjun", Gender: model.Male}))
		p := roster.NewProjection(src)
		_, err := p.Load(context.Background(), testDate)
		So(err, ShouldBeNil)
		So(src.fetchCount(), ShouldEqual, 1)

		Convey("An event for the viewed date refetches and replaces the snapshot", func() {
			src.set(snapshotWith(
				model.Participant{ID: model.StudentID(1), Name: "Minjun", Gender: model.Male},
				model.Participant{ID: model.StudentID(2), Name: "Seoyeon", Gender: model.Female},
			))
			p.HandleEvent(context.Background(), model.SyncEvent{Date: testDate, TimeSlot: model.Morning, Action: "assigned"})

			So(eventually(func() bool {
				snap, ok := p.Snapshot(testDate)
				return ok && len(snap.Slots[model.Morning].Classes[0].Students) == 2
			}), ShouldBeTrue)
			So(src.fetchCount(), ShouldEqual, 2)
		})

		Convey("Applying the same event twice converges on the same snapshot", func() {
			ev := model.SyncEvent{Date: testDate, TimeSlot: model.Morning, Action: "assigned"}
			p.HandleEvent(context.Background(), ev)
			So(eventually(func() bool { return src.fetchCount() >= 2 }), ShouldBeTrue)
			before, _ := p.Snapshot(testDate)

			p.HandleEvent(context.Background(), ev)
			So(eventually(func() bool { return src.fetchCount() >= 3 }), ShouldBeTrue)
			after, _ := p.Snapshot(testDate)
			So(after, ShouldResemble, before)
		})

		Convey("Events for dates not in view are dropped", func() {
			p.HandleEvent(context.Background(), model.SyncEvent{Date: "2026-09-01", TimeSlot: model.Morning, Action: "assigned"})
			time.Sleep(50 * time.Millisecond)
			So(src.fetchCount(), ShouldEqual, 1)
		})

		Convey("Events for a forgotten date are dropped", func() {
			p.Forget(testDate)
			p.HandleEvent(context.Background(), model.SyncEvent{Date: testDate, TimeSlot: model.Morning, Action: "assigned"})
			time.Sleep(50 * time.Millisecond)
			So(src.fetchCount(), ShouldEqual, 1)
		})

		Convey("A burst of events coalesces into at most two fetches", func() {
			release := make(chan struct{})
			src.mu.Lock()
			src.hold = release
			src.mu.Unlock()

			ev := model.SyncEvent{Date: testDate, TimeSlot: model.Morning, Action: "assigned"}
			p.HandleEvent(context.Background(), ev)
			So(eventually(func() bool { return src.fetchCount() == 2 }), ShouldBeTrue)

			// More events land while the refetch is blocked in flight.
			p.HandleEvent(context.Background(), ev)
			p.HandleEvent(context.Background(), ev)
			p.HandleEvent(context.Background(), ev)

			src.mu.Lock()
			src.hold = nil
			src.mu.Unlock()
			close(release)

			So(eventually(func() bool { return src.fetchCount() == 3 }), ShouldBeTrue)
			time.Sleep(50 * time.Millisecond)
			So(src.fetchCount(), ShouldEqual, 3)
		})

		Convey("An event racing a finishing refetch still triggers a follow-up", func() {
			ev := model.SyncEvent{Date: testDate, TimeSlot: model.Morning, Action: "assigned"}
			for i := 0; i < 25; i++ {
				base := src.fetchCount()
				release := make(chan struct{})
				src.mu.Lock()
				src.hold = release
				src.mu.Unlock()

				p.HandleEvent(context.Background(), ev)
				So(eventually(func() bool { return src.fetchCount() == base+1 }), ShouldBeTrue)

				src.mu.Lock()
				src.hold = nil
				src.mu.Unlock()

				// Deliver a second event as close to the refetch's
				// completion as the scheduler allows.
				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					p.HandleEvent(context.Background(), ev)
				}()
				close(release)
				wg.Wait()

				// The racing event must produce a fetch of its own, either
				// as the coalesced follow-up or as a fresh refetch.
				So(eventually(func() bool { return src.fetchCount() >= base+2 }), ShouldBeTrue)
				time.Sleep(10 * time.Millisecond)
			}
		})

		Convey("A failed refetch keeps the cached snapshot", func() {
			src.mu.Lock()
			src.err = errors.New("backend down")
			src.mu.Unlock()

			p.HandleEvent(context.Background(), model.SyncEvent{Date: testDate, TimeSlot: model.Morning, Action: "assigned"})
			So(eventually(func() bool { return src.fetchCount() >= 2 }), ShouldBeTrue)
			time.Sleep(50 * time.Millisecond)

			snap, ok := p.Snapshot(testDate)
			So(ok, ShouldBeTrue)
			So(snap.Slots[model.Morning].Classes[0].Students, ShouldHaveLength, 1)
		})

		Convey("The change listener fires after replacement", func() {
			var mu sync.Mutex
			var notified []string
			p2 := roster.NewProjection(src, roster.WithChangeListener(func(date string) {
				mu.Lock()
				notified = append(notified, date)
				mu.Unlock()
			}))
			_, err := p2.Load(context.Background(), testDate)
			So(err, ShouldBeNil)

			p2.HandleEvent(context.Background(), model.SyncEvent{Date: testDate, TimeSlot: model.Morning, Action: "assigned"})
			So(eventually(func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(notified) >= 2
			}), ShouldBeTrue)
			mu.Lock()
			So(notified[0], ShouldEqual, testDate)
			mu.Unlock()
		})
	})
}
