package model_test

import (
	"encoding/json"
	"testing"

	"github.com/peakfit/relay/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParticipantID(t *testing.T) {
	Convey("Given participant identities", t, func() {
		Convey("Students and applicants occupy distinct identity spaces", func() {
			student := model.StudentID(7)
			applicant := model.ApplicantID(7)

			So(student.IsStudent(), ShouldBeTrue)
			So(applicant.IsStudent(), ShouldBeFalse)
			So(student, ShouldNotResemble, applicant)
			So(student.String(), ShouldEqual, "student:7")
			So(applicant.String(), ShouldEqual, "applicant:7")
		})

		Convey("Field keys are comparable map keys", func() {
			a := model.FieldKey{Participant: model.StudentID(1), MetricTypeID: 2}
			b := model.FieldKey{Participant: model.StudentID(1), MetricTypeID: 2}
			c := model.FieldKey{Participant: model.ApplicantID(1), MetricTypeID: 2}

			m := map[model.FieldKey]int{a: 1}
			m[b]++
			m[c] = 5

			So(m[a], ShouldEqual, 2)
			So(m[c], ShouldEqual, 5)
			So(len(m), ShouldEqual, 2)
		})
	})
}

func TestTimeSlots(t *testing.T) {
	Convey("Time slots list in schedule order", t, func() {
		So(model.TimeSlots(), ShouldResemble, []model.TimeSlot{model.Morning, model.Afternoon, model.Evening})
	})
}

func TestSyncEventDecoding(t *testing.T) {
	Convey("Given a wire sync event", t, func() {
		Convey("A class-scoped event decodes fully", func() {
			var ev model.SyncEvent
			raw := `{"date": "2026-08-31", "time_slot": "morning", "action": "assigned", "class_num": 2}`
			So(json.Unmarshal([]byte(raw), &ev), ShouldBeNil)

			So(ev.Date, ShouldEqual, "2026-08-31")
			So(ev.TimeSlot, ShouldEqual, model.Morning)
			So(ev.Action, ShouldEqual, "assigned")
			So(ev.ClassNum, ShouldNotBeNil)
			So(*ev.ClassNum, ShouldEqual, 2)
		})

		Convey("A slot-level event leaves the class absent", func() {
			var ev model.SyncEvent
			raw := `{"date": "2026-08-31", "time_slot": "evening", "action": "unassigned"}`
			So(json.Unmarshal([]byte(raw), &ev), ShouldBeNil)
			So(ev.ClassNum, ShouldBeNil)
		})
	})
}

func TestAssignmentSnapshot(t *testing.T) {
	Convey("Given assignment snapshots", t, func() {
		Convey("An empty snapshot has no participants", func() {
			snap := model.AssignmentSnapshot{Date: "2026-08-31"}
			So(snap.HasParticipants(), ShouldBeFalse)
		})

		Convey("Assigned students count as participants", func() {
			snap := model.AssignmentSnapshot{
				Date: "2026-08-31",
				Slots: map[model.TimeSlot]model.SlotAssignments{
					model.Morning: {Classes: []model.ClassGroup{{
						ClassNum: 1,
						Students: []model.Participant{{ID: model.StudentID(1)}},
					}}},
				},
			}
			So(snap.HasParticipants(), ShouldBeTrue)
		})

		Convey("Waiting participants count too", func() {
			snap := model.AssignmentSnapshot{
				Date: "2026-08-31",
				Slots: map[model.TimeSlot]model.SlotAssignments{
					model.Evening: {Waiting: []model.Participant{{ID: model.ApplicantID(3)}}},
				},
			}
			So(snap.HasParticipants(), ShouldBeTrue)
		})
	})
}
