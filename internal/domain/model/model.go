// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
)

// Gender of a participant, as carried by the roster.
type Gender string

// Gender values.
const (
	Male   Gender = "M"
	Female Gender = "F"
)

// TimeSlot identifies one of the three daily class blocks.
type TimeSlot string

// Time slots in schedule order.
const (
	Morning   TimeSlot = "morning"
	Afternoon TimeSlot = "afternoon"
	Evening   TimeSlot = "evening"
)

// TimeSlots lists all slots in schedule order.
func TimeSlots() []TimeSlot {
	return []TimeSlot{Morning, Afternoon, Evening}
}

// ParticipantKind discriminates the two mutually exclusive identity spaces.
type ParticipantKind string

// Participant kinds.
const (
	KindStudent   ParticipantKind = "student"
	KindApplicant ParticipantKind = "applicant"
)

// ParticipantID is the composite identity of a participant: an enrolled
// student or a monthly-test applicant, never both. It is comparable and
// safe to use as a map key.
type ParticipantID struct {
	Kind ParticipantKind
	N    int64
}

// StudentID builds a student identity.
func StudentID(n int64) ParticipantID {
	return ParticipantID{Kind: KindStudent, N: n}
}

// ApplicantID builds a test-applicant identity.
func ApplicantID(n int64) ParticipantID {
	return ParticipantID{Kind: KindApplicant, N: n}
}

// IsStudent reports whether the identity lives in the student space.
func (id ParticipantID) IsStudent() bool { return id.Kind == KindStudent }

// IsZero reports whether the identity is unset.
func (id ParticipantID) IsZero() bool { return id.Kind == "" && id.N == 0 }

func (id ParticipantID) String() string {
	return string(id.Kind) + ":" + strconv.FormatInt(id.N, 10)
}

// FieldKey identifies one input field: one participant on one metric.
// A struct key avoids the collision bugs of concatenated string keys when
// identity prefixes overlap.
type FieldKey struct {
	Participant  ParticipantID
	MetricTypeID int64
}

func (k FieldKey) String() string {
	return fmt.Sprintf("%s/%d", k.Participant, k.MetricTypeID)
}

// Participant is one roster member for the current session. Identity is
// immutable for the life of the session.
type Participant struct {
	ID               ParticipantID
	Name             string
	Gender           Gender
	ClassNum         *int
	AttendanceStatus string
}

// RecordEntry is the authoritative stored measurement for one field on one
// date. At most one row exists per (participant, metric, date); a later
// save supersedes it.
type RecordEntry struct {
	Participant  ParticipantID
	MetricTypeID int64
	Value        float64
	MeasuredAt   string // YYYY-MM-DD
}

// MetricType describes one measured physical-test event.
type MetricType struct {
	ID     int64
	Name   string
	Unit   string
	Active bool
}

// Instructor is a coach attached to a class group.
type Instructor struct {
	ID   int64
	Name string
}

// ClassGroup is one class within a time slot.
type ClassGroup struct {
	ClassNum    int
	Instructors []Instructor
	Students    []Participant
}

// SlotAssignments holds the classes and the waiting pool for one time slot.
type SlotAssignments struct {
	Classes []ClassGroup
	Waiting []Participant
}

// AssignmentSnapshot is the backend-of-record view of one date's roster.
// Clients hold it read-only and replace it wholesale on refetch.
type AssignmentSnapshot struct {
	Date  string // YYYY-MM-DD
	Slots map[TimeSlot]SlotAssignments
}

// HasParticipants reports whether any slot has an assigned or waiting
// participant.
func (s AssignmentSnapshot) HasParticipants() bool {
	for _, slot := range s.Slots {
		if len(slot.Waiting) > 0 {
			return true
		}
		for _, c := range slot.Classes {
			if len(c.Students) > 0 {
				return true
			}
		}
	}
	return false
}

// SyncEvent is an assignment-change notification delivered over the academy
// room. It names the affected date and slot; it never carries a diff.
type SyncEvent struct {
	Date     string   `json:"date"`
	TimeSlot TimeSlot `json:"time_slot"`
	Action   string   `json:"action"`
	ClassNum *int     `json:"class_num,omitempty"`
}
