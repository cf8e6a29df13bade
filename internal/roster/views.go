package roster

import (
	"github.com/peakfit/relay/internal/domain/model"
)

// Derived views. All are pure functions of the cached snapshot, recomputed
// per call; nothing here is cached independently of the snapshot.

// Headcounts returns assigned-plus-waiting participant counts per slot.
func (p *Projection) Headcounts(date string) (map[model.TimeSlot]int, error) {
	snap, ok := p.Snapshot(date)
	if !ok {
		return nil, ErrNotLoaded
	}
	counts := make(map[model.TimeSlot]int, len(snap.Slots))
	for name, slot := range snap.Slots {
		n := len(slot.Waiting)
		for _, c := range slot.Classes {
			n += len(c.Students)
		}
		counts[name] = n
	}
	return counts, nil
}

// AvailableSlots returns, in schedule order, the slots with at least one
// assigned or waiting participant.
func (p *Projection) AvailableSlots(date string) ([]model.TimeSlot, error) {
	snap, ok := p.Snapshot(date)
	if !ok {
		return nil, ErrNotLoaded
	}
	var avail []model.TimeSlot
	for _, name := range model.TimeSlots() {
		slot, ok := snap.Slots[name]
		if !ok {
			continue
		}
		if len(slot.Waiting) > 0 {
			avail = append(avail, name)
			continue
		}
		for _, c := range slot.Classes {
			if len(c.Students) > 0 {
				avail = append(avail, name)
				break
			}
		}
	}
	return avail, nil
}

// InstructorsPresent returns the instructors attached to a slot's classes.
func (p *Projection) InstructorsPresent(date string, slot model.TimeSlot) ([]model.Instructor, error) {
	snap, ok := p.Snapshot(date)
	if !ok {
		return nil, ErrNotLoaded
	}
	sa, ok := snap.Slots[slot]
	if !ok {
		return nil, nil
	}
	seen := make(map[int64]struct{})
	var out []model.Instructor
	for _, c := range sa.Classes {
		for _, inst := range c.Instructors {
			if _, dup := seen[inst.ID]; dup {
				continue
			}
			seen[inst.ID] = struct{}{}
			out = append(out, inst)
		}
	}
	return out, nil
}

// RosterFor returns every participant visible in a slot: class students
// first, then the waiting pool, deduplicated by identity.
func (p *Projection) RosterFor(date string, slot model.TimeSlot) ([]model.Participant, error) {
	snap, ok := p.Snapshot(date)
	if !ok {
		return nil, ErrNotLoaded
	}
	sa, ok := snap.Slots[slot]
	if !ok {
		return nil, nil
	}
	seen := make(map[model.ParticipantID]struct{})
	var out []model.Participant
	add := func(p model.Participant) {
		if _, dup := seen[p.ID]; dup {
			return
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	for _, c := range sa.Classes {
		for _, s := range c.Students {
			add(s)
		}
	}
	for _, w := range sa.Waiting {
		add(w)
	}
	return out, nil
}

// AbsentWaiting returns the slot's waiting participants marked absent, the
// group that joins a class's testing instead of their own slot.
func (p *Projection) AbsentWaiting(date string, slot model.TimeSlot) ([]model.Participant, error) {
	snap, ok := p.Snapshot(date)
	if !ok {
		return nil, ErrNotLoaded
	}
	sa, ok := snap.Slots[slot]
	if !ok {
		return nil, nil
	}
	var out []model.Participant
	for _, w := range sa.Waiting {
		if w.AttendanceStatus == "absent" {
			out = append(out, w)
		}
	}
	return out, nil
}

// ClassRoster returns one class's students plus the slot's absent waiting
// participants, the set a single proctor enters records for.
func (p *Projection) ClassRoster(date string, slot model.TimeSlot, classNum int) ([]model.Participant, error) {
	snap, ok := p.Snapshot(date)
	if !ok {
		return nil, ErrNotLoaded
	}
	sa, ok := snap.Slots[slot]
	if !ok {
		return nil, nil
	}
	seen := make(map[model.ParticipantID]struct{})
	var out []model.Participant
	for _, c := range sa.Classes {
		if c.ClassNum != classNum {
			continue
		}
		for _, s := range c.Students {
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	for _, w := range sa.Waiting {
		if w.AttendanceStatus != "absent" {
			continue
		}
		if _, dup := seen[w.ID]; dup {
			continue
		}
		seen[w.ID] = struct{}{}
		out = append(out, w)
	}
	return out, nil
}
