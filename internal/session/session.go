// Package session aggregates the field controllers for one roster and date
// into a record-entry session: bulk prefetch of existing records, keystroke
// fan-in, and per-participant aggregates.
package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/internal/domain/scoring"
	"github.com/peakfit/relay/internal/fieldsave"
	"github.com/peakfit/relay/pkg/logger"
	"github.com/peakfit/relay/pkg/metrics"
)

// Mode selects how entry is grouped in the UI. Both modes are views over
// the same controllers; switching never touches in-flight edits.
type Mode int

// Entry modes.
const (
	ModeByParticipant Mode = iota
	ModeByMetric
)

// RecordSource bulk-loads existing record entries.
type RecordSource interface {
	RecordsByDate(ctx context.Context, date string, ids []model.ParticipantID) ([]model.RecordEntry, error)
}

// Session is one roster's record-entry state.
type Session struct {
	date         string
	participants []model.Participant
	byID         map[model.ParticipantID]model.Participant
	metricTypes  []model.MetricType
	tables       map[int64]*scoring.ScoreTable
	resolver     scoring.Resolver
	fields       *fieldsave.Manager
	records      RecordSource

	mu       sync.Mutex
	mode     Mode
	expanded map[model.ParticipantID]struct{}

	logger logger.Logger
}

// New creates a session over the given roster.
func New(date string, participants []model.Participant, metricTypes []model.MetricType,
	tables map[int64]*scoring.ScoreTable, fields *fieldsave.Manager, records RecordSource) *Session {
	s := &Session{
		date:         date,
		participants: participants,
		byID:         make(map[model.ParticipantID]model.Participant, len(participants)),
		metricTypes:  metricTypes,
		tables:       tables,
		resolver:     scoring.NewTableResolver(),
		fields:       fields,
		records:      records,
		expanded:     make(map[model.ParticipantID]struct{}),
		logger:       logger.Get().Named("session"),
	}
	for _, p := range participants {
		s.byID[p.ID] = p
	}
	return s
}

// Fields exposes the field manager, the sink for worker completions.
func (s *Session) Fields() *fieldsave.Manager { return s.fields }

// Participants returns the roster in order.
func (s *Session) Participants() []model.Participant { return s.participants }

// MetricTypes returns the session's metric types.
func (s *Session) MetricTypes() []model.MetricType { return s.metricTypes }

// Prefetch bulk-loads existing entries for the roster in one call and
// seeds them as saved. A failed prefetch is logged and the session
// proceeds with empty fields: entry availability beats completeness.
func (s *Session) Prefetch(ctx context.Context) {
	ids := make([]model.ParticipantID, 0, len(s.participants))
	for _, p := range s.participants {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return
	}

	entries, err := s.records.RecordsByDate(ctx, s.date, ids)
	if err != nil {
		metrics.RecordPrefetchError()
		s.logger.Error(ctx, "prefetch failed; starting empty",
			logger.String("date", s.date),
			logger.Error(err))
		return
	}
	for _, e := range entries {
		if _, ok := s.byID[e.Participant]; !ok {
			continue
		}
		key := model.FieldKey{Participant: e.Participant, MetricTypeID: e.MetricTypeID}
		s.fields.Seed(key, strconv.FormatFloat(e.Value, 'f', -1, 64))
	}
}

// Input routes one keystroke to the field's controller.
func (s *Session) Input(participant model.ParticipantID, metricTypeID int64, raw string) {
	key := model.FieldKey{Participant: participant, MetricTypeID: metricTypeID}
	s.fields.Controller(key).Keystroke(raw)
}

// Retry re-triggers the save cycle for a field in the error state.
func (s *Session) Retry(participant model.ParticipantID, metricTypeID int64) {
	key := model.FieldKey{Participant: participant, MetricTypeID: metricTypeID}
	if c, ok := s.fields.Peek(key); ok {
		c.Retry()
	}
}

// FieldView is a render snapshot of one field, with its score resolved
// from the current value.
type FieldView struct {
	Value  string
	Score  *int
	Status fieldsave.Status
}

// Field returns the view for one field. Score resolution is pure and runs
// on every call, so it is always consistent with the shown value.
func (s *Session) Field(participant model.ParticipantID, metricTypeID int64) FieldView {
	key := model.FieldKey{Participant: participant, MetricTypeID: metricTypeID}
	c, ok := s.fields.Peek(key)
	if !ok {
		return FieldView{Status: fieldsave.StatusIdle}
	}
	view := c.View()
	fv := FieldView{Value: view.Value, Status: view.Status}
	if view.Numeric {
		if score, ok := s.Score(participant, metricTypeID); ok {
			fv.Score = &score
		}
	}
	return fv
}

// Score resolves the field's current value against the metric's table.
func (s *Session) Score(participant model.ParticipantID, metricTypeID int64) (int, bool) {
	p, ok := s.byID[participant]
	if !ok {
		return 0, false
	}
	key := model.FieldKey{Participant: participant, MetricTypeID: metricTypeID}
	c, ok := s.fields.Peek(key)
	if !ok {
		return 0, false
	}
	v, numeric := c.Value()
	if !numeric {
		return 0, false
	}
	return s.resolver.Resolve(v, p.Gender, s.tables[metricTypeID])
}

// InputCount returns how many of a participant's fields hold non-empty
// values.
func (s *Session) InputCount(participant model.ParticipantID) int {
	count := 0
	for _, mt := range s.metricTypes {
		key := model.FieldKey{Participant: participant, MetricTypeID: mt.ID}
		if c, ok := s.fields.Peek(key); ok {
			if view := c.View(); view.Value != "" {
				count++
			}
		}
	}
	return count
}

// TotalScore sums a participant's scored fields. Returns false when no
// field scored; unscored and invalid fields are ignored, never zeroed.
func (s *Session) TotalScore(participant model.ParticipantID) (int, bool) {
	total, scored := 0, false
	for _, mt := range s.metricTypes {
		if score, ok := s.Score(participant, mt.ID); ok {
			total += score
			scored = true
		}
	}
	return total, scored
}

// SetMode switches the entry grouping. Controller state is untouched.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Mode returns the current entry grouping.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Toggle flips a participant's expansion state.
func (s *Session) Toggle(participant model.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expanded[participant]; ok {
		delete(s.expanded, participant)
		return
	}
	s.expanded[participant] = struct{}{}
}

// ExpandAll expands the given participants.
func (s *Session) ExpandAll(ids []model.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded = make(map[model.ParticipantID]struct{}, len(ids))
	for _, id := range ids {
		s.expanded[id] = struct{}{}
	}
}

// CollapseAll collapses every participant.
func (s *Session) CollapseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded = make(map[model.ParticipantID]struct{})
}

// IsExpanded reports a participant's expansion state.
func (s *Session) IsExpanded(participant model.ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.expanded[participant]
	return ok
}

// Close cancels pending debounce timers. In-flight saves drain through the
// workers.
func (s *Session) Close() {
	s.fields.CancelAll()
}
