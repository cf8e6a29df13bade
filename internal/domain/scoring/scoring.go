// Package scoring resolves raw measured values into discrete scores using
// administrator-configured range tables.
package scoring

import (
	"math"

	"github.com/peakfit/relay/internal/domain/model"
)

// Direction states whether larger or smaller measured values are better
// for a metric.
type Direction string

// Directions.
const (
	HigherIsBetter Direction = "higher"
	LowerIsBetter  Direction = "lower"
)

// ScoreRange awards one score to a band of measured values. Bounds are
// per gender and nullable; the range holding the table's maximum score is
// open-ended on the favorable side.
type ScoreRange struct {
	Score     int      `json:"score"`
	MaleMin   *float64 `json:"male_min"`
	MaleMax   *float64 `json:"male_max"`
	FemaleMin *float64 `json:"female_min"`
	FemaleMax *float64 `json:"female_max"`
}

// bounds returns the min/max pair for the given gender.
func (r ScoreRange) bounds(gender model.Gender) (minBound, maxBound *float64) {
	if gender == model.Male {
		return r.MaleMin, r.MaleMax
	}
	return r.FemaleMin, r.FemaleMax
}

// ScoreTable maps raw values of one metric type to scores. Ranges are kept
// in authored order; authoring must guarantee at most one range matches any
// value. Read-only on the scoring path.
type ScoreTable struct {
	MetricTypeID  int64        `json:"record_type_id" validate:"required"`
	Name          string       `json:"name"`
	DecimalPlaces int          `json:"decimal_places" validate:"gte=0,lte=2"`
	Direction     Direction    `json:"direction" validate:"required,oneof=higher lower"`
	Ranges        []ScoreRange `json:"ranges"`
}

// DecimalStep is the authoring granularity of the table's value domain:
// 10^-decimalPlaces.
func (t *ScoreTable) DecimalStep() float64 {
	return math.Pow(10, -float64(t.DecimalPlaces))
}

// PerfectScore returns the highest score the table awards.
func (t *ScoreTable) PerfectScore() (int, bool) {
	if t == nil || len(t.Ranges) == 0 {
		return 0, false
	}
	best := t.Ranges[0].Score
	for _, r := range t.Ranges[1:] {
		if r.Score > best {
			best = r.Score
		}
	}
	return best, true
}

// Resolver computes a score from a measured value. Implementations must be
// pure so callers can resolve on every keystroke without debounce.
type Resolver interface {
	// Resolve returns the awarded score and true, or 0 and false when no
	// range matches, the table is absent or empty, or value is not finite.
	Resolve(value float64, gender model.Gender, table *ScoreTable) (int, bool)
}

// TableResolver implements Resolver over range tables.
type TableResolver struct{}

// NewTableResolver creates a resolver.
func NewTableResolver() *TableResolver {
	return &TableResolver{}
}

// Resolve walks the table's ranges in authored order and awards the first
// matching range's score. Finite bounds are inclusive on both sides; a
// missing bound leaves that side open. A value matching no range yields no
// score: gaps are an authoring concern, never papered over here.
func (*TableResolver) Resolve(value float64, gender model.Gender, table *ScoreTable) (int, bool) {
	if table == nil || len(table.Ranges) == 0 {
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	for _, r := range table.Ranges {
		minBound, maxBound := r.bounds(gender)
		switch {
		case minBound != nil && maxBound != nil:
			if value >= *minBound && value <= *maxBound {
				return r.Score, true
			}
		case minBound != nil:
			if value >= *minBound {
				return r.Score, true
			}
		case maxBound != nil:
			if value <= *maxBound {
				return r.Score, true
			}
		}
	}
	return 0, false
}
