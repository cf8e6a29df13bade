package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/peakfit/relay/internal/domain/model"
)

// Table authoring errors.
var (
	ErrNoRanges       = errors.New("score table has no ranges")
	ErrDuplicateScore = errors.New("duplicate score within table")
)

var validate = validator.New()

// ValidateTable checks a table's structure and its range partitioning.
// Gaps and overlaps are reported per gender so authoring mistakes surface
// at configuration time instead of as missing scores during entry. A gap is
// an error here even though Resolve tolerates it at runtime.
func ValidateTable(t *ScoreTable) error {
	if t == nil {
		return errors.New("score table is nil")
	}
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("score table %d: %w", t.MetricTypeID, err)
	}
	if len(t.Ranges) == 0 {
		return fmt.Errorf("score table %d: %w", t.MetricTypeID, ErrNoRanges)
	}
	seen := make(map[int]bool, len(t.Ranges))
	for _, r := range t.Ranges {
		if seen[r.Score] {
			return fmt.Errorf("score table %d: score %d: %w", t.MetricTypeID, r.Score, ErrDuplicateScore)
		}
		seen[r.Score] = true
	}
	for _, g := range []model.Gender{model.Male, model.Female} {
		if err := checkPartition(t, g); err != nil {
			return fmt.Errorf("score table %d (%s): %w", t.MetricTypeID, g, err)
		}
	}
	return nil
}

// boundedRange is one gender's view of a range with both bounds resolved.
type boundedRange struct {
	score    int
	min, max *float64
}

// checkPartition verifies that a gender's finite ranges tile the value
// domain on the table's decimal step, with exactly one open-ended range on
// the favorable side.
func checkPartition(t *ScoreTable, gender model.Gender) error {
	rs := make([]boundedRange, 0, len(t.Ranges))
	open := 0
	for _, r := range t.Ranges {
		minBound, maxBound := r.bounds(gender)
		if minBound == nil && maxBound == nil {
			return fmt.Errorf("range for score %d has no bounds", r.Score)
		}
		if minBound == nil || maxBound == nil {
			open++
		}
		rs = append(rs, boundedRange{score: r.Score, min: minBound, max: maxBound})
	}
	if open != 1 {
		return fmt.Errorf("expected exactly one open-ended range, found %d", open)
	}

	// Order by the finite lower edge; the lower-open range sorts first.
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].min == nil {
			return true
		}
		if rs[j].min == nil {
			return false
		}
		return *rs[i].min < *rs[j].min
	})

	step := t.DecimalStep()
	for i := 1; i < len(rs); i++ {
		prev, cur := rs[i-1], rs[i]
		if prev.max == nil || cur.min == nil {
			continue // open side, nothing to stitch
		}
		gap := *cur.min - *prev.max
		if gap > step*1.5 {
			return fmt.Errorf("gap between %g and %g", *prev.max, *cur.min)
		}
		if gap < step*0.5 {
			return fmt.Errorf("overlap between %g and %g", *prev.max, *cur.min)
		}
	}
	return nil
}
