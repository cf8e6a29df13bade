// Package fieldsave runs the per-field debounce and save state machine.
//
// One controller exists per (participant, metric) field. Keystrokes restart
// the debounce timer; a settled period dispatches exactly one save job.
// In-flight saves are never canceled; completions carry the generation of
// the keystroke that produced them and are discarded when a newer value has
// superseded that generation, so a stale success can never mark a newer
// unsent value as saved.
package fieldsave

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peakfit/relay/internal/adapters/mq/queue"
	"github.com/peakfit/relay/internal/adapters/mq/worker"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/pkg/metrics"
)

// Status of one field's save cycle.
type Status int

// Field statuses.
const (
	StatusIdle Status = iota
	StatusDebouncing
	StatusSaving
	StatusSaved
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDebouncing:
		return "debouncing"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// DefaultDebounce is the settle period between the last keystroke and the
// save dispatch.
const DefaultDebounce = 500 * time.Millisecond

// Dispatcher accepts settled save jobs. Implemented by the save-job queue.
type Dispatcher interface {
	Enqueue(ctx context.Context, job queue.SaveJob) bool
}

// Controller is the state machine for one field.
type Controller struct {
	key        model.FieldKey
	measuredAt string
	sessionID  int64
	debounce   time.Duration
	dispatch   Dispatcher

	mu         sync.Mutex
	raw        string
	value      float64
	numeric    bool
	status     Status
	generation uint64
	timer      *time.Timer
}

func newController(key model.FieldKey, measuredAt string, sessionID int64, debounce time.Duration, dispatch Dispatcher) *Controller {
	return &Controller{
		key:        key,
		measuredAt: measuredAt,
		sessionID:  sessionID,
		debounce:   debounce,
		dispatch:   dispatch,
		status:     StatusIdle,
	}
}

// Keystroke records a new raw value. Numeric values (re)start the debounce
// timer; empty or non-numeric input cancels any pending dispatch and is
// skipped silently, since it is an incomplete entry rather than a failure.
// Either way the generation advances so responses for superseded values
// cannot touch status.
func (c *Controller) Keystroke(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.raw = raw
	c.generation++
	gen := c.generation

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if strings.TrimSpace(raw) == "" || err != nil {
		c.numeric = false
		c.status = StatusIdle
		metrics.RecordInputSkipped()
		return
	}

	c.value = v
	c.numeric = true
	c.status = StatusDebouncing
	c.timer = time.AfterFunc(c.debounce, func() { c.settle(gen) })
}

// Retry re-enters the debounce cycle for a field left in the error state.
// No-op otherwise.
func (c *Controller) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusError || !c.numeric {
		return
	}
	c.generation++
	gen := c.generation
	c.status = StatusDebouncing
	c.timer = time.AfterFunc(c.debounce, func() { c.settle(gen) })
}

// settle fires when a debounce period ends without a newer keystroke. It
// dispatches exactly one save job for the settled value.
func (c *Controller) settle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		// A keystroke raced the timer; its own timer owns the next save.
		return
	}
	c.timer = nil

	job := queue.SaveJob{
		Token:      uuid.New(),
		Key:        c.key,
		Generation: gen,
		Value:      c.value,
		MeasuredAt: c.measuredAt,
		SessionID:  c.sessionID,
	}
	if !c.dispatch.Enqueue(context.Background(), job) {
		// Queue full or closed: surface as a save failure so the value
		// stays visibly unsaved.
		c.status = StatusError
		metrics.RecordSaveFailure()
		return
	}
	c.status = StatusSaving
	metrics.RecordSaveIssued()
}

// Complete applies a save outcome. Outcomes for superseded generations are
// discarded: the displayed state must reflect the most recently issued
// value, not the most recently completed request.
func (c *Controller) Complete(res worker.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Job.Generation != c.generation {
		metrics.RecordStaleResponse()
		return
	}
	if res.Err != nil {
		c.status = StatusError
		metrics.RecordSaveFailure()
		return
	}
	c.status = StatusSaved
	metrics.RecordSaveSuccess()
}

// seed installs a prefetched value as already saved, without dispatching.
// A field the user has already touched keeps its state; the edit wins over
// the prefetch.
func (c *Controller) seed(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusIdle {
		return
	}
	c.raw = raw
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		c.value = v
		c.numeric = true
	}
	c.generation++
	c.status = StatusSaved
}

// cancel stops any pending timer. In-flight saves drain on their own;
// their completions land against a bumped generation and are dropped.
func (c *Controller) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	if c.status == StatusDebouncing {
		c.status = StatusIdle
	}
}

// View is a render snapshot of one field.
type View struct {
	Value   string
	Numeric bool
	Status  Status
}

// View returns the field's current value and status.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{Value: c.raw, Numeric: c.numeric, Status: c.status}
}

// Value returns the parsed numeric value, if any.
func (c *Controller) Value() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.numeric
}
