package fieldsave

import (
	"sync"
	"time"

	"github.com/peakfit/relay/internal/adapters/mq/worker"
	"github.com/peakfit/relay/internal/domain/model"
)

// Manager owns the controllers for one roster and date. It is the sink for
// worker completions, routing each outcome to the controller whose field
// key it carries.
type Manager struct {
	measuredAt string
	sessionID  int64
	debounce   time.Duration
	dispatch   Dispatcher

	mu          sync.Mutex
	controllers map[model.FieldKey]*Controller
}

// ManagerOption applies a configuration option to the Manager.
type ManagerOption func(*Manager)

// WithDebounce sets the settle period for all controllers.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithSessionID scopes saves to a monthly-test session instead of the
// daily records endpoint.
func WithSessionID(id int64) ManagerOption {
	return func(m *Manager) {
		m.sessionID = id
	}
}

// NewManager creates a manager for the given date.
func NewManager(measuredAt string, dispatch Dispatcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		measuredAt:  measuredAt,
		debounce:    DefaultDebounce,
		dispatch:    dispatch,
		controllers: make(map[model.FieldKey]*Controller),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Controller returns the controller for a field, creating it on first use.
func (m *Manager) Controller(key model.FieldKey) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.controllers[key]
	if !ok {
		c = newController(key, m.measuredAt, m.sessionID, m.debounce, m.dispatch)
		m.controllers[key] = c
	}
	return c
}

// Peek returns the controller for a field if one exists.
func (m *Manager) Peek(key model.FieldKey) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[key]
	return c, ok
}

// Seed installs a prefetched value as already saved.
func (m *Manager) Seed(key model.FieldKey, raw string) {
	m.Controller(key).seed(raw)
}

// SaveCompleted implements worker.Sink. Completions scoped to another date
// or test session, or for fields whose controller is gone (navigated
// away), are dropped.
func (m *Manager) SaveCompleted(res worker.Result) {
	if res.Job.MeasuredAt != m.measuredAt || res.Job.SessionID != m.sessionID {
		return
	}
	m.mu.Lock()
	c, ok := m.controllers[res.Job.Key]
	m.mu.Unlock()
	if !ok {
		return
	}
	c.Complete(res)
}

// CancelAll stops every pending debounce timer. Called on unmount; saves
// already in flight drain through the workers and their completions are
// discarded as stale.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.controllers {
		c.cancel()
	}
}

// Keys returns the fields that have controllers.
func (m *Manager) Keys() []model.FieldKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]model.FieldKey, 0, len(m.controllers))
	for k := range m.controllers {
		keys = append(keys, k)
	}
	return keys
}
