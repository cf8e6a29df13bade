// Package roster materializes the assignment view both the record-entry UI
// and dashboards read.
//
// The projection is a read-only cache of backend snapshots. Sync events
// never patch state in place: an event for a viewed date triggers a refetch
// of that date's authoritative snapshot and the cached copy is replaced
// wholesale. Applying the same event twice therefore converges on the same
// snapshot, and no client-side locking of nested class trees is needed.
package roster

import (
	"context"
	"sync"

	"github.com/peakfit/relay/internal/domain/dedupe"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/pkg/logger"
	"github.com/peakfit/relay/pkg/metrics"
)

// SnapshotSource fetches authoritative assignment snapshots.
type SnapshotSource interface {
	Assignments(ctx context.Context, date string) (model.AssignmentSnapshot, error)
}

// ChangeListener is notified after a date's snapshot is replaced.
type ChangeListener func(date string)

// Projection holds the latest snapshot per viewed date.
type Projection struct {
	source   SnapshotSource
	inflight dedupe.Marker

	mu        sync.RWMutex
	snapshots map[string]model.AssignmentSnapshot
	pending   map[string]bool

	listener ChangeListener
	logger   logger.Logger
}

// Option applies a configuration option to the Projection.
type Option func(*Projection)

// WithChangeListener registers a callback invoked after refetches.
func WithChangeListener(l ChangeListener) Option {
	return func(p *Projection) {
		p.listener = l
	}
}

// NewProjection creates a projection over the given source.
func NewProjection(source SnapshotSource, opts ...Option) *Projection {
	p := &Projection{
		source:    source,
		inflight:  dedupe.NewInMemoryMarker(),
		snapshots: make(map[string]model.AssignmentSnapshot),
		pending:   make(map[string]bool),
		logger:    logger.Get().Named("roster"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load fetches and caches the snapshot for a date.
func (p *Projection) Load(ctx context.Context, date string) (model.AssignmentSnapshot, error) {
	snap, err := p.source.Assignments(ctx, date)
	if err != nil {
		return model.AssignmentSnapshot{}, err
	}
	p.store(snap)
	return snap, nil
}

// Snapshot returns the cached snapshot for a date.
func (p *Projection) Snapshot(date string) (model.AssignmentSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.snapshots[date]
	return snap, ok
}

// Forget drops a date from the cache; later events for it are ignored.
func (p *Projection) Forget(date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.snapshots, date)
	metrics.UpdateSnapshotsCached(len(p.snapshots))
}

// HandleEvent folds one sync event in. Events for dates not in view are
// dropped; events for viewed dates schedule a refetch. Concurrent events
// for the same date coalesce into the in-flight refetch plus at most one
// follow-up, so a burst of notifications costs two fetches at worst.
func (p *Projection) HandleEvent(ctx context.Context, ev model.SyncEvent) {
	p.mu.RLock()
	_, viewed := p.snapshots[ev.Date]
	p.mu.RUnlock()
	if !viewed {
		return
	}
	p.scheduleRefetch(ctx, ev.Date)
}

// scheduleRefetch starts a refetch for the date, or folds the event into
// the one already running. The marker check and the pending flag are read
// and written under the same lock as the completion path in refetch, so an
// event landing while a refetch finishes either joins the next run or
// leaves its follow-up flag for the finishing one to pick up; it is never
// lost between the two.
func (p *Projection) scheduleRefetch(ctx context.Context, date string) {
	p.mu.Lock()
	if p.inflight.SeenAndRecord(ctx, date) {
		// A refetch is already running; remember that the state moved
		// again underneath it.
		metrics.RecordRosterRefetchCoalesced()
		p.pending[date] = true
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	go p.refetch(ctx, date)
}

func (p *Projection) refetch(ctx context.Context, date string) {
	metrics.RecordRosterRefetch()
	snap, err := p.source.Assignments(ctx, date)
	if err != nil {
		metrics.RecordRosterRefetchError()
		p.logger.Warn(ctx, "refetch failed; keeping cached snapshot",
			logger.String("date", date),
			logger.Error(err))
	} else {
		p.store(snap)
	}
	p.mu.Lock()
	p.inflight.Unrecord(ctx, date)
	again := p.pending[date]
	delete(p.pending, date)
	p.mu.Unlock()
	if again && ctx.Err() == nil {
		p.scheduleRefetch(ctx, date)
	}
}

func (p *Projection) store(snap model.AssignmentSnapshot) {
	p.mu.Lock()
	p.snapshots[snap.Date] = snap
	metrics.UpdateSnapshotsCached(len(p.snapshots))
	p.mu.Unlock()

	if p.listener != nil {
		p.listener(snap.Date)
	}
}
