// Package app wires the agent's components together: REST client, save
// pipeline, sync channel, and roster projection.
package app

import (
	"context"
	"fmt"
	"runtime"
	stdsync "sync"
	"time"

	"github.com/peakfit/relay/internal/adapters/mq/queue"
	"github.com/peakfit/relay/internal/adapters/mq/worker"
	"github.com/peakfit/relay/internal/adapters/rest"
	syncchan "github.com/peakfit/relay/internal/adapters/sync"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/internal/domain/scoring"
	"github.com/peakfit/relay/internal/fieldsave"
	"github.com/peakfit/relay/internal/roster"
	"github.com/peakfit/relay/internal/session"
	"github.com/peakfit/relay/pkg/logger"
)

// Service is the composition root for one device agent.
type Service struct {
	// Configuration
	apiBaseURL     string
	syncURL        string
	credential     string
	debounce       time.Duration
	queueSize      int
	workerCount    int
	syncMaxRetries int
	syncRetryDelay time.Duration
	requestTimeout time.Duration

	// Components
	client     *rest.Client
	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	channel    *syncchan.Channel
	projection *roster.Projection

	// Active sessions receive save completions fanned out from the pool.
	mu       stdsync.Mutex
	sessions map[*session.Session]struct{}
	tables   map[int64]*scoring.ScoreTable
	started  bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithAPIBaseURL sets the backend-of-record base URL.
func WithAPIBaseURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.apiBaseURL = u
		}
	}
}

// WithSyncURL sets the academy event-channel endpoint.
func WithSyncURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.syncURL = u
		}
	}
}

// WithCredential injects the academy credential. Empty leaves the sync
// channel off.
func WithCredential(token string) Option {
	return func(s *Service) {
		s.credential = token
	}
}

// WithDebounce sets the field-save settle period.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithQueueSize bounds the save-job queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithWorkerCount sets the number of persistence workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithSyncRetries configures the reconnection ceiling and delay.
func WithSyncRetries(maxRetries int, delay time.Duration) Option {
	return func(s *Service) {
		if maxRetries > 0 {
			s.syncMaxRetries = maxRetries
		}
		if delay > 0 {
			s.syncRetryDelay = delay
		}
	}
}

// WithRequestTimeout bounds each backend HTTP call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// New creates a Service with the given options.
func New(opts ...Option) *Service {
	s := &Service{
		debounce:       fieldsave.DefaultDebounce,
		queueSize:      4096,
		workerCount:    runtime.NumCPU(),
		syncMaxRetries: 5,
		syncRetryDelay: time.Second,
		requestTimeout: 10 * time.Second,
		sessions:       make(map[*session.Session]struct{}),
		tables:         make(map[int64]*scoring.ScoreTable),
		logger:         logger.Get().Named("app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and brings the agent up.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.client = rest.NewClient(s.apiBaseURL,
		rest.WithCredential(s.credential),
		rest.WithTimeout(s.requestTimeout),
	)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.client, worker.SinkFunc(s.fanOut))
	s.projection = roster.NewProjection(s.client)
	s.channel = syncchan.NewChannel(s.syncURL, s.credential, s.onSyncEvent(ctx),
		syncchan.WithMaxRetries(s.syncMaxRetries),
		syncchan.WithRetryDelay(s.syncRetryDelay),
	)

	s.pool.Start(ctx)
	if err := s.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connect sync channel: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "agent started",
		logger.String("api", s.apiBaseURL),
		logger.Int("workers", s.workerCount))
	return nil
}

// Stop tears the agent down: sync channel first, then the save pipeline so
// queued jobs drain.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	sessions := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	s.channel.Disconnect()
	for _, sess := range sessions {
		sess.Close()
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown worker pool: %w", err)
	}
	return nil
}

// Projection exposes the roster projection for read paths.
func (s *Service) Projection() *roster.Projection { return s.projection }

// Channel exposes the sync channel, mainly for state observation.
func (s *Service) Channel() *syncchan.Channel { return s.channel }

// onSyncEvent forwards channel events into the projection.
func (s *Service) onSyncEvent(ctx context.Context) syncchan.EventHandler {
	return func(ev model.SyncEvent) {
		s.projection.HandleEvent(ctx, ev)
	}
}

// fanOut routes a save completion to every active session; each manager
// drops completions outside its date/session scope.
func (s *Service) fanOut(res worker.Result) {
	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Fields().SaveCompleted(res)
	}
}

// SessionConfig scopes a new record-entry session.
type SessionConfig struct {
	Date      string
	Slot      model.TimeSlot
	ClassNum  int   // 0 means the whole slot
	SessionID int64 // non-zero scopes saves to a monthly-test session
}

// NewSession builds a record-entry session for a roster slice: loads the
// date's snapshot if needed, resolves the roster, fetches score tables,
// and prefetches existing entries.
func (s *Service) NewSession(ctx context.Context, cfg SessionConfig) (*session.Session, error) {
	if _, ok := s.projection.Snapshot(cfg.Date); !ok {
		if _, err := s.projection.Load(ctx, cfg.Date); err != nil {
			return nil, fmt.Errorf("load assignments: %w", err)
		}
	}

	var (
		participants []model.Participant
		err          error
	)
	if cfg.ClassNum != 0 {
		participants, err = s.projection.ClassRoster(cfg.Date, cfg.Slot, cfg.ClassNum)
	} else {
		participants, err = s.projection.RosterFor(cfg.Date, cfg.Slot)
	}
	if err != nil {
		return nil, err
	}

	metricTypes, err := s.client.MetricTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load metric types: %w", err)
	}
	tables := s.loadTables(ctx, metricTypes)

	managerOpts := []fieldsave.ManagerOption{fieldsave.WithDebounce(s.debounce)}
	if cfg.SessionID != 0 {
		managerOpts = append(managerOpts, fieldsave.WithSessionID(cfg.SessionID))
	}
	fields := fieldsave.NewManager(cfg.Date, s.queue, managerOpts...)

	sess := session.New(cfg.Date, participants, metricTypes, tables, fields, s.client)
	sess.Prefetch(ctx)

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	return sess, nil
}

// CloseSession cancels a session's pending work and stops routing
// completions to it.
func (s *Service) CloseSession(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	sess.Close()
}

// loadTables fetches score tables per metric type, caching across
// sessions. A metric with no table, or a table that fails validation, is
// entered as nil: its fields simply do not score.
func (s *Service) loadTables(ctx context.Context, metricTypes []model.MetricType) map[int64]*scoring.ScoreTable {
	out := make(map[int64]*scoring.ScoreTable, len(metricTypes))
	for _, mt := range metricTypes {
		s.mu.Lock()
		cached, ok := s.tables[mt.ID]
		s.mu.Unlock()
		if ok {
			out[mt.ID] = cached
			continue
		}

		table, err := s.client.ScoreTableByType(ctx, mt.ID)
		if err != nil {
			s.logger.Warn(ctx, "score table unavailable",
				logger.Int64("metric_type", mt.ID),
				logger.Error(err))
			table = nil
		} else if table != nil {
			if err := scoring.ValidateTable(table); err != nil {
				s.logger.Warn(ctx, "score table failed validation; scoring disabled for metric",
					logger.Int64("metric_type", mt.ID),
					logger.Error(err))
				table = nil
			}
		}

		s.mu.Lock()
		s.tables[mt.ID] = table
		s.mu.Unlock()
		out[mt.ID] = table
	}
	return out
}
