// Package simulator drives the record-entry pipeline the way proctors do:
// partial keystrokes per field, debounce settling, concurrent saves. It
// exercises the real controllers, queue, and workers against a configured
// backend, and reports what reached the wire.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/peakfit/relay/internal/adapters/mq/queue"
	"github.com/peakfit/relay/internal/adapters/mq/worker"
	"github.com/peakfit/relay/internal/adapters/rest"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/internal/fieldsave"
	"github.com/peakfit/relay/pkg/logger"
)

// Config holds one simulation run's parameters.
type Config struct {
	BaseURL      string        // backend of record
	Credential   string        // bearer credential
	Date         string        // measured-at date
	Participants int           // simulated roster size
	Metrics      int           // metric types per participant
	Keystrokes   int           // partial keystrokes per field
	Debounce     time.Duration // settle period (shortened for runs)
	Workers      int           // persistence workers
	Timeout      time.Duration // HTTP timeout
	Seed         int64         // value generator seed
}

// Stats summarizes a run.
type Stats struct {
	Keystrokes     int64
	SavesIssued    int64
	SavesSucceeded int64
	SavesFailed    int64
	Duration       time.Duration
}

// Run executes one simulation.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if cfg.Participants <= 0 || cfg.Metrics <= 0 {
		return Stats{}, fmt.Errorf("participants and metrics must be positive")
	}
	if cfg.Keystrokes <= 0 {
		cfg.Keystrokes = 3
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	log := logger.Get().Named("simulator")
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible values

	client := rest.NewClient(cfg.BaseURL,
		rest.WithCredential(cfg.Credential),
		rest.WithTimeout(cfg.Timeout),
	)
	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.Participants * cfg.Metrics))

	var stats Stats
	var issued, succeeded, failed atomic.Int64

	manager := fieldsave.NewManager(cfg.Date, q, fieldsave.WithDebounce(cfg.Debounce))
	sink := worker.SinkFunc(func(res worker.Result) {
		if res.Err != nil {
			failed.Add(1)
		} else {
			succeeded.Add(1)
		}
		manager.SaveCompleted(res)
	})
	pool := worker.NewPool(cfg.Workers, q, client, sink)
	pool.Start(ctx)

	start := time.Now()
	for p := 0; p < cfg.Participants; p++ {
		for m := 0; m < cfg.Metrics; m++ {
			key := model.FieldKey{
				Participant:  model.StudentID(int64(p + 1)),
				MetricTypeID: int64(m + 1),
			}
			c := manager.Controller(key)
			value := fmt.Sprintf("%.1f", 100+rng.Float64()*200)
			// Type the value the way a person does: a prefix at a time.
			for i := 1; i <= cfg.Keystrokes; i++ {
				cut := len(value) * i / cfg.Keystrokes
				if cut == 0 {
					cut = 1
				}
				c.Keystroke(value[:cut])
				stats.Keystrokes++
			}
			issued.Add(1)
		}
	}

	// Let every field settle and its save drain.
	settle := cfg.Debounce + cfg.Timeout
	select {
	case <-ctx.Done():
	case <-time.After(settle):
	}

	if err := pool.Shutdown(ctx); err != nil {
		log.Warn(ctx, "pool shutdown", logger.Error(err))
	}

	stats.SavesIssued = issued.Load()
	stats.SavesSucceeded = succeeded.Load()
	stats.SavesFailed = failed.Load()
	stats.Duration = time.Since(start)

	log.Info(ctx, "simulation complete",
		logger.Int64("keystrokes", stats.Keystrokes),
		logger.Int64("saves_issued", stats.SavesIssued),
		logger.Int64("saves_succeeded", stats.SavesSucceeded),
		logger.Int64("saves_failed", stats.SavesFailed),
	)
	return stats, nil
}
