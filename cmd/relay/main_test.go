package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/peakfit/relay/internal/app"
	"github.com/peakfit/relay/internal/config"
	"github.com/peakfit/relay/pkg/logger"
	"github.com/peakfit/relay/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainComponents(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	convey.Convey("Given the agent's main components", t, func() {
		convey.Convey("When loading configuration from the environment", func() {
			t.Setenv("RELAY_ADDR", ":9331")
			t.Setenv("RELAY_WORKER_COUNT", "2")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9331")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When creating the service from configuration", func() {
			cfg := config.New()
			svc := app.New(
				app.WithAPIBaseURL(cfg.APIBaseURL),
				app.WithSyncURL(cfg.SyncURL),
				app.WithDebounce(time.Duration(cfg.DebounceMS)*time.Millisecond),
				app.WithQueueSize(cfg.SaveQueueSize),
				app.WithWorkerCount(cfg.WorkerCount),
				app.WithSyncRetries(cfg.SyncMaxRetries, time.Duration(cfg.SyncRetryDelayMS)*time.Millisecond),
				app.WithRequestTimeout(time.Duration(cfg.RequestTimeoutMS)*time.Millisecond),
			)
			convey.So(svc, convey.ShouldNotBeNil)
		})

		convey.Convey("When wiring the observability mux", func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
			convey.So(mux, convey.ShouldNotBeNil)
		})
	})
}
