// Command simulate exercises the record-entry pipeline against a backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peakfit/relay/internal/simulator"
	"github.com/peakfit/relay/pkg/logger"
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:8330/peak", "Base URL of the backend of record")
		credential   = flag.String("credential", "", "Bearer credential")
		date         = flag.String("date", time.Now().Format("2006-01-02"), "Measured-at date")
		participants = flag.Int("participants", 20, "Simulated roster size")
		metrics      = flag.Int("metrics", 4, "Metric types per participant")
		keystrokes   = flag.Int("keystrokes", 3, "Partial keystrokes per field")
		debounce     = flag.Duration("debounce", 50*time.Millisecond, "Field settle period")
		workers      = flag.Int("workers", 4, "Persistence workers")
		timeout      = flag.Duration("timeout", 10*time.Second, "HTTP request timeout")
		seed         = flag.Int64("seed", 42, "Value generator seed")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := simulator.Run(ctx, simulator.Config{
		BaseURL:      *baseURL,
		Credential:   *credential,
		Date:         *date,
		Participants: *participants,
		Metrics:      *metrics,
		Keystrokes:   *keystrokes,
		Debounce:     *debounce,
		Workers:      *workers,
		Timeout:      *timeout,
		Seed:         *seed,
	})
	if err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	fmt.Printf("keystrokes:      %d\n", stats.Keystrokes)
	fmt.Printf("saves issued:    %d\n", stats.SavesIssued)
	fmt.Printf("saves succeeded: %d\n", stats.SavesSucceeded)
	fmt.Printf("saves failed:    %d\n", stats.SavesFailed)
	fmt.Printf("duration:        %s\n", stats.Duration)
}
