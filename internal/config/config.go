// Package config defines agent configuration and loading.
//
// Conventions:
// - Provide New() defaults and Load(ctx) layering (defaults -> file -> env).
// - External errors are wrapped via this package's sentinel kinds.
package config

import "runtime"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the metrics/health HTTP listen address.
	Addr string `koanf:"addr" validate:"required"`

	// APIBaseURL is the backend-of-record base URL.
	APIBaseURL string `koanf:"api_base_url" validate:"required,url"`

	// SyncURL is the websocket endpoint of the academy event channel.
	SyncURL string `koanf:"sync_url" validate:"required"`

	// Credential is the opaque academy credential presented on the API
	// and when joining the sync room. Empty means sync stays off.
	Credential string `koanf:"credential"`

	// DebounceMS is the field-save settle period in milliseconds.
	DebounceMS int `koanf:"debounce_ms" validate:"gt=0"`

	// SaveQueueSize bounds the in-memory save-job queue.
	SaveQueueSize int `koanf:"save_queue_size" validate:"gt=0"`

	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// SyncMaxRetries caps reconnection attempts before the channel gives
	// up.
	SyncMaxRetries int `koanf:"sync_max_retries" validate:"gt=0"`

	// SyncRetryDelayMS is the fixed delay between reconnection attempts.
	SyncRetryDelayMS int `koanf:"sync_retry_delay_ms" validate:"gt=0"`

	// RequestTimeoutMS bounds each backend HTTP call.
	RequestTimeoutMS int `koanf:"request_timeout_ms" validate:"gt=0"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9330",
		APIBaseURL:       "http://localhost:8330/peak",
		SyncURL:          "ws://localhost:8330/sync",
		DebounceMS:       500,
		SaveQueueSize:    4096,
		WorkerCount:      runtime.NumCPU(),
		SyncMaxRetries:   5,
		SyncRetryDelayMS: 1000,
		RequestTimeoutMS: 10_000,
	}
}
