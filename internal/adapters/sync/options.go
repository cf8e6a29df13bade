package sync

import (
	"time"

	"github.com/gorilla/websocket"
)

// Option applies a configuration option to the Channel.
type Option func(*Channel)

// WithDialTimeout sets the websocket dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithRetryDelay sets the fixed delay between reconnection attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithMaxRetries sets the reconnection ceiling. Once reached the channel
// stops retrying and stays in the failed state.
func WithMaxRetries(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithDialer substitutes the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) {
		if d != nil {
			c.dialer = d
		}
	}
}
