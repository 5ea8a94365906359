package vidgate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/feitianbubu/vidgate/adapters"
	"github.com/feitianbubu/vidgate/catalog"
	"github.com/feitianbubu/vidgate/config"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers the gateway collectors on reg under namespace.
func WithMetrics(namespace string, reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.metricsNamespace = namespace
		c.metricsRegisterer = reg
	}
}

// WithStore sets the task store. The default is an in-memory store.
func WithStore(s TaskStore) Option {
	return func(c *Client) {
		if s != nil {
			c.store = s
		}
	}
}

// WithCatalog replaces the built-in endpoint catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Client) {
		c.catalog = cat
	}
}

// WithAdapters registers provider adapters. A later adapter for the same
// provider replaces an earlier one.
func WithAdapters(list ...adapters.Adapter) Option {
	return func(c *Client) {
		for _, a := range list {
			if a != nil {
				c.rawAdapters[a.Name()] = a
			}
		}
	}
}

// WithPollSerialization selects how concurrent polls of one task are
// serialized: config.PollSerializationNone, Local or Redis.
func WithPollSerialization(mode string) Option {
	return func(c *Client) {
		if mode != "" {
			c.pollMode = mode
		}
	}
}

// WithLocker sets the lock used by redis poll serialization.
func WithLocker(l Locker) Option {
	return func(c *Client) {
		c.locker = l
	}
}

// WithPollLockTTL bounds how long one poll may hold the task lock.
func WithPollLockTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

// WithPollInterval sets the default WaitForCompletion interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBreaker wraps every adapter in a circuit breaker built from bc.
func WithBreaker(bc config.BreakerConfig) Option {
	return func(c *Client) {
		b := bc
		c.breaker = &b
	}
}

// WithClock overrides time.Now for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}
