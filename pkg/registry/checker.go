package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger is the part of Client a Checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the outcome of the last registry check.
type Health struct {
	OK        bool      `json:"ok"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Checker pings the registry periodically and keeps the last result for the
// health endpoint.
type Checker struct {
	client   Pinger
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu   sync.RWMutex
	last Health
}

// NewChecker creates a Checker that pings every interval. Each ping is bounded
// by timeout.
func NewChecker(client Pinger, logger *slog.Logger, interval, timeout time.Duration) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{client: client, logger: logger, interval: interval, timeout: timeout}
}

// Start runs an immediate check then repeats every interval until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check pings once and records the result.
func (c *Checker) Check(ctx context.Context) Health {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	h := Health{OK: true, CheckedAt: time.Now().UTC()}
	if err := c.client.Ping(ctx); err != nil {
		h.OK = false
		h.Error = err.Error()
	}

	c.mu.Lock()
	prev := c.last
	c.last = h
	c.mu.Unlock()

	switch {
	case !h.OK:
		c.logger.Warn("registry unreachable", "error", h.Error)
	case !prev.OK && !prev.CheckedAt.IsZero():
		c.logger.Info("registry reachable again")
	}
	return h
}

// Last returns the most recent result; CheckedAt is zero before the first check.
func (c *Checker) Last() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
