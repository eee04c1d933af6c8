// Package shutdown coordinates teardown of shared resources when a batch
// job finishes or is interrupted mid-run.
package shutdown

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tupinet/billing-engine/internal/domain/ports"
)

type component struct {
	name string
	fn   func(context.Context) error
}

// Manager closes registered components in reverse registration order, so a
// dependency outlives everything built on top of it. Register the database
// pool first and the metrics server last.
type Manager struct {
	logger  ports.Logger
	timeout time.Duration

	mu         sync.Mutex
	components []component
}

// NewManager creates a shutdown manager. timeout bounds the whole teardown.
func NewManager(logger ports.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a teardown step. Steps run in reverse registration order.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, fn: fn})
}

// RegisterCloser registers a component with a plain Close method, such as a
// pgxpool.Pool.
func (m *Manager) RegisterCloser(name string, closer interface{ Close() }) {
	m.Register(name, func(context.Context) error {
		closer.Close()
		return nil
	})
}

// Close tears everything down. Errors are logged, not returned: a batch job
// exiting must release whatever it still can.
func (m *Manager) Close() {
	m.mu.Lock()
	components := make([]component, len(m.components))
	copy(components, m.components)
	m.components = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		start := time.Now()
		if err := c.fn(ctx); err != nil {
			m.logger.Error("component shutdown failed",
				ports.String("component", c.name),
				ports.Err(err),
			)
			continue
		}
		m.logger.Debug("component closed",
			ports.String("component", c.name),
			ports.String("elapsed", time.Since(start).String()),
		)
	}
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM, so an
// interrupted import or renewal run stops at the next transaction boundary
// instead of being killed inside one.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
