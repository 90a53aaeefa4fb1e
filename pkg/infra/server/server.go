package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Closer releases a resource on shutdown.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// Manager starts servers in registration order and stops them in reverse,
// then runs the closers.
type Manager struct {
	shutdownTimeout time.Duration

	mu      sync.Mutex
	servers []Runnable
	closers []Closer
	started bool
	closed  bool
}

// NewManager creates a new server manager.
func NewManager(shutdownTimeout time.Duration) *Manager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &Manager{shutdownTimeout: shutdownTimeout}
}

// AddServer adds a server to the manager.
func (m *Manager) AddServer(server Runnable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = append(m.servers, server)
}

// AddCloser registers fn to run after every server stopped.
func (m *Manager) AddCloser(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, Closer{Name: name, Close: fn})
}

// Start starts all servers. When one fails the already started ones are
// stopped before returning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("server manager already started")
	}
	m.started = true
	servers := append([]Runnable(nil), m.servers...)
	m.mu.Unlock()

	for i, server := range servers {
		if err := server.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = servers[j].Stop(ctx)
			}
			return fmt.Errorf("failed to start server %s: %w", server.Name(), err)
		}
		logger.Infow("Server started", "name", server.Name())
	}
	return nil
}

// Stop stops all servers gracefully, then runs the closers. Closers run
// once, even when the servers were never started.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	var servers []Runnable
	if m.started {
		servers = append(servers, m.servers...)
		m.started = false
	}
	var closers []Closer
	if !m.closed {
		closers = append(closers, m.closers...)
		m.closed = true
	}
	m.mu.Unlock()

	var errs []error
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop server %s: %w", servers[i].Name(), err))
			continue
		}
		logger.Infow("Server stopped", "name", servers[i].Name())
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", closers[i].Name, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Run starts all servers and blocks until ctx is done, then shuts down
// within the configured timeout.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout)
	defer cancel()
	return m.Stop(shutdownCtx)
}
