// Package worker drains the pipeline's record streams into the storage
// backend so frame generation never blocks on persistence.
package worker

import (
	"sync"
	"time"

	"github.com/vantagecv/scenekit/v2/internal/channel"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/storage"
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
}

// Manager owns the drain goroutines between the pipeline and the backend
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	wg      sync.WaitGroup
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Start launches one drain goroutine per record stream. The goroutines
// exit when their channel is closed and fully drained; Wait blocks on that.
func (m *Manager) Start(frames channel.Receiver[storage.FrameRecord], failures channel.Receiver[storage.FailureRecord]) {
	m.wg.Add(2)

	go func() {
		defer m.wg.Done()
		for rec := range frames.Receive() {
			if err := m.backend.RecordFrame(&rec); err != nil {
				m.deps.LogManager.Logger().Error("Failed to record frame",
					"frameIndex", rec.Annotation.FrameIndex, "error", err)
			}
		}
	}()

	go func() {
		defer m.wg.Done()
		for rec := range failures.Receive() {
			if err := m.backend.RecordFailure(&rec); err != nil {
				m.deps.LogManager.Logger().Error("Failed to record failure",
					"frameIndex", rec.FrameIndex, "error", err)
			}
		}
	}()
}

// Wait blocks until both record streams are closed and drained.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}
