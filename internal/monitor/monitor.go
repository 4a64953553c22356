// Package monitor periodically reports run progress: live counters from
// the handler service, record stream backlogs, and storage write timing.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/vantagecv/scenekit/v2/internal/channel"
	"github.com/vantagecv/scenekit/v2/internal/handlers"
	"github.com/vantagecv/scenekit/v2/internal/influx"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/internal/worker"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager    *logging.SlogManager
	Handlers      *handlers.Service
	WorkerManager *worker.Manager
	Frames        channel.Receiver[storage.FrameRecord]
	Failures      channel.Receiver[storage.FailureRecord]
	Influx        *influx.Manager // nil disables performance points
	StatusDir     string
	Interval      time.Duration
}

// Status is one progress snapshot, written to status.txt as JSON.
type Status struct {
	Time            time.Time      `json:"time"`
	Run             string         `json:"run"`
	FrameIndex      int            `json:"frameIndex"`
	TargetFrames    int            `json:"targetFrames"`
	Accepted        int            `json:"accepted"`
	Rejected        int            `json:"rejected"`
	Failures        int            `json:"failures"`
	LastFailure     string         `json:"lastFailure,omitempty"`
	FrameBacklog    int            `json:"frameBacklog"`
	FailureBacklog  int            `json:"failureBacklog"`
	LastDBWriteMs   float64        `json:"lastDbWriteMs"`
	RejectionCounts map[string]int `json:"rejectionCounts,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot collects the current progress status.
func (s *Service) Snapshot() Status {
	stats := s.deps.Handlers.Stats()
	ctx := s.deps.Handlers.RunContext()

	status := Status{
		Time:            time.Now(),
		FrameIndex:      ctx.FrameIndex(),
		Accepted:        stats.Accepted,
		Rejected:        stats.Rejected,
		Failures:        stats.Failures,
		LastFailure:     stats.LastFailure,
		RejectionCounts: stats.RejectionReasons,
	}
	if info := ctx.Run(); info != nil {
		status.Run = info.Name
		status.TargetFrames = info.TargetFrames
	}
	if s.deps.Frames != nil {
		status.FrameBacklog = s.deps.Frames.Len()
	}
	if s.deps.Failures != nil {
		status.FailureBacklog = s.deps.Failures.Len()
	}
	if s.deps.WorkerManager != nil {
		status.LastDBWriteMs = float64(s.deps.WorkerManager.GetLastDBWriteDuration().Milliseconds())
	}
	return status
}

// performancePoint builds a generation_performance point from a snapshot.
func performancePoint(status Status) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("progress").
		AddTag("run", status.Run).
		AddField("frame_index", status.FrameIndex).
		AddField("accepted", status.Accepted).
		AddField("rejected", status.Rejected).
		AddField("failures", status.Failures).
		AddField("frame_backlog", status.FrameBacklog).
		AddField("failure_backlog", status.FailureBacklog).
		AddField("last_db_write_ms", status.LastDBWriteMs).
		SetTime(status.Time)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		statusPath := filepath.Join(s.deps.StatusDir, "status.txt")
		statusFile, err := os.Create(statusPath)
		if err != nil {
			logger.Error("Error creating status file", "path", statusPath, "error", err)
		}
		defer func() {
			if statusFile != nil {
				statusFile.Close()
			}
		}()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				status := s.Snapshot()
				if status.Run == "" {
					continue
				}

				logger.Info("Run progress",
					"accepted", status.Accepted,
					"target", status.TargetFrames,
					"rejected", status.Rejected,
					"failures", status.Failures,
					"frameBacklog", status.FrameBacklog)

				if statusFile != nil {
					data, err := json.MarshalIndent(status, "", "  ")
					if err != nil {
						data = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
					}
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					statusFile.Write(append(data, '\n'))
				}

				if s.deps.Influx != nil {
					point := performancePoint(status)
					if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketPerformance, point); err != nil {
						logger.Warn("Failed to write performance point", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
