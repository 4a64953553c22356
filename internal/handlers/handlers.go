// Package handlers consumes pipeline lifecycle events for observability:
// run-scoped log enrichment, live progress counters, and generation
// metrics points. Persistence is the worker's job, not this package's.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vantagecv/scenekit/v2/internal/dispatcher"
	"github.com/vantagecv/scenekit/v2/internal/influx"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/storage"
)

// RunContext holds the active run and frame progress. It doubles as the
// logging context provider so every log line carries the run name and
// current frame index.
type RunContext struct {
	mu         sync.RWMutex
	info       *storage.RunInfo
	frameIndex int
}

// NewRunContext creates an empty RunContext.
func NewRunContext() *RunContext {
	return &RunContext{}
}

// SetRun installs the active run and resets frame progress.
func (rc *RunContext) SetRun(info *storage.RunInfo) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.info = info
	rc.frameIndex = 0
}

// Run returns the active run, or nil if none is set.
func (rc *RunContext) Run() *storage.RunInfo {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.info
}

// SetFrameIndex records the frame currently being attempted.
func (rc *RunContext) SetFrameIndex(idx int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.frameIndex = idx
}

// FrameIndex returns the frame currently being attempted.
func (rc *RunContext) FrameIndex() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.frameIndex
}

// Attrs implements logging.ContextProvider.
func (rc *RunContext) Attrs() []slog.Attr {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	if rc.info == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("run", rc.info.Name),
		slog.Int("frameIndex", rc.frameIndex),
	}
}

// Stats is a snapshot of live run progress.
type Stats struct {
	Accepted         int
	Rejected         int
	Failures         int
	RejectionReasons map[string]int
	LastFailure      string
}

// Dependencies holds all dependencies needed by the handler service.
type Dependencies struct {
	LogManager *logging.SlogManager
	Influx     *influx.Manager // nil disables metrics points
}

// Service tracks run progress from dispatcher events.
type Service struct {
	deps Dependencies
	ctx  *RunContext

	mu               sync.Mutex
	accepted         int
	rejected         int
	failures         int
	rejectionReasons map[string]int
	lastFailure      string
}

// NewService creates a new handler service and installs the run context
// as the log manager's context provider.
func NewService(deps Dependencies, ctx *RunContext) *Service {
	s := &Service{
		deps:             deps,
		ctx:              ctx,
		rejectionReasons: make(map[string]int),
	}
	if deps.LogManager != nil {
		deps.LogManager.SetContextProvider(ctx.Attrs)
	}
	return s
}

// RunContext returns the run context shared with the pipeline.
func (s *Service) RunContext() *RunContext {
	return s.ctx
}

// Stats returns a snapshot of live counters for the current run.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	reasons := make(map[string]int, len(s.rejectionReasons))
	for k, v := range s.rejectionReasons {
		reasons[k] = v
	}
	return Stats{
		Accepted:         s.accepted,
		Rejected:         s.rejected,
		Failures:         s.failures,
		RejectionReasons: reasons,
		LastFailure:      s.lastFailure,
	}
}

// RegisterHandlers registers the observability handlers with the
// dispatcher. Run events are synchronous; per-frame events are buffered
// so metrics never stall the pipeline.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(":RUN:START:", s.handleRunStart, dispatcher.Logged())
	d.Register(":RUN:END:", s.handleRunEnd, dispatcher.Logged())
	d.Register(":FRAME:ACCEPT:", s.handleFrame, dispatcher.Buffered(1000))
	d.Register(":FRAME:REJECT:", s.handleFrame, dispatcher.Buffered(1000))
	d.Register(":FAILURE:", s.handleFailure, dispatcher.Buffered(1000))
}

func (s *Service) handleRunStart(e dispatcher.Event) (any, error) {
	info, ok := e.Payload.(*storage.RunInfo)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload type %T", e.Name, e.Payload)
	}

	s.ctx.SetRun(info)

	s.mu.Lock()
	s.accepted = 0
	s.rejected = 0
	s.failures = 0
	s.rejectionReasons = make(map[string]int)
	s.lastFailure = ""
	s.mu.Unlock()

	s.deps.LogManager.Logger().Info("Run started",
		"seed", info.Seed,
		"targetFrames", info.TargetFrames,
		"outputDir", info.OutputDir)
	return nil, nil
}

func (s *Service) handleRunEnd(e dispatcher.Event) (any, error) {
	summary, ok := e.Payload.(*storage.RunSummary)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload type %T", e.Name, e.Payload)
	}

	s.deps.LogManager.Logger().Info("Run ended",
		"status", summary.Status,
		"framesGenerated", summary.FramesGenerated,
		"framesFailed", summary.FramesFailed,
		"annotations", summary.Annotations,
		"avgFrameMs", summary.AvgFrameMillis)

	if s.deps.Influx != nil {
		info := s.ctx.Run()
		if info != nil {
			point := influx.RunSummaryPoint(info, summary)
			if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketRuns, point); err != nil {
				s.deps.LogManager.Logger().Warn("Failed to write run summary point", "error", err)
			}
		}
	}
	return nil, nil
}

func (s *Service) handleFrame(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(*storage.FrameRecord)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload type %T", e.Name, e.Payload)
	}

	s.mu.Lock()
	if rec.Accepted() {
		s.accepted++
	} else {
		s.rejected++
		for _, check := range rec.Verdict.FailedChecks() {
			s.rejectionReasons[check]++
		}
	}
	s.mu.Unlock()

	if s.deps.Influx != nil {
		runName := ""
		if info := s.ctx.Run(); info != nil {
			runName = info.Name
		}
		point := influx.FramePoint(runName, rec)
		if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketFrames, point); err != nil {
			s.deps.LogManager.Logger().Warn("Failed to write frame point", "error", err)
		}
	}
	return nil, nil
}

func (s *Service) handleFailure(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(*storage.FailureRecord)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload type %T", e.Name, e.Payload)
	}

	s.mu.Lock()
	s.failures++
	s.lastFailure = rec.Failure.Message
	s.mu.Unlock()

	s.deps.LogManager.Logger().Warn("Stage failure",
		"stage", string(rec.Failure.Kind),
		"reason", rec.Failure.Message,
		"remedy", rec.Failure.Remedy)

	if s.deps.Influx != nil {
		runName := ""
		if info := s.ctx.Run(); info != nil {
			runName = info.Name
		}
		point := influx.FailurePoint(runName, rec)
		if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketFrames, point); err != nil {
			s.deps.LogManager.Logger().Warn("Failed to write failure point", "error", err)
		}
	}
	return nil, nil
}
