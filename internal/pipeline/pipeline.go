// Package pipeline sequences one frame at a time: reset, spawn, camera
// fit, capture, annotate, validate. Stages run strictly in order; the
// coordinator is the only writer of registry and pool state, and every
// frame attempt releases its actors exactly once on the way out.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/camera"
	"github.com/vantagecv/scenekit/v2/internal/channel"
	"github.com/vantagecv/scenekit/v2/internal/dispatcher"
	"github.com/vantagecv/scenekit/v2/internal/handlers"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/scenehost"
	"github.com/vantagecv/scenekit/v2/internal/spawner"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// Lifecycle event names published through the dispatcher.
const (
	EventRunStart    = ":RUN:START:"
	EventRunEnd      = ":RUN:END:"
	EventFrameAccept = ":FRAME:ACCEPT:"
	EventFrameReject = ":FRAME:REJECT:"
	EventFailure     = ":FAILURE:"
)

// Dependencies holds the stage services and the outbound plumbing.
type Dependencies struct {
	Spawner    *spawner.Spawner
	Camera     *camera.Controller
	Generator  *annotation.Generator
	Validator  *annotation.Validator
	Host       scenehost.Host
	Dispatcher *dispatcher.Dispatcher
	LogManager *logging.SlogManager
	RunContext *handlers.RunContext // optional, enriches log lines with frame progress

	// Record streams drained by the worker. The coordinator closes both
	// before publishing the run end event.
	Frames   channel.Channel[storage.FrameRecord]
	Failures channel.Channel[storage.FailureRecord]
}

// Config holds run-level settings for one generation run.
type Config struct {
	Experiment   string
	AssetID      string
	Seed         int64
	TargetFrames int
	OutputDir    string
	ImageWidth   int
	ImageHeight  int
	CaptureActor string
	Settings     map[string]any // effective configuration snapshot for the run record
}

// Coordinator drives the frame loop for one run.
type Coordinator struct {
	deps   Dependencies
	cfg    Config
	logger *slog.Logger
}

// New creates a run coordinator.
func New(deps Dependencies, cfg Config) *Coordinator {
	return &Coordinator{
		deps:   deps,
		cfg:    cfg,
		logger: deps.LogManager.Logger(),
	}
}

// Run executes the frame loop until the target accepted-frame count is
// reached or the retry budget (2x the target) is spent. Each attempt
// advances the seed by one so retries explore different placements while
// the run as a whole stays reproducible.
//
// An invalid spawner configuration ends the run before the first frame:
// the problem is logged with its remedy and empty stats come back with a
// nil error, so callers see a run that produced nothing rather than a
// crash.
func (c *Coordinator) Run(ctx context.Context) (*RunStats, error) {
	if err := c.deps.Spawner.ValidateConfig(); err != nil {
		c.logger.Error("Run aborted before the first frame", "error", err)
		c.closeStreams()
		return newRunStats(c.cfg.TargetFrames), nil
	}

	for _, sub := range []string{"images", "annotations", "metadata"} {
		if err := os.MkdirAll(filepath.Join(c.cfg.OutputDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", sub, err)
		}
	}

	info := &storage.RunInfo{
		Name:         c.cfg.Experiment,
		AssetID:      c.cfg.AssetID,
		Seed:         c.cfg.Seed,
		TargetFrames: c.cfg.TargetFrames,
		ImageWidth:   c.cfg.ImageWidth,
		ImageHeight:  c.cfg.ImageHeight,
		OutputDir:    c.cfg.OutputDir,
		StartedAt:    time.Now(),
		Settings:     c.cfg.Settings,
	}
	if err := c.dispatch(EventRunStart, info); err != nil {
		c.closeStreams()
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	stats := newRunStats(c.cfg.TargetFrames)
	builder := annotation.NewDatasetBuilder()
	budget := 2 * c.cfg.TargetFrames

	accepted := 0
	for attempt := 0; accepted < c.cfg.TargetFrames && attempt < budget; attempt++ {
		seed := c.cfg.Seed + int64(attempt)
		c.deps.Spawner.SetSeed(seed)
		if c.deps.RunContext != nil {
			c.deps.RunContext.SetFrameIndex(accepted)
		}

		start := time.Now()
		rec, failure := c.generateFrame(ctx, accepted, seed)
		elapsedMs := float64(time.Since(start).Microseconds()) / 1000

		switch {
		case rec == nil:
			// Stage abort before a frame record existed.
			stats.recordAbort(failure.Kind, elapsedMs)
			c.publishFailure(accepted, *failure)

		case !rec.Accepted():
			stats.recordReject(rec)
			c.publishFrame(rec)
			if failure != nil {
				c.publishFailure(accepted, *failure)
			}

		default:
			stats.recordAccept(rec)
			builder.AddFrame(rec.Annotation)
			c.publishFrame(rec)
			accepted++
		}
	}

	status := "completed"
	if accepted < c.cfg.TargetFrames {
		status = "aborted"
		c.logger.Error("Retry budget exhausted before reaching target",
			"accepted", accepted,
			"target", c.cfg.TargetFrames,
			"attempts", stats.Attempts())
	}

	if err := c.writeDataset(builder.Dataset(), stats); err != nil {
		c.logger.Error("Failed to write dataset documents", "error", err)
	}

	c.closeStreams()

	summary := stats.Summary(status, time.Now())
	if err := c.dispatch(EventRunEnd, summary); err != nil {
		return stats, fmt.Errorf("failed to end run: %w", err)
	}

	c.logger.Info("Run finished",
		"status", status,
		"framesGenerated", stats.FramesGenerated,
		"framesFailed", stats.FramesFailed,
		"annotations", stats.TotalAnnotations,
		"avgVehicles", stats.AvgVehicles(),
		"avgFrameMs", stats.AvgFrameMillis())
	return stats, nil
}

// generateFrame runs the stage sequence for one frame attempt. It
// returns a record when the attempt reached validation (accepted or
// not), plus the failure that aborted or rejected it. Actors acquired
// during the spawn pass are always released before returning.
func (c *Coordinator) generateFrame(ctx context.Context, frameIndex int, seed int64) (*storage.FrameRecord, *core.Failure) {
	start := time.Now()
	defer func() {
		cleanup := c.deps.Spawner.ResetFrame(ctx)
		if !cleanup.Success() {
			c.logger.Warn("Frame cleanup left actors unreleased",
				"cleaned", cleanup.Cleaned,
				"failed", cleanup.Failed)
		}
	}()

	spawnRes := c.deps.Spawner.SpawnVehicles(ctx, 0, "", "")
	if !spawnRes.Success {
		return nil, &core.Failure{
			Kind:    core.FailureAllocation,
			Message: fmt.Sprintf("spawn failed: 0 of %d vehicles placed", spawnRes.RequestedCount),
			Remedy:  "add zones or raise zone capacity for the requested classes",
		}
	}

	fit, err := c.deps.Camera.Fit(spawnRes.Vehicles)
	if err != nil {
		return nil, &core.Failure{
			Kind:     core.FailureCameraFit,
			Message:  fmt.Sprintf("camera fit failed: %v", err),
			Affected: instanceIDs(spawnRes.Vehicles),
			Remedy:   "widen the FOV range or lower the visibility threshold",
		}
	}

	if c.cfg.CaptureActor != "" {
		err := c.deps.Host.SetTransform(ctx, core.ActorHandle(c.cfg.CaptureActor), fit.Pose.Location, fit.Pose.Rotation)
		if err != nil {
			c.logger.Warn("Failed to position capture actor",
				"actor", c.cfg.CaptureActor, "error", err)
		}
	}

	imageFile := fmt.Sprintf("frame_%06d.png", frameIndex)
	imagePath := filepath.Join(c.cfg.OutputDir, "images", imageFile)
	if err := c.deps.Host.Capture(ctx, imagePath, c.cfg.ImageWidth, c.cfg.ImageHeight); err != nil {
		return nil, &core.Failure{
			Kind:     core.FailureCameraFit,
			Message:  fmt.Sprintf("scene capture failed: %v", err),
			Affected: instanceIDs(spawnRes.Vehicles),
			Remedy:   "check the scene host connection and capture actor",
		}
	}

	proj := camera.NewProjector(fit.Pose, fit.FOV, c.cfg.ImageWidth, c.cfg.ImageHeight)
	frame := c.deps.Generator.AnnotateFrame(frameIndex, frameIndex+1, "images/"+imageFile, spawnRes.Vehicles, proj)
	verdict := c.deps.Validator.ValidateFrame(frame)

	rec := &storage.FrameRecord{
		Annotation:   frame,
		Verdict:      verdict,
		Vehicles:     spawnRes.Vehicles,
		Camera:       fit,
		Seed:         seed,
		GenerationMs: float64(time.Since(start).Microseconds()) / 1000,
		RecordedAt:   time.Now(),
	}

	if !verdict.Accepted() {
		// The image must not outlive its rejected frame.
		if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("Failed to remove rejected frame image", "path", imagePath, "error", err)
		}
		return rec, &core.Failure{
			Kind:     core.FailureValidation,
			Message:  "frame validation failed: " + strings.Join(verdict.FailedChecks(), ", "),
			Affected: instanceIDs(spawnRes.Vehicles),
			Remedy:   "loosen validation thresholds or review zone placement density",
		}
	}

	return rec, nil
}

// DatasetInfo is the metadata document written next to the COCO export.
type DatasetInfo struct {
	Description      string         `json:"description"`
	Version          string         `json:"version"`
	Contributor      string         `json:"contributor"`
	GeneratedAt      time.Time      `json:"generatedAt"`
	Seed             int64          `json:"seed"`
	TargetFrames     int            `json:"targetFrames"`
	FramesGenerated  int            `json:"framesGenerated"`
	FramesFailed     int            `json:"framesFailed"`
	AvgVehicles      float64        `json:"avgVehicles"`
	AvgFrameMillis   float64        `json:"avgFrameMillis"`
	RejectionReasons map[string]int `json:"rejectionReasons,omitempty"`
	ClassCounts      map[string]int `json:"classCounts,omitempty"`
	Images           int            `json:"images"`
	Annotations      int            `json:"annotations"`
}

// writeDataset writes the COCO document to annotations/ and the run
// metadata to metadata/dataset_info.json.
func (c *Coordinator) writeDataset(dataset annotation.Dataset, stats *RunStats) error {
	cocoPath := filepath.Join(c.cfg.OutputDir, "annotations", "instances.json")
	if err := writeJSON(cocoPath, dataset); err != nil {
		return fmt.Errorf("failed to write COCO document: %w", err)
	}

	info := DatasetInfo{
		Description:      dataset.Info.Description,
		Version:          dataset.Info.Version,
		Contributor:      dataset.Info.Contributor,
		GeneratedAt:      time.Now(),
		Seed:             c.cfg.Seed,
		TargetFrames:     stats.TargetFrames,
		FramesGenerated:  stats.FramesGenerated,
		FramesFailed:     stats.FramesFailed,
		AvgVehicles:      stats.AvgVehicles(),
		AvgFrameMillis:   stats.AvgFrameMillis(),
		RejectionReasons: stats.RejectionReasons,
		ClassCounts:      stats.ClassCounts,
		Images:           len(dataset.Images),
		Annotations:      len(dataset.Annotations),
	}
	metaPath := filepath.Join(c.cfg.OutputDir, "metadata", "dataset_info.json")
	if err := writeJSON(metaPath, info); err != nil {
		return fmt.Errorf("failed to write dataset metadata: %w", err)
	}

	c.logger.Info("Dataset documents written",
		"coco", cocoPath,
		"metadata", metaPath,
		"images", info.Images,
		"annotations", info.Annotations)
	return nil
}

// publishFrame streams the record to the worker and notifies handlers.
func (c *Coordinator) publishFrame(rec *storage.FrameRecord) {
	c.deps.Frames.Send(*rec)

	name := EventFrameAccept
	if !rec.Accepted() {
		name = EventFrameReject
	}
	if c.deps.Dispatcher.HasHandler(name) {
		if _, err := c.deps.Dispatcher.Dispatch(dispatcher.Event{Name: name, Payload: rec, Timestamp: time.Now()}); err != nil {
			c.logger.Warn("Failed to dispatch frame event", "event", name, "error", err)
		}
	}
}

// publishFailure streams a structured failure and notifies handlers.
func (c *Coordinator) publishFailure(frameIndex int, f core.Failure) {
	rec := storage.FailureRecord{
		FrameIndex: frameIndex,
		Failure:    f,
		OccurredAt: time.Now(),
	}
	c.deps.Failures.Send(rec)

	if c.deps.Dispatcher.HasHandler(EventFailure) {
		if _, err := c.deps.Dispatcher.Dispatch(dispatcher.Event{Name: EventFailure, Payload: &rec, Timestamp: rec.OccurredAt}); err != nil {
			c.logger.Warn("Failed to dispatch failure event", "error", err)
		}
	}
}

// dispatch sends a lifecycle event and fails loudly; run start and end
// must reach the worker or the run record is broken.
func (c *Coordinator) dispatch(name string, payload any) error {
	_, err := c.deps.Dispatcher.Dispatch(dispatcher.Event{Name: name, Payload: payload, Timestamp: time.Now()})
	return err
}

func (c *Coordinator) closeStreams() {
	c.deps.Frames.Close()
	c.deps.Failures.Close()
}

func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func instanceIDs(vehicles []core.SpawnedVehicle) []string {
	ids := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.InstanceID)
	}
	return ids
}
