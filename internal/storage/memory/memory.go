// Package memory stores run data in memory and exports to JSON
package memory

import (
	"fmt"
	"sync"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/internal/storage"
)

// Backend stores run data in memory and exports to JSON
type Backend struct {
	cfg config.MemoryStorageConfig

	run      *storage.RunInfo
	summary  *storage.RunSummary
	frames   []storage.FrameRecord
	failures []storage.FailureRecord

	builder        *annotation.DatasetBuilder
	lastExportPath string

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryStorageConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		builder: annotation.NewDatasetBuilder(),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run
func (b *Backend) StartRun(info *storage.RunInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = info
	b.summary = nil

	// Reset all collections
	b.frames = nil
	b.failures = nil
	b.builder.Reset()
	b.lastExportPath = ""

	return nil
}

// EndRun finalizes and exports the run data
func (b *Backend) EndRun(summary *storage.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return fmt.Errorf("no active run")
	}
	b.summary = summary

	return b.exportJSON()
}

// RecordFrame records one frame attempt. Accepted frames also feed the
// COCO dataset builder; rejected frames are kept for the run record only.
func (b *Backend) RecordFrame(rec *storage.FrameRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return fmt.Errorf("no active run")
	}
	b.frames = append(b.frames, *rec)
	if rec.Accepted() {
		b.builder.AddFrame(rec.Annotation)
	}
	return nil
}

// RecordFailure records a structured failure event
func (b *Backend) RecordFailure(rec *storage.FailureRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return fmt.Errorf("no active run")
	}
	b.failures = append(b.failures, *rec)
	return nil
}

// Dataset returns the COCO dataset built from accepted frames
func (b *Backend) Dataset() (annotation.Dataset, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.builder.Dataset(), nil
}

// ExportedFilePath returns the path of the last written run record,
// or empty if no export has happened yet
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lastExportPath
}

// FrameCount returns the number of recorded frame attempts
func (b *Backend) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.frames)
}

// FailureCount returns the number of recorded failures
func (b *Backend) FailureCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.failures)
}
