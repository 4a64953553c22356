package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

func testSummary() *storage.RunSummary {
	return &storage.RunSummary{
		Status:           "completed",
		EndedAt:          time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
		FramesGenerated:  1,
		FramesFailed:     1,
		Vehicles:         2,
		Annotations:      1,
		AvgVehicles:      2.0,
		AvgFrameMillis:   8.5,
		RejectionReasons: map[string]int{"frame_validation": 1},
		ClassCounts:      map[string]int{"car": 1},
	}
}

func TestEndRun_WritesRunRecord(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryStorageConfig{})

	if err := b.StartRun(testRunInfo(dir)); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := b.RecordFrame(acceptedFrame(0)); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}
	if err := b.RecordFrame(rejectedFrame(1)); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}
	if err := b.RecordFailure(&storage.FailureRecord{
		FrameIndex: 1,
		Failure:    core.Failure{Kind: core.FailureValidation, Message: "no valid instances survive"},
	}); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	if err := b.EndRun(testSummary()); err != nil {
		t.Fatalf("EndRun failed: %v", err)
	}

	path := b.ExportedFilePath()
	if path == "" {
		t.Fatal("no export path recorded")
	}
	want := filepath.Join(dir, "test_run_20240601_120000.json")
	if path != want {
		t.Errorf("expected export path %s, got %s", want, path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()

	var export RunExport
	if err := json.NewDecoder(f).Decode(&export); err != nil {
		t.Fatalf("failed to decode export: %v", err)
	}

	if export.ExperimentName != "test run" {
		t.Errorf("expected experiment name 'test run', got %q", export.ExperimentName)
	}
	if export.Status != "completed" {
		t.Errorf("expected status completed, got %q", export.Status)
	}
	if export.FramesGenerated != 1 {
		t.Errorf("expected 1 frame generated, got %d", export.FramesGenerated)
	}
	if len(export.Frames) != 2 {
		t.Fatalf("expected 2 frame entries, got %d", len(export.Frames))
	}
	if !export.Frames[0].Accepted {
		t.Error("frame 0 should be accepted")
	}
	if export.Frames[1].Accepted {
		t.Error("frame 1 should be rejected")
	}
	if export.Frames[1].Verdict != "FAIL" {
		t.Errorf("expected frame 1 verdict FAIL, got %q", export.Frames[1].Verdict)
	}
	if len(export.Failures) != 1 {
		t.Fatalf("expected 1 failure entry, got %d", len(export.Failures))
	}
	if export.Failures[0].Stage != "frame_validation" {
		t.Errorf("expected failure stage frame_validation, got %q", export.Failures[0].Stage)
	}
	if export.RejectionReasons["frame_validation"] != 1 {
		t.Error("rejection reasons not exported")
	}
}

func TestEndRun_Compressed(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryStorageConfig{CompressOutput: true})

	if err := b.StartRun(testRunInfo(dir)); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := b.RecordFrame(acceptedFrame(0)); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}
	if err := b.EndRun(testSummary()); err != nil {
		t.Fatalf("EndRun failed: %v", err)
	}

	path := b.ExportedFilePath()
	if filepath.Ext(path) != ".gz" {
		t.Fatalf("expected .gz export, got %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip reader: %v", err)
	}
	defer gz.Close()

	var export RunExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("failed to decode gzipped export: %v", err)
	}
	if export.ExperimentName != "test run" {
		t.Errorf("expected experiment name 'test run', got %q", export.ExperimentName)
	}
}

func TestEndRun_NoActiveRun(t *testing.T) {
	b := New(config.MemoryStorageConfig{})
	if err := b.EndRun(testSummary()); err == nil {
		t.Error("expected error ending run without active run")
	}
}

func TestExportFilenameSanitized(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryStorageConfig{})

	info := testRunInfo(dir)
	info.Name = "sweep: morning run"
	if err := b.StartRun(info); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := b.EndRun(testSummary()); err != nil {
		t.Fatalf("EndRun failed: %v", err)
	}

	want := filepath.Join(dir, "sweep__morning_run_20240601_120000.json")
	if got := b.ExportedFilePath(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestExportCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	b := New(config.MemoryStorageConfig{})

	if err := b.StartRun(testRunInfo(dir)); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := b.EndRun(testSummary()); err != nil {
		t.Fatalf("EndRun failed: %v", err)
	}

	if _, err := os.Stat(b.ExportedFilePath()); err != nil {
		t.Errorf("export file not created: %v", err)
	}
}
