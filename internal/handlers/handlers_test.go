package handlers

import (
	"testing"
	"time"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/dispatcher"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

func newTestService() *Service {
	logManager := logging.NewSlogManager()
	logManager.Setup(nil, "info", nil)

	deps := Dependencies{
		LogManager: logManager,
		Influx:     nil, // metrics disabled
	}

	return NewService(deps, NewRunContext())
}

func acceptedRecord(frameIndex int) *storage.FrameRecord {
	return &storage.FrameRecord{
		Annotation: annotation.Frame{FrameIndex: frameIndex},
		Verdict: annotation.FrameResult{
			FrameIndex:    frameIndex,
			OverallResult: annotation.SeverityPass,
		},
		RecordedAt: time.Now(),
	}
}

func rejectedRecord(frameIndex int, check string) *storage.FrameRecord {
	return &storage.FrameRecord{
		Annotation: annotation.Frame{FrameIndex: frameIndex},
		Verdict: annotation.FrameResult{
			FrameIndex:    frameIndex,
			OverallResult: annotation.SeverityFail,
			Issues: []annotation.Issue{
				{Check: check, Severity: annotation.SeverityFail, Message: "rejected"},
			},
			ChecksFailed: 1,
		},
		RecordedAt: time.Now(),
	}
}

func TestRunContext_Attrs(t *testing.T) {
	ctx := NewRunContext()

	if attrs := ctx.Attrs(); attrs != nil {
		t.Errorf("expected no attrs before a run, got %v", attrs)
	}

	ctx.SetRun(&storage.RunInfo{Name: "test run"})
	ctx.SetFrameIndex(7)

	attrs := ctx.Attrs()
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attrs, got %d", len(attrs))
	}
	if attrs[0].Value.String() != "test run" {
		t.Errorf("expected run name attr, got %v", attrs[0])
	}
	if attrs[1].Value.Int64() != 7 {
		t.Errorf("expected frame index 7, got %v", attrs[1])
	}
}

func TestHandleRunStart_ResetsStats(t *testing.T) {
	svc := newTestService()

	svc.mu.Lock()
	svc.accepted = 5
	svc.rejected = 3
	svc.mu.Unlock()

	info := &storage.RunInfo{Name: "run-a", Seed: 42, TargetFrames: 10}
	_, err := svc.handleRunStart(dispatcher.Event{Name: ":RUN:START:", Payload: info})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := svc.Stats()
	if stats.Accepted != 0 || stats.Rejected != 0 {
		t.Errorf("expected reset stats, got %+v", stats)
	}
	if svc.RunContext().Run().Name != "run-a" {
		t.Errorf("expected run context to carry the new run")
	}
}

func TestHandleRunStart_WrongPayload(t *testing.T) {
	svc := newTestService()

	_, err := svc.handleRunStart(dispatcher.Event{Name: ":RUN:START:", Payload: "not a run"})
	if err == nil {
		t.Error("expected error for wrong payload type")
	}
}

func TestHandleFrame_CountsVerdicts(t *testing.T) {
	svc := newTestService()
	svc.RunContext().SetRun(&storage.RunInfo{Name: "run-b"})

	for i := 0; i < 3; i++ {
		if _, err := svc.handleFrame(dispatcher.Event{Name: ":FRAME:ACCEPT:", Payload: acceptedRecord(i)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := svc.handleFrame(dispatcher.Event{Name: ":FRAME:REJECT:", Payload: rejectedRecord(3, "vehicle_count")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.handleFrame(dispatcher.Event{Name: ":FRAME:REJECT:", Payload: rejectedRecord(4, "vehicle_count")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := svc.Stats()
	if stats.Accepted != 3 {
		t.Errorf("expected 3 accepted, got %d", stats.Accepted)
	}
	if stats.Rejected != 2 {
		t.Errorf("expected 2 rejected, got %d", stats.Rejected)
	}
	if stats.RejectionReasons["vehicle_count"] != 2 {
		t.Errorf("expected vehicle_count rejections to be counted, got %v", stats.RejectionReasons)
	}
}

func TestHandleFailure_TracksLastReason(t *testing.T) {
	svc := newTestService()

	rec := &storage.FailureRecord{
		FrameIndex: 12,
		Failure: core.Failure{
			Kind:    core.FailureCameraFit,
			Message: "no FOV within bounds reached minimum visibility",
		},
		OccurredAt: time.Now(),
	}

	if _, err := svc.handleFailure(dispatcher.Event{Name: ":FAILURE:", Payload: rec}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := svc.Stats()
	if stats.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", stats.Failures)
	}
	if stats.LastFailure != rec.Failure.Message {
		t.Errorf("expected last failure message, got %q", stats.LastFailure)
	}
}

func TestRegisterHandlers_EndToEnd(t *testing.T) {
	svc := newTestService()

	d, err := dispatcher.New(logging.NewConsoleDispatcherLogger("error"))
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	svc.RegisterHandlers(d)

	for _, name := range []string{":RUN:START:", ":RUN:END:", ":FRAME:ACCEPT:", ":FRAME:REJECT:", ":FAILURE:"} {
		if !d.HasHandler(name) {
			t.Errorf("expected handler for %s", name)
		}
	}

	if _, err := d.Dispatch(dispatcher.Event{
		Name:    ":RUN:START:",
		Payload: &storage.RunInfo{Name: "run-c", TargetFrames: 1},
	}); err != nil {
		t.Fatalf("run start failed: %v", err)
	}

	if _, err := d.Dispatch(dispatcher.Event{
		Name:    ":RUN:END:",
		Payload: &storage.RunSummary{Status: "completed", EndedAt: time.Now()},
	}); err != nil {
		t.Fatalf("run end failed: %v", err)
	}
}
