package pipeline

import (
	"time"

	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// RunStats accumulates outcomes across a run's frame attempts.
type RunStats struct {
	TargetFrames     int            `json:"targetFrames"`
	FramesGenerated  int            `json:"framesGenerated"`
	FramesFailed     int            `json:"framesFailed"`
	RejectionReasons map[string]int `json:"rejectionReasons,omitempty"`
	ClassCounts      map[string]int `json:"classCounts,omitempty"`
	TotalVehicles    int            `json:"totalVehicles"`
	TotalAnnotations int            `json:"totalAnnotations"`

	attempts     int
	totalFrameMs float64
}

func newRunStats(target int) *RunStats {
	return &RunStats{
		TargetFrames:     target,
		RejectionReasons: make(map[string]int),
		ClassCounts:      make(map[string]int),
	}
}

// recordAccept folds one accepted frame into the totals.
func (st *RunStats) recordAccept(rec *storage.FrameRecord) {
	st.attempts++
	st.totalFrameMs += rec.GenerationMs
	st.FramesGenerated++
	st.TotalVehicles += len(rec.Vehicles)
	st.TotalAnnotations += rec.Annotation.ValidCount()
	for _, v := range rec.Vehicles {
		st.ClassCounts[string(v.Class)]++
	}
}

// recordReject counts a validated-but-rejected frame and its failed checks.
func (st *RunStats) recordReject(rec *storage.FrameRecord) {
	st.attempts++
	st.totalFrameMs += rec.GenerationMs
	st.FramesFailed++
	for _, check := range rec.Verdict.FailedChecks() {
		st.RejectionReasons[check]++
	}
}

// recordAbort counts a frame that never reached validation.
func (st *RunStats) recordAbort(kind core.FailureKind, elapsedMs float64) {
	st.attempts++
	st.totalFrameMs += elapsedMs
	st.FramesFailed++
	st.RejectionReasons[string(kind)]++
}

// Attempts returns the number of frame attempts made so far.
func (st *RunStats) Attempts() int {
	return st.attempts
}

// AvgVehicles returns the mean vehicle count per accepted frame.
func (st *RunStats) AvgVehicles() float64 {
	if st.FramesGenerated == 0 {
		return 0
	}
	return float64(st.TotalVehicles) / float64(st.FramesGenerated)
}

// AvgFrameMillis returns the mean wall-clock per attempted frame.
func (st *RunStats) AvgFrameMillis() float64 {
	if st.attempts == 0 {
		return 0
	}
	return st.totalFrameMs / float64(st.attempts)
}

// Summary converts the accumulated stats into the run close-out record.
func (st *RunStats) Summary(status string, endedAt time.Time) *storage.RunSummary {
	reasons := make(map[string]int, len(st.RejectionReasons))
	for k, v := range st.RejectionReasons {
		reasons[k] = v
	}
	classes := make(map[string]int, len(st.ClassCounts))
	for k, v := range st.ClassCounts {
		classes[k] = v
	}
	return &storage.RunSummary{
		Status:           status,
		EndedAt:          endedAt,
		FramesGenerated:  st.FramesGenerated,
		FramesFailed:     st.FramesFailed,
		Vehicles:         st.TotalVehicles,
		Annotations:      st.TotalAnnotations,
		AvgVehicles:      st.AvgVehicles(),
		AvgFrameMillis:   st.AvgFrameMillis(),
		RejectionReasons: reasons,
		ClassCounts:      classes,
	}
}
