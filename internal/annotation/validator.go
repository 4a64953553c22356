package annotation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vantagecv/scenekit/v2/internal/config"
)

// Severity grades a validation issue. Fail outranks Warn outranks Pass.
type Severity string

const (
	SeverityPass Severity = "PASS"
	SeverityWarn Severity = "WARN"
	SeverityFail Severity = "FAIL"
)

// Issue is one tripped validation rule.
type Issue struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	Message  string   `json:"message"`
	Affected []string `json:"affected,omitempty"`
	Remedy   string   `json:"remedy,omitempty"`
}

// FrameResult is the aggregate verdict over one frame.
type FrameResult struct {
	FrameIndex    int      `json:"frameIndex"`
	OverallResult Severity `json:"overallResult"`
	Issues        []Issue  `json:"issues,omitempty"`
	ChecksPassed  int      `json:"checksPassed"`
	ChecksFailed  int      `json:"checksFailed"`
	ChecksWarned  int      `json:"checksWarned"`
}

// Accepted reports whether the frame enters the dataset. Warn-only
// frames are kept; only a Fail discards the frame and its image.
func (r FrameResult) Accepted() bool {
	return r.OverallResult != SeverityFail
}

// FailedChecks returns the names of the checks that failed.
func (r FrameResult) FailedChecks() []string {
	var out []string
	for _, issue := range r.Issues {
		if issue.Severity == SeverityFail {
			out = append(out, issue.Check)
		}
	}
	return out
}

// ValidatorStats accumulates frame verdicts across a run.
type ValidatorStats struct {
	FramesValidated  int            `json:"framesValidated"`
	FramesAccepted   int            `json:"framesAccepted"`
	FramesRejected   int            `json:"framesRejected"`
	RejectionReasons map[string]int `json:"rejectionReasons"`
}

// Validator judges annotated frames with a fixed, ordered rule set.
type Validator struct {
	logger *slog.Logger
	cfg    config.ValidationConfig

	mu    sync.Mutex
	stats ValidatorStats
}

// NewValidator builds a validator with the given rule toggles.
func NewValidator(cfg config.ValidationConfig, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Frame validator initialized",
		"reject_zero_vehicles", cfg.RejectZeroVehicles,
		"reject_all_truncated", cfg.RejectAllTruncated,
		"truncation_warn_threshold", cfg.TruncationWarnThreshold,
		"require_positive_area", cfg.RequirePositiveArea,
		"require_in_frame", cfg.RequireInFrame)
	return &Validator{logger: logger, cfg: cfg}
}

// ValidateFrame runs every check in order and aggregates the worst
// severity. Checks disabled by configuration count as passed.
func (v *Validator) ValidateFrame(frame Frame) FrameResult {
	v.logger.Info("Frame validation started",
		"frame_index", frame.FrameIndex,
		"instance_count", len(frame.Instances))

	result := FrameResult{FrameIndex: frame.FrameIndex, OverallResult: SeverityPass}

	checks := []func(Frame) *Issue{
		v.checkVehicleCount,
		v.checkInstanceValidity,
		v.checkAllTruncated,
		v.checkPositiveAreas,
		v.checkInFrame,
	}
	for _, check := range checks {
		issue := check(frame)
		if issue == nil {
			result.ChecksPassed++
			continue
		}
		result.Issues = append(result.Issues, *issue)
		switch issue.Severity {
		case SeverityFail:
			result.ChecksFailed++
			result.OverallResult = SeverityFail
		case SeverityWarn:
			result.ChecksWarned++
			if result.OverallResult == SeverityPass {
				result.OverallResult = SeverityWarn
			}
		}
	}

	v.mu.Lock()
	v.stats.FramesValidated++
	if result.Accepted() {
		v.stats.FramesAccepted++
	} else {
		v.stats.FramesRejected++
		if v.stats.RejectionReasons == nil {
			v.stats.RejectionReasons = make(map[string]int)
		}
		for _, issue := range result.Issues {
			if issue.Severity == SeverityFail {
				v.stats.RejectionReasons[issue.Check]++
			}
		}
	}
	v.mu.Unlock()

	switch result.OverallResult {
	case SeverityFail:
		v.logger.Error("Frame validation failed",
			"frame_index", frame.FrameIndex,
			"reason", result.Issues[0].Message,
			"failed_checks", result.FailedChecks())
	case SeverityWarn:
		v.logger.Warn("Frame validation passed with warnings",
			"frame_index", frame.FrameIndex,
			"warnings", result.ChecksWarned)
	default:
		v.logger.Info("Frame validation passed",
			"frame_index", frame.FrameIndex,
			"checks_passed", result.ChecksPassed)
	}
	return result
}

func (v *Validator) checkVehicleCount(frame Frame) *Issue {
	if !v.cfg.RejectZeroVehicles {
		return nil
	}
	if len(frame.Instances) == 0 {
		return &Issue{
			Severity: SeverityFail,
			Check:    "vehicle_count",
			Message:  "frame has zero vehicles",
			Remedy:   "increase spawn attempts or reduce rejection rate",
		}
	}
	if frame.ValidCount() == 0 {
		return &Issue{
			Severity: SeverityFail,
			Check:    "valid_vehicle_count",
			Message:  "frame has no valid vehicle annotations",
			Affected: instanceIDs(frame.Instances),
			Remedy:   "check projection settings or camera position",
		}
	}
	return nil
}

func (v *Validator) checkInstanceValidity(frame Frame) *Issue {
	var invalid []string
	for _, inst := range frame.Instances {
		if !inst.Valid {
			invalid = append(invalid, inst.InstanceID)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return &Issue{
		Severity: SeverityWarn,
		Check:    "instance_validity",
		Message:  fmt.Sprintf("%d of %d instances are invalid", len(invalid), len(frame.Instances)),
		Affected: invalid,
	}
}

func (v *Validator) checkAllTruncated(frame Frame) *Issue {
	if !v.cfg.RejectAllTruncated {
		return nil
	}
	valid := frame.ValidInstances()
	if len(valid) == 0 {
		return nil
	}
	for _, inst := range valid {
		if inst.Truncation <= v.cfg.TruncationWarnThreshold {
			return nil
		}
	}
	return &Issue{
		Severity: SeverityFail,
		Check:    "all_truncated",
		Message:  fmt.Sprintf("all vehicles are more than %.0f%% truncated", v.cfg.TruncationWarnThreshold*100),
		Affected: instanceIDs(valid),
		Remedy:   "adjust camera FOV or vehicle spawn positions",
	}
}

func (v *Validator) checkPositiveAreas(frame Frame) *Issue {
	if !v.cfg.RequirePositiveArea {
		return nil
	}
	var zeroArea []string
	for _, inst := range frame.ValidInstances() {
		if inst.Area <= 0 {
			zeroArea = append(zeroArea, inst.InstanceID)
		}
	}
	if len(zeroArea) == 0 {
		return nil
	}
	return &Issue{
		Severity: SeverityFail,
		Check:    "positive_area",
		Message:  fmt.Sprintf("%d bboxes have zero or negative area", len(zeroArea)),
		Affected: zeroArea,
		Remedy:   "check 3D to 2D projection math",
	}
}

func (v *Validator) checkInFrame(frame Frame) *Issue {
	if !v.cfg.RequireInFrame {
		return nil
	}
	w := float64(frame.ImageWidth)
	h := float64(frame.ImageHeight)

	var outside []string
	for _, inst := range frame.ValidInstances() {
		b := inst.BBox
		if b.X >= w || b.Y >= h || b.X+b.Width <= 0 || b.Y+b.Height <= 0 {
			outside = append(outside, inst.InstanceID)
		}
	}
	if len(outside) == 0 {
		return nil
	}
	return &Issue{
		Severity: SeverityFail,
		Check:    "in_frame",
		Message:  fmt.Sprintf("%d bboxes are completely outside image", len(outside)),
		Affected: outside,
		Remedy:   "check clipping logic in annotation generator",
	}
}

// Stats returns a snapshot of the accumulated verdicts.
func (v *Validator) Stats() ValidatorStats {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := v.stats
	out.RejectionReasons = make(map[string]int, len(v.stats.RejectionReasons))
	for k, n := range v.stats.RejectionReasons {
		out.RejectionReasons[k] = n
	}
	return out
}

// Reset clears the accumulated statistics for a new run.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats = ValidatorStats{}
}

func instanceIDs(instances []Instance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.InstanceID
	}
	return out
}
