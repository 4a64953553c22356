// pkg/core/failure.go
package core

// FailureKind names the pipeline stage a structured failure belongs to.
type FailureKind string

const (
	FailureAllocation FailureKind = "allocation"
	FailureSpacing    FailureKind = "spacing"
	FailureCameraFit  FailureKind = "camera_fit"
	FailureProjection FailureKind = "projection"
	FailureValidation FailureKind = "frame_validation"
	FailureConfig     FailureKind = "config"
)

// Failure is a structured, attributable failure. Every abort and every
// dropped vehicle carries exactly one of these.
type Failure struct {
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
	Affected []string    `json:"affected,omitempty"`
	Remedy   string      `json:"remedy,omitempty"`
}

// Error implements the error interface.
func (f Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}
