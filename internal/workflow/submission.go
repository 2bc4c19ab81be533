package workflow

import (
	"fmt"
	"time"
)

// Submission is a point-in-time copy of the record the workflow owns.
// Mutating a Submission never affects the workflow.
type Submission struct {
	ID         string          `json:"id"`
	Status     Status          `json:"status"`
	Image      *LocalImage     `json:"image,omitempty"`
	Upload     *UploadResult   `json:"upload,omitempty"`
	Analysis   *AnalysisResult `json:"analysis,omitempty"`
	LastError  error           `json:"-"`
	FailedStep Step            `json:"failed_step,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CheckInvariants reports the first relationship between status and fields
// that does not hold.
func (s Submission) CheckInvariants() error {
	if !s.Status.IsValid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if (s.Image != nil) != (s.Status != StatusIdle) {
		return fmt.Errorf("image presence does not match status %s", s.Status)
	}
	if (s.Upload != nil) != s.expectsUpload() {
		return fmt.Errorf("upload result presence does not match status %s", s.Status)
	}
	if (s.Analysis != nil) != (s.Status == StatusAnalyzed) {
		return fmt.Errorf("analysis result presence does not match status %s", s.Status)
	}
	if (s.LastError != nil) != (s.Status == StatusFailed) {
		return fmt.Errorf("last error presence does not match status %s", s.Status)
	}
	if (s.FailedStep != "") != (s.Status == StatusFailed) {
		return fmt.Errorf("failed step presence does not match status %s", s.Status)
	}
	return nil
}

func (s Submission) expectsUpload() bool {
	switch s.Status {
	case StatusUploaded, StatusAnalyzing, StatusAnalyzed:
		return true
	case StatusFailed:
		return s.FailedStep == StepAnalyze
	default:
		return false
	}
}

func (s Submission) clone() Submission {
	out := s
	if s.Image != nil {
		img := s.Image.clone()
		out.Image = &img
	}
	if s.Upload != nil {
		up := s.Upload.clone()
		out.Upload = &up
	}
	if s.Analysis != nil {
		an := s.Analysis.clone()
		out.Analysis = &an
	}
	return out
}
