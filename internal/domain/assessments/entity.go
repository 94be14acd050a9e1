package assessments

import (
	"time"

	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// AssessmentID tipe untuk Assessment
type AssessmentID string

// Status enum
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusCompleted     Status = "completed"
	StatusIndeterminate Status = "indeterminate"
	StatusFailed        Status = "failed"
)

// Terminal reports whether the status is final. An assessment is immutable
// once terminal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusIndeterminate || s == StatusFailed
}

// Aggregate Root: Assessment
type Assessment struct {
	ID               AssessmentID                    `json:"id"`
	TenantID         string                          `json:"tenant_id"`
	SystemID         string                          `json:"system_id"`
	FrameworkID      frameworks.FrameworkID          `json:"framework_id"`
	FrameworkVersion string                          `json:"framework_version"`
	StartedAt        time.Time                       `json:"started_at"`
	CompletedAt      *time.Time                      `json:"completed_at,omitempty"`
	Status           Status                          `json:"status"`
	Reason           string                          `json:"reason,omitempty"`
	OverallScore     float64                         `json:"overall_score"`
	Results          []frameworks.RequirementResult  `json:"results,omitempty"`
	Gaps             []frameworks.RequirementResult  `json:"gaps,omitempty"`
	Indeterminate    int                             `json:"indeterminate_requirements"`
	ReportURL        string                          `json:"report_url,omitempty"`
	DurationMS       int64                           `json:"duration_ms"`
}
