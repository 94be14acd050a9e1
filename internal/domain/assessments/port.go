package assessments

import (
	"context"
	"time"

	"github.com/bryanwahyu/quorum-comply/internal/domain/agents"
)

// Repository port (interface untuk persistence)
type Repository interface {
	// Save upserts the assessment row keyed by id. Finalize relies on this
	// being idempotent: replaying the same terminal row is a no-op.
	Save(ctx context.Context, a *Assessment) error
	Get(ctx context.Context, tenant string, id AssessmentID) (*Assessment, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Assessment, error)
	Summary(ctx context.Context, tenant string, sinceDays int) (Summary, error)
	// SaveVotes appends the per-run audit trail. Insert-only.
	SaveVotes(ctx context.Context, tenant string, id AssessmentID, votes []agents.AgentVote) error
}

// Summary rekap hasil assessment N hari terakhir
type Summary struct {
	Total         int     `json:"total_assessments"`
	Completed     int     `json:"completed"`
	Indeterminate int     `json:"indeterminate"`
	Failed        int     `json:"failed"`
	MeanScore     float64 `json:"mean_score"`
}

// Event emitted on every terminal assessment state. Consumed by the
// out-of-scope reporting/notification collaborator.
type Event struct {
	AssessmentID AssessmentID `json:"assessment_id"`
	TenantID     string       `json:"tenant_id"`
	SystemID     string       `json:"system_id"`
	FrameworkID  string       `json:"framework_id"`
	Status       Status       `json:"status"`
	OverallScore float64      `json:"overall_score"`
	GapCount     int          `json:"gap_count"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// EventPublisher port (completion notifications)
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
