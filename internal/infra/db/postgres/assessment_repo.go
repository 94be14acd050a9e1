package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domagents "github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	domain "github.com/bryanwahyu/quorum-comply/internal/domain/assessments"
	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

type AssessmentRepository struct{ db *sql.DB }

func NewAssessmentRepository(db *sql.DB) *AssessmentRepository { return &AssessmentRepository{db: db} }

// Save insert/update Assessment record (idempotent finalize via ON CONFLICT)
func (r *AssessmentRepository) Save(ctx context.Context, a *domain.Assessment) error {
	const q = `
INSERT INTO assessments
(id, tenant_id, system_id, framework_id, framework_version, started_at, completed_at,
 status, reason, overall_score, indeterminate_count,
 results_json, gaps_json, report_url, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,
        $8,$9,$10,$11,
        $12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
 completed_at = EXCLUDED.completed_at,
 status = EXCLUDED.status,
 reason = EXCLUDED.reason,
 overall_score = EXCLUDED.overall_score,
 indeterminate_count = EXCLUDED.indeterminate_count,
 results_json = EXCLUDED.results_json,
 gaps_json = EXCLUDED.gaps_json,
 report_url = EXCLUDED.report_url,
 duration_ms = EXCLUDED.duration_ms;`

	started := a.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	results, err := marshalResults(a.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	gaps, err := marshalResults(a.Gaps)
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}
	var completed any
	if a.CompletedAt != nil {
		completed = *a.CompletedAt
	}

	_, err = r.db.ExecContext(ctx, q,
		a.ID, stringOrDash(a.TenantID), a.SystemID, a.FrameworkID, a.FrameworkVersion, started, completed,
		stringOrDash(string(a.Status)), a.Reason, a.OverallScore, a.Indeterminate,
		results, gaps, a.ReportURL, a.DurationMS,
	)
	return err
}

// Get by ID + Tenant
func (r *AssessmentRepository) Get(ctx context.Context, tenant string, id domain.AssessmentID) (*domain.Assessment, error) {
	const q = `
SELECT id, tenant_id, system_id, framework_id, framework_version, started_at, completed_at,
       status, reason, overall_score, indeterminate_count,
       results_json, gaps_json, report_url, duration_ms
FROM assessments
WHERE tenant_id=$1 AND id=$2
LIMIT 1;`
	return scanRow(r.db.QueryRowContext(ctx, q, tenant, id))
}

// Latest assessments per tenant
func (r *AssessmentRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Assessment, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, system_id, framework_id, framework_version, started_at, completed_at,
       status, reason, overall_score, indeterminate_count,
       results_json, gaps_json, report_url, duration_ms
FROM assessments
WHERE tenant_id=$1
ORDER BY started_at DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Assessment
	for rows.Next() {
		a, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary counts terminal statuses since N days
func (r *AssessmentRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 30
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status='completed'),
       COUNT(*) FILTER (WHERE status='indeterminate'),
       COUNT(*) FILTER (WHERE status='failed'),
       COALESCE(AVG(overall_score) FILTER (WHERE status='completed'), 0)
FROM assessments
WHERE tenant_id=$1 AND started_at >= $2;`
	var s domain.Summary
	if err := r.db.QueryRowContext(ctx, q, tenant, cut).Scan(
		&s.Total, &s.Completed, &s.Indeterminate, &s.Failed, &s.MeanScore,
	); err != nil {
		return domain.Summary{}, err
	}
	return s, nil
}

// SaveVotes appends the per-run vote audit trail (insert-only)
func (r *AssessmentRepository) SaveVotes(ctx context.Context, tenant string, id domain.AssessmentID, votes []domagents.AgentVote) error {
	if len(votes) == 0 {
		return nil
	}
	const q = `
INSERT INTO agent_votes
(tenant_id, assessment_id, question_id, agent_id, provider, verdict, rationale, latency_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, v := range votes {
		if _, err := tx.ExecContext(ctx, q,
			tenant, id, v.QuestionID, v.AgentID, v.Provider, v.Verdict, v.Rationale, v.LatencyMS, now,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func marshalResults(rs []frameworks.RequirementResult) (string, error) {
	if len(rs) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRow(row rowScanner) (*domain.Assessment, error) {
	var a domain.Assessment
	var completed sql.NullTime
	var resultsJSON, gapsJSON string
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.SystemID, &a.FrameworkID, &a.FrameworkVersion, &a.StartedAt, &completed,
		&a.Status, &a.Reason, &a.OverallScore, &a.Indeterminate,
		&resultsJSON, &gapsJSON, &a.ReportURL, &a.DurationMS,
	); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		a.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(resultsJSON), &a.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	if err := json.Unmarshal([]byte(gapsJSON), &a.Gaps); err != nil {
		return nil, fmt.Errorf("unmarshal gaps: %w", err)
	}
	return &a, nil
}
