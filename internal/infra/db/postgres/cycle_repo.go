package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/quorum-comply/internal/domain/pdca"
)

type CycleRepository struct{ db *sql.DB }

func NewCycleRepository(db *sql.DB) *CycleRepository { return &CycleRepository{db: db} }

// Save upserts the one cycle row per (tenant, system, framework) pair
func (r *CycleRepository) Save(ctx context.Context, c *domain.Cycle) error {
	const q = `
INSERT INTO pdca_cycles
(tenant_id, system_id, framework_id, phase, cycle_started_at, last_assessment_id, next_due_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (tenant_id, system_id, framework_id) DO UPDATE SET
 phase = EXCLUDED.phase,
 cycle_started_at = EXCLUDED.cycle_started_at,
 last_assessment_id = EXCLUDED.last_assessment_id,
 next_due_at = EXCLUDED.next_due_at;`
	started := c.CycleStartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		stringOrDash(c.TenantID), c.SystemID, c.FrameworkID,
		stringOrDash(string(c.Phase)), started, c.LastAssessmentID, c.NextDueAt,
	)
	return err
}

// Get by pair
func (r *CycleRepository) Get(ctx context.Context, tenant, systemID, frameworkID string) (*domain.Cycle, error) {
	const q = `
SELECT tenant_id, system_id, framework_id, phase, cycle_started_at, last_assessment_id, next_due_at
FROM pdca_cycles
WHERE tenant_id=$1 AND system_id=$2 AND framework_id=$3
LIMIT 1;`
	var c domain.Cycle
	err := r.db.QueryRowContext(ctx, q, tenant, systemID, frameworkID).Scan(
		&c.TenantID, &c.SystemID, &c.FrameworkID, &c.Phase,
		&c.CycleStartedAt, &c.LastAssessmentID, &c.NextDueAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCycleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Due returns cycles whose next_due_at has passed, oldest first
func (r *CycleRepository) Due(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Cycle, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT tenant_id, system_id, framework_id, phase, cycle_started_at, last_assessment_id, next_due_at
FROM pdca_cycles
WHERE next_due_at <= $1
ORDER BY next_due_at ASC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Cycle
	for rows.Next() {
		var c domain.Cycle
		if err := rows.Scan(
			&c.TenantID, &c.SystemID, &c.FrameworkID, &c.Phase,
			&c.CycleStartedAt, &c.LastAssessmentID, &c.NextDueAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
