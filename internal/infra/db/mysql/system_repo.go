package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// SystemRepository reads the registry-owned ai_systems table. The core
// never writes it.
type SystemRepository struct {
	db *sql.DB
}

func NewSystemRepository(db *sql.DB) *SystemRepository {
	return &SystemRepository{db: db}
}

// System lookup by tenant + id
func (r *SystemRepository) System(ctx context.Context, tenant, id string) (*domain.AISystem, error) {
	const q = `
SELECT id, tenant_id, name, system_type, risk_level, data_flows_json
FROM ai_systems
WHERE tenant_id=? AND id=? LIMIT 1;
`
	var s domain.AISystem
	var flowsJSON string
	err := r.db.QueryRowContext(ctx, q, tenant, id).Scan(
		&s.ID, &s.TenantID, &s.Name,
		&s.Attributes.SystemType, &s.Attributes.RiskLevel, &flowsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSystemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if flowsJSON != "" {
		if err := json.Unmarshal([]byte(flowsJSON), &s.Attributes.DataFlows); err != nil {
			return nil, fmt.Errorf("unmarshal data flows: %w", err)
		}
	}
	return &s, nil
}
