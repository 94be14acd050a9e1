package pdca

import (
	"context"
	"errors"
	"time"
)

// ErrCycleNotFound indicates no cycle exists yet for the pair.
var ErrCycleNotFound = errors.New("pdca cycle not found")

// Repository port (interface untuk persistence)
type Repository interface {
	Get(ctx context.Context, tenant, systemID, frameworkID string) (*Cycle, error)
	Save(ctx context.Context, c *Cycle) error
	// Due returns cycles whose next_due_at is at or before the cutoff.
	Due(ctx context.Context, cutoff time.Time, limit int) ([]*Cycle, error)
}
