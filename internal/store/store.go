// Package store persists layers as flat geometry files and keeps a ledger
// of batch runs.
package store

import (
	"context"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Ledger records batch runs and the outcome of every pair they touched.
type Ledger interface {
	// Runs
	CreateRun(ctx context.Context, params model.Params, pairs int) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Pairs
	RecordPair(ctx context.Context, outcome model.PairOutcome) error
	ListPairs(ctx context.Context, runID string) ([]model.PairOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
