package mobility

import (
	"context"
	"sort"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// Source yields the movement records of one canonical pair.
type Source interface {
	Records(ctx context.Context, pair string) ([]model.MovementRecord, error)
}

// Memory is a Source over records held in memory, indexed by pair. It is
// read-only after NewMemory returns.
type Memory struct {
	byPair map[string][]model.MovementRecord
}

// NewMemory indexes records by their pair id.
func NewMemory(records []model.MovementRecord) *Memory {
	m := &Memory{byPair: make(map[string][]model.MovementRecord)}
	for _, r := range records {
		m.byPair[r.Pair] = append(m.byPair[r.Pair], r)
	}
	return m
}

// Records returns the records of pair. An unknown pair yields no records
// and no error; the estimator reports the empty point set.
func (m *Memory) Records(_ context.Context, pair string) ([]model.MovementRecord, error) {
	return m.byPair[pair], nil
}

// Pairs returns every pair id that has records, sorted.
func (m *Memory) Pairs() []string {
	out := make([]string, 0, len(m.byPair))
	for p := range m.byPair {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
