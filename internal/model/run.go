package model

import "time"

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// PairStatus is the outcome of one pair within a run.
type PairStatus string

const (
	PairStatusOK      PairStatus = "ok"
	PairStatusFailed  PairStatus = "failed"
	PairStatusSkipped PairStatus = "skipped" // listed as known-failed
)

// Run is one batch run over a roster of pairs.
type Run struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"`
	Params    Params    `json:"params"`
	Status    RunStatus `json:"status"`
	Pairs     int       `json:"pairs"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairOutcome records what happened to one pair in a run.
type PairOutcome struct {
	RunID   string     `json:"run_id"`
	Pair    string     `json:"pair"`
	Status  PairStatus `json:"status"`
	Kind    Kind       `json:"kind,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	Records int        `json:"records"`
	Area    float64    `json:"area"`
}
