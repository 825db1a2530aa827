package store

import (
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// FailedPair is one entry of the failed-pair report.
type FailedPair struct {
	Pair   string     `yaml:"pair"`
	Kind   model.Kind `yaml:"kind"`
	Reason string     `yaml:"reason"`
}

// FailedReport lists the pairs a run could not produce. The aggregate
// stage reads it to skip pairs without a merged file.
type FailedReport struct {
	RunID       string       `yaml:"run_id"`
	Signature   string       `yaml:"signature"`
	GeneratedAt time.Time    `yaml:"generated_at"`
	Failures    []FailedPair `yaml:"failures"`
}

// Pairs returns the failed pair ids, sorted.
func (r *FailedReport) Pairs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Pair)
	}
	sort.Strings(out)
	return out
}

// SaveFailed writes the failed-pair report of p.
func (f *Files) SaveFailed(p model.Params, r FailedReport) (string, error) {
	if r.Signature == "" {
		r.Signature = p.Signature()
	}
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Pair < r.Failures[j].Pair })

	data, err := yaml.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal failed pairs")
	}
	path := f.Path(FailedPairsFileName(p))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "store: write %s", path)
	}
	return path, nil
}

// LoadFailed reads the failed-pair report of p. A missing report means no
// pair is known to have failed and yields an empty report.
func (f *Files) LoadFailed(p model.Params) (*FailedReport, error) {
	path := f.Path(FailedPairsFileName(p))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &FailedReport{Signature: p.Signature()}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", path)
	}
	var r FailedReport
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "store: parse %s", path)
	}
	return &r, nil
}

// rosterFile accepts either a bare list of pair ids or a mapping with a
// "pairs" key.
type rosterFile struct {
	Pairs []string `yaml:"pairs"`
}

// ReadRoster loads a roster of pair ids from a YAML file. Ids are
// canonicalised and deduplicated; an invalid id wraps
// model.ErrConfiguration.
func ReadRoster(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read roster %s", path)
	}
	var ids []string
	if err := yaml.Unmarshal(data, &ids); err != nil {
		var rf rosterFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, eris.Wrapf(model.ErrConfiguration, "store: parse roster %s: %v", path, err)
		}
		ids = rf.Pairs
	}
	return NormalizeRoster(ids)
}

// NormalizeRoster canonicalises and deduplicates pair ids, keeping the
// first occurrence order.
func NormalizeRoster(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, s := range ids {
		id, err := model.ParsePair(s)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
