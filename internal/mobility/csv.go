// Package mobility reads movement records and turns them into projected
// per-country point sets.
package mobility

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// row is one CSV line. distance_km and CNTR_OD are optional columns.
type row struct {
	StartLon     float64  `csv:"start_lon"`
	StartLat     float64  `csv:"start_lat"`
	EndLon       float64  `csv:"end_lon"`
	EndLat       float64  `csv:"end_lat"`
	StartCountry string   `csv:"CNTR_ID_start"`
	EndCountry   string   `csv:"CNTR_ID_end"`
	DistanceKM   *float64 `csv:"distance_km,omitempty"`
	Pair         string   `csv:"CNTR_OD,omitempty"`
}

var requiredColumns = []string{"start_lon", "start_lat", "end_lon", "end_lat", "CNTR_ID_start", "CNTR_ID_end"}

// ReadCSV decodes movement records from r. When the CNTR_OD column is
// absent or blank, the pair is derived from the two country codes.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.MovementRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	dec, err := csvutil.NewDecoder(cr)
	if err == io.EOF {
		return nil, eris.Wrap(model.ErrDataAbsent, "mobility: empty csv")
	}
	if err != nil {
		return nil, eris.Wrap(err, "mobility: read header")
	}
	if missing := missingColumns(dec.Header()); len(missing) > 0 {
		return nil, eris.Wrapf(model.ErrConfiguration, "mobility: missing columns %s", strings.Join(missing, ", "))
	}

	var out []model.MovementRecord
	for line := 2; ; line++ {
		if line%10000 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "mobility: context cancelled")
		}
		var rw row
		if err := dec.Decode(&rw); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "mobility: decode line %d", line)
		}
		out = append(out, rw.record())
	}
	return out, nil
}

func (rw row) record() model.MovementRecord {
	rec := model.MovementRecord{
		StartLon:     rw.StartLon,
		StartLat:     rw.StartLat,
		EndLon:       rw.EndLon,
		EndLat:       rw.EndLat,
		StartCountry: strings.ToUpper(strings.TrimSpace(rw.StartCountry)),
		EndCountry:   strings.ToUpper(strings.TrimSpace(rw.EndCountry)),
		DistanceKM:   rw.DistanceKM,
		Pair:         strings.ToUpper(strings.TrimSpace(rw.Pair)),
	}
	if rec.Pair == "" {
		rec.Pair = model.PairID(rec.StartCountry, rec.EndCountry)
	}
	return rec
}

func missingColumns(header []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// LoadFile reads the movement CSV at path into a Memory source.
func LoadFile(ctx context.Context, path string) (*Memory, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, eris.Wrapf(model.ErrDataAbsent, "mobility: %s does not exist", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mobility: open %s", path)
	}
	defer f.Close()

	records, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "mobility: read %s", path)
	}
	m := NewMemory(records)
	zap.L().Info("mobility: records loaded",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("pairs", len(m.byPair)),
	)
	return m, nil
}
