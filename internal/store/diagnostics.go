package store

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Sheet names of the diagnostics workbook.
const (
	SheetPairs  = "pairs"
	SheetLevels = "levels"
)

// SaveDiagnostics writes a workbook with one row per pair outcome and one
// row per pair, country and level holding the clipped area.
func (f *Files) SaveDiagnostics(p model.Params, outcomes []model.PairOutcome, layers map[string]*layer.Layer) (string, error) {
	wb := xlsx.NewFile()

	pairs, err := wb.AddSheet(SheetPairs)
	if err != nil {
		return "", eris.Wrap(err, "xlsx: add pairs sheet")
	}
	addRow(pairs, "pair", "status", "kind", "reason", "records", "area")
	sorted := append([]model.PairOutcome(nil), outcomes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pair < sorted[j].Pair })
	for _, o := range sorted {
		row := pairs.AddRow()
		row.AddCell().SetString(o.Pair)
		row.AddCell().SetString(string(o.Status))
		row.AddCell().SetString(string(o.Kind))
		row.AddCell().SetString(o.Reason)
		row.AddCell().SetInt(o.Records)
		row.AddCell().SetFloat(o.Area)
	}

	lv, err := wb.AddSheet(SheetLevels)
	if err != nil {
		return "", eris.Wrap(err, "xlsx: add levels sheet")
	}
	addRow(lv, "pair", "country", "level", "label", "records", "area")
	catalog := levels.MustNew(levels.Fine)
	ids := make([]string, 0, len(layers))
	for id := range layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, s := range summarize(layers[id]) {
			row := lv.AddRow()
			row.AddCell().SetString(id)
			row.AddCell().SetString(s.country)
			row.AddCell().SetFloat(levels.Round(s.level))
			row.AddCell().SetString(catalog.Label(s.level))
			row.AddCell().SetInt(s.records)
			row.AddCell().SetFloat(s.area)
		}
	}

	path := f.Path(DiagnosticsFileName(p))
	if err := wb.Save(path); err != nil {
		return "", eris.Wrapf(err, "xlsx: save %s", path)
	}
	return path, nil
}

type levelSummary struct {
	country string
	level   float64
	records int
	area    float64
}

// summarize groups l by country and level, countries ascending and levels
// descending within a country.
func summarize(l *layer.Layer) []levelSummary {
	type key struct {
		country string
		level   int
	}
	idx := make(map[key]int)
	var out []levelSummary
	if l == nil {
		return nil
	}
	for _, r := range l.Records {
		k := key{r.Country, levels.Key(r.Level)}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, levelSummary{country: r.Country, level: levels.Round(r.Level)})
		}
		out[i].records++
		out[i].area += r.Area
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].country != out[j].country {
			return out[i].country < out[j].country
		}
		return levels.Key(out[i].level) > levels.Key(out[j].level)
	})
	return out
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
