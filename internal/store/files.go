package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/geofile"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// Attribute columns of every persisted layer.
const (
	ColLevel   = "level"
	ColLabel   = "label"
	ColCountry = "country_name"
	ColName    = "name"
	ColArea    = "area"
)

var layerColumns = []geofile.Column{
	{Name: ColLevel, Type: geofile.TypeReal},
	{Name: ColLabel, Type: geofile.TypeText},
	{Name: ColCountry, Type: geofile.TypeText},
	{Name: ColName, Type: geofile.TypeText},
	{Name: ColArea, Type: geofile.TypeReal},
}

// PairFileName is the merged layer file of pair.
func PairFileName(pair string, p model.Params, format string) string {
	return fmt.Sprintf("merged_%s_%s.%s", pair, p.Signature(), format)
}

// BandsFileName is the unclipped band file of country within pair.
func BandsFileName(pair, country string, p model.Params, format string) string {
	return fmt.Sprintf("geo_file_for_country_%s_in_country_pair_%s_%s.%s", country, pair, p.Signature(), format)
}

// AggregateFileName is the continental layer file for mode.
func AggregateFileName(p model.Params, mode aggregate.Mode, format string) string {
	return fmt.Sprintf("all_countries_merged_kde_%s_%s.%s", p.Signature(), mode, format)
}

// FailedPairsFileName is the failed-pair report of a parameter signature.
func FailedPairsFileName(p model.Params) string {
	return fmt.Sprintf("failed_pairs_%s.yaml", p.Signature())
}

// DiagnosticsFileName is the diagnostics workbook of a parameter signature.
func DiagnosticsFileName(p model.Params) string {
	return fmt.Sprintf("diagnostics_%s.xlsx", p.Signature())
}

// Files persists layers under one directory. Every file name is derived
// from the parameter signature so a later stage can find a file from the
// parameters alone.
type Files struct {
	Dir    string
	Format string
}

// NewFiles validates format and creates dir.
func NewFiles(dir, format string) (*Files, error) {
	if format == "" {
		format = geofile.FormatGeoPackage
	}
	f, err := geofile.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "store: create output dir %s", dir)
	}
	return &Files{Dir: dir, Format: f}, nil
}

// Path joins name to the store directory.
func (f *Files) Path(name string) string {
	return filepath.Join(f.Dir, name)
}

// SavePair writes the merged layer of pair and returns its path.
func (f *Files) SavePair(ctx context.Context, pair string, p model.Params, l *layer.Layer) (string, error) {
	return f.save(ctx, PairFileName(pair, p, f.Format), l)
}

// LoadPair reads the merged layer of pair written under the same
// parameters. A missing file wraps model.ErrDataAbsent.
func (f *Files) LoadPair(ctx context.Context, pair string, p model.Params) (*layer.Layer, error) {
	return f.load(ctx, PairFileName(pair, p, f.Format), p.EPSG)
}

// SaveBands writes the unclipped bands of country within pair.
func (f *Files) SaveBands(ctx context.Context, pair, country string, p model.Params, l *layer.Layer) (string, error) {
	return f.save(ctx, BandsFileName(pair, country, p, f.Format), l)
}

// SaveAggregate writes the continental layer of mode.
func (f *Files) SaveAggregate(ctx context.Context, p model.Params, mode aggregate.Mode, l *layer.Layer) (string, error) {
	return f.save(ctx, AggregateFileName(p, mode, f.Format), l)
}

// LoadAggregate reads the continental layer of mode.
func (f *Files) LoadAggregate(ctx context.Context, p model.Params, mode aggregate.Mode) (*layer.Layer, error) {
	return f.load(ctx, AggregateFileName(p, mode, f.Format), p.EPSG)
}

// StoredPairs lists the pairs that have a merged layer written under p,
// sorted.
func (f *Files) StoredPairs(p model.Params) ([]string, error) {
	prefix, suffix := "merged_", "_"+p.Signature()+"."+f.Format
	matches, err := filepath.Glob(f.Path(prefix + "*" + suffix))
	if err != nil {
		return nil, eris.Wrap(err, "store: list merged layers")
	}
	var pairs []string
	for _, m := range matches {
		id := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), suffix)
		if _, _, err := model.SplitPair(id); err != nil {
			continue
		}
		pairs = append(pairs, id)
	}
	sort.Strings(pairs)
	return pairs, nil
}

func (f *Files) save(ctx context.Context, name string, l *layer.Layer) (string, error) {
	path := f.Path(name)
	if err := geofile.Write(ctx, path, ToTable(tableName(name), l)); err != nil {
		return "", eris.Wrapf(err, "store: save %s", name)
	}
	zap.L().Debug("store: layer saved",
		zap.String("path", path),
		zap.Int("records", l.Len()),
	)
	return path, nil
}

func (f *Files) load(ctx context.Context, name string, epsg int) (*layer.Layer, error) {
	path := f.Path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, eris.Wrapf(model.ErrDataAbsent, "store: no file %s", name)
	}
	t, err := geofile.Read(ctx, path, "", epsg)
	if err != nil {
		return nil, eris.Wrapf(err, "store: load %s", name)
	}
	return FromTable(t), nil
}

// ToTable converts a layer to a feature table named name.
func ToTable(name string, l *layer.Layer) geofile.Table {
	catalog := levels.MustNew(levels.Fine)
	t := geofile.Table{Name: name, EPSG: l.EPSG, Columns: layerColumns}
	for _, r := range l.Records {
		t.Features = append(t.Features, geofile.Feature{
			Geometry: r.Geometry,
			Attrs: map[string]any{
				ColLevel:   levels.Round(r.Level),
				ColLabel:   catalog.Label(r.Level),
				ColCountry: r.Country,
				ColName:    r.Name,
				ColArea:    r.Area,
			},
		})
	}
	return t
}

// FromTable converts a feature table written by ToTable back to a layer.
func FromTable(t *geofile.Table) *layer.Layer {
	l := &layer.Layer{EPSG: t.EPSG}
	for _, ft := range t.Features {
		level, _ := ft.Float(ColLevel)
		area, _ := ft.Float(ColArea)
		l.Records = append(l.Records, layer.Record{
			Level:    levels.Round(level),
			Country:  ft.String(ColCountry),
			Name:     ft.String(ColName),
			Geometry: ft.Geometry,
			Area:     area,
		})
	}
	return l
}

func tableName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}
