package geofile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// dBase limits.
const (
	maxFieldName = 10
	textWidth    = 254
)

// WriteShapefile writes t as a polygon shapefile. Field names are cut to
// the dBase limit of ten characters. Features without geometry are skipped.
func WriteShapefile(path string, t Table) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "geofile: create shapefile %s", path)
	}
	defer w.Close()

	fields := make([]shp.Field, len(t.Columns))
	for i, c := range t.Columns {
		name := c.Name
		if len(name) > maxFieldName {
			name = name[:maxFieldName]
		}
		switch c.Type {
		case TypeReal:
			fields[i] = shp.FloatField(name, 24, 8)
		case TypeInteger:
			fields[i] = shp.NumberField(name, 18)
		default:
			fields[i] = shp.StringField(name, textWidth)
		}
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrapf(err, "geofile: set fields of %s", path)
	}

	var skipped int
	for _, f := range t.Features {
		if geometry.Empty(f.Geometry) {
			skipped++
			continue
		}
		row := int(w.Write(toShape(f.Geometry)))
		for i, c := range t.Columns {
			v, ok := dbfValue(f.Attrs[c.Name], c.Type)
			if !ok {
				continue
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "geofile: write %s of row %d", c.Name, row)
			}
		}
	}
	if skipped > 0 {
		zap.L().Debug("geofile: skipped empty features",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return nil
}

// ReadShapefile loads every polygon record of the shapefile at path. The
// coordinates are taken to be in epsg.
func ReadShapefile(path string, epsg int) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(model.ErrDataAbsent, "geofile: %s does not exist", path)
		}
		return nil, eris.Wrapf(err, "geofile: stat %s", path)
	}
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geofile: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	decode, err := charsetDecoder(path)
	if err != nil {
		return nil, err
	}

	fields := reader.Fields()
	t := &Table{
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		EPSG:    epsg,
		Columns: make([]Column, len(fields)),
	}
	for i, f := range fields {
		t.Columns[i] = Column{Name: strings.TrimRight(f.String(), "\x00"), Type: columnType(f.Fieldtype)}
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		p, ok := fromShape(shape)
		if !ok {
			skipped++
			continue
		}
		f := Feature{Geometry: p, Attrs: make(map[string]any, len(fields))}
		for i, c := range t.Columns {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if c.Type == TypeText {
				raw = decode(raw)
			}
			f.Attrs[c.Name] = parseDBF(raw, c.Type)
		}
		t.Features = append(t.Features, f)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "geofile: read shapefile %s", path)
	}
	if skipped > 0 {
		zap.L().Debug("geofile: skipped non-polygon records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return t, nil
}

// charsetDecoder returns the decoder named by the .cpg sidecar of path.
// Without a sidecar, attributes are taken to be UTF-8.
func charsetDecoder(path string) (func(string) string, error) {
	identity := func(s string) string { return s }
	data, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".cpg")
	if err != nil {
		return identity, nil
	}
	charset := strings.TrimSpace(string(data))
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return identity, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "geofile: unsupported charset %q in %s", charset, path)
	}
	dec := enc.NewDecoder()
	return func(s string) string {
		out, err := dec.String(s)
		if err != nil {
			return s
		}
		return out
	}, nil
}

// toShape converts p to a shapefile polygon with outer rings clockwise and
// holes counter-clockwise.
func toShape(p geom.Polygon) *shp.Polygon {
	var parts [][]shp.Point
	for _, c := range geometry.Nest(p) {
		parts = append(parts, shapeRing(c.Outer, true))
		for _, h := range c.Holes {
			parts = append(parts, shapeRing(h, false))
		}
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

func shapeRing(r geom.Path, clockwise bool) []shp.Point {
	out := make([]shp.Point, 0, len(r)+1)
	for _, pt := range r {
		out = append(out, shp.Point{X: pt.X, Y: pt.Y})
	}
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	if (geometry.SignedArea(r) > 0) == clockwise {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func fromShape(s shp.Shape) (geom.Polygon, bool) {
	var parts []int32
	var points []shp.Point
	switch v := s.(type) {
	case *shp.Polygon:
		parts, points = v.Parts, v.Points
	case *shp.PolygonZ:
		parts, points = v.Parts, v.Points
	case *shp.PolygonM:
		parts, points = v.Parts, v.Points
	default:
		return nil, false
	}
	var out geom.Polygon
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		ring := make(geom.Path, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, geom.Point{X: pt.X, Y: pt.Y})
		}
		out = append(out, ring)
	}
	return out, true
}

func dbfValue(v any, typ string) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case float64:
		if typ == TypeInteger {
			return int(x), true
		}
		return x, true
	case int:
		if typ == TypeReal {
			return float64(x), true
		}
		return x, true
	case int64:
		if typ == TypeReal {
			return float64(x), true
		}
		return int(x), true
	case string:
		if len(x) > textWidth {
			x = x[:textWidth]
		}
		return x, true
	default:
		return nil, false
	}
}

func parseDBF(s, typ string) any {
	if s == "" {
		return nil
	}
	switch typ {
	case TypeReal:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	case TypeInteger:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return s
}

func columnType(t byte) string {
	switch t {
	case 'F':
		return TypeReal
	case 'N':
		return TypeInteger
	default:
		return TypeText
	}
}
