// Package geofile reads and writes single-layer polygon feature files:
// GeoPackage on top of modernc.org/sqlite and ESRI shapefile through
// go-shp.
package geofile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crossborder-kde/internal/model"
)

// Supported file formats, named by their extension.
const (
	FormatGeoPackage = "gpkg"
	FormatShapefile  = "shp"
)

// Column types.
const (
	TypeText    = "TEXT"
	TypeReal    = "REAL"
	TypeInteger = "INTEGER"
)

// Column is one attribute column of a feature table.
type Column struct {
	Name string
	Type string
}

// Feature is one row: a polygonal geometry and its attributes.
type Feature struct {
	Geometry geom.Polygon
	Attrs    map[string]any
}

// Attr returns attribute name. A name longer than a shapefile field allows
// also matches its cut form.
func (f Feature) Attr(name string) any {
	if v, ok := f.Attrs[name]; ok {
		return v
	}
	if len(name) > maxFieldName {
		return f.Attrs[name[:maxFieldName]]
	}
	return nil
}

// String returns attribute name as a string, or "" when absent.
func (f Feature) String(name string) string {
	switch v := f.Attr(name).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns attribute name as a float64. ok is false when the value is
// absent or not numeric.
func (f Feature) Float(name string) (float64, bool) {
	switch v := f.Attr(name).(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Table is one feature table with its coordinate system.
type Table struct {
	Name     string
	EPSG     int
	Columns  []Column
	Features []Feature
}

// ParseFormat validates an output format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimPrefix(s, ".")); f {
	case FormatGeoPackage, FormatShapefile:
		return f, nil
	}
	return "", eris.Wrapf(model.ErrConfiguration, "geofile: unsupported format %q", s)
}

// FormatOf returns the format of path from its extension.
func FormatOf(path string) (string, error) {
	return ParseFormat(filepath.Ext(path))
}

// Write stores t at path in the format named by the extension.
func Write(ctx context.Context, path string, t Table) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if format == FormatShapefile {
		return WriteShapefile(path, t)
	}
	return WriteGeoPackage(ctx, path, t)
}

// Read loads layer from path in the format named by the extension.
// Shapefiles hold one layer and carry no EPSG code; epsg is used for them.
func Read(ctx context.Context, path, layer string, epsg int) (*Table, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if format == FormatShapefile {
		return ReadShapefile(path, epsg)
	}
	t, err := ReadGeoPackage(ctx, path, layer)
	if err != nil {
		return nil, err
	}
	if t.EPSG <= 0 && epsg > 0 {
		t.EPSG = epsg
	}
	return t, nil
}
