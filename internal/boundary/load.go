package boundary

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/crossborder-kde/internal/geofile"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/model"
)

// LoadOptions select the layer and columns of a boundary file.
type LoadOptions struct {
	Layer      string
	KeyColumn  string
	NameColumn string

	// SourceEPSG overrides the coordinate system stored in the file. It is
	// required for shapefiles.
	SourceEPSG int
	// TargetEPSG is the program coordinate system every region is
	// reprojected to.
	TargetEPSG int
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.KeyColumn == "" {
		o.KeyColumn = "CNTR_OD"
	}
	if o.NameColumn == "" {
		o.NameColumn = "NAME"
	}
	return o
}

// Load reads the boundary file at path, a GeoPackage or shapefile, and
// reprojects every region to opts.TargetEPSG.
func Load(ctx context.Context, path string, opts LoadOptions) (*Dataset, error) {
	opts = opts.withDefaults()
	if opts.TargetEPSG <= 0 {
		return nil, eris.Wrapf(model.ErrConfiguration, "boundary: invalid target epsg %d", opts.TargetEPSG)
	}

	t, err := geofile.Read(ctx, path, opts.Layer, 0)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", path)
	}
	src := t.EPSG
	if opts.SourceEPSG > 0 {
		src = opts.SourceEPSG
	}
	if src <= 0 {
		return nil, eris.Wrapf(model.ErrConfiguration, "boundary: %s has no coordinate system; set data.boundary_epsg", path)
	}
	if !hasColumn(t, opts.KeyColumn) {
		return nil, eris.Wrapf(model.ErrConfiguration, "boundary: %s has no key column %s", path, opts.KeyColumn)
	}
	tr, err := geometry.NewTransform(src, opts.TargetEPSG)
	if err != nil {
		return nil, err
	}

	regions := make([]Region, 0, len(t.Features))
	var skipped int
	for _, f := range t.Features {
		key := strings.ToUpper(strings.TrimSpace(f.String(opts.KeyColumn)))
		country := countryOf(key)
		if country == "" || geometry.Empty(f.Geometry) {
			skipped++
			continue
		}
		g, err := geometry.TransformPolygon(f.Geometry, tr)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: reproject %s", key)
		}
		regions = append(regions, Region{
			Key:      key,
			Country:  country,
			Name:     DisplayName(f.String(opts.NameColumn)),
			Geometry: g,
		})
	}
	if len(regions) == 0 {
		return nil, eris.Wrapf(model.ErrDataAbsent, "boundary: no usable regions in %s", path)
	}

	zap.L().Info("boundary: dataset loaded",
		zap.String("path", path),
		zap.Int("regions", len(regions)),
		zap.Int("skipped", skipped),
		zap.Int("source_epsg", src),
		zap.Int("epsg", opts.TargetEPSG),
	)
	return NewDataset(opts.TargetEPSG, regions), nil
}

// countryOf returns the country code that ends a composite key, or "" when
// the key is not of the form <A>_<B>_<C>.
func countryOf(key string) string {
	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return ""
	}
	if _, _, err := model.SplitPair(parts[0] + "_" + parts[1]); err != nil {
		return ""
	}
	c := parts[2]
	if c != parts[0] && c != parts[1] {
		return ""
	}
	return c
}

// DisplayName trims a region name and title-cases it when it is written
// entirely in upper case.
func DisplayName(s string) string {
	s = strings.TrimSpace(s)
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return s
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	if !hasLetter {
		return s
	}
	return cases.Title(language.Und).String(s)
}

func hasColumn(t *geofile.Table, name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
