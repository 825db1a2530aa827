// Package batch runs the per-pair density pipeline over a roster of
// country pairs.
package batch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/boundary"
	"github.com/sells-group/crossborder-kde/internal/clip"
	"github.com/sells-group/crossborder-kde/internal/contour"
	"github.com/sells-group/crossborder-kde/internal/geometry"
	"github.com/sells-group/crossborder-kde/internal/kde"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/mobility"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

// Pipeline produces the merged layer of one pair: extract each country's
// points, estimate the density, contour it into bands, clip the bands to
// the country's border and merge the two clipped layers.
type Pipeline struct {
	params    model.Params
	catalog   levels.Catalog
	source    mobility.Source
	borders   *boundary.Dataset
	files     *store.Files
	keepBands bool

	extractor *mobility.Extractor
	inverse   geometry.Transform
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFiles persists every merged layer through f.
func WithFiles(f *store.Files) PipelineOption {
	return func(p *Pipeline) { p.files = f }
}

// WithKeepBands also persists the unclipped bands of each country. It has
// no effect without WithFiles.
func WithKeepBands(keep bool) PipelineOption {
	return func(p *Pipeline) { p.keepBands = keep }
}

// NewPipeline validates params and wires the collaborators. The border
// dataset must already be in the coordinate system of params.
func NewPipeline(params model.Params, catalog levels.Catalog, source mobility.Source, borders *boundary.Dataset, opts ...PipelineOption) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if source == nil || borders == nil {
		return nil, eris.Wrap(model.ErrConfiguration, "batch: pipeline needs a mobility source and a border dataset")
	}
	if borders.EPSG() != params.EPSG {
		return nil, eris.Wrapf(model.ErrConfiguration, "batch: borders in epsg %d, pipeline in epsg %d", borders.EPSG(), params.EPSG)
	}
	ext, err := mobility.NewExtractor(params)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		params:    params,
		catalog:   catalog,
		source:    source,
		borders:   borders,
		extractor: ext,
	}
	if params.Metric == model.MetricHaversine {
		inv, err := geometry.NewTransform(params.EPSG, geometry.WGS84)
		if err != nil {
			return nil, err
		}
		p.inverse = inv
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Params returns the pipeline's parameters.
func (p *Pipeline) Params() model.Params { return p.params }

// RunPair produces, and persists when files are configured, the merged
// layer of pair.
func (p *Pipeline) RunPair(ctx context.Context, pair string) (*layer.Layer, error) {
	a, b, err := model.SplitPair(pair)
	if err != nil {
		return nil, err
	}
	records, err := p.source.Records(ctx, pair)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: records of %s", pair)
	}

	la, err := p.country(ctx, pair, a, records)
	if err != nil {
		return nil, err
	}
	lb, err := p.country(ctx, pair, b, records)
	if err != nil {
		return nil, err
	}
	merged, err := layer.Merge(pair, la, lb)
	if err != nil {
		return nil, err
	}

	if p.files != nil {
		if _, err := p.files.SavePair(ctx, pair, p.params, merged); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// CountryBands returns the unclipped density bands of country within pair.
func (p *Pipeline) CountryBands(ctx context.Context, pair, country string) ([]contour.Band, error) {
	records, err := p.source.Records(ctx, pair)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: records of %s", pair)
	}
	return p.bands(pair, country, records)
}

func (p *Pipeline) country(ctx context.Context, pair, country string, records []model.MovementRecord) (*layer.Layer, error) {
	log := zap.L().With(zap.String("pair", pair), zap.String("country", country))

	// The border lookup is cheap; fail before estimating.
	sel, err := p.borders.Select(pair, country)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: cancelled")
	}

	bands, err := p.bands(pair, country, records)
	if err != nil {
		return nil, err
	}

	if p.keepBands && p.files != nil {
		unclipped, err := layer.FromBands(bands, country, p.borders.Name(country))
		if err != nil {
			return nil, err
		}
		if _, err := p.files.SaveBands(ctx, pair, country, p.params, unclipped); err != nil {
			return nil, err
		}
	}

	clipped, err := clip.Clip(bands, sel)
	if err != nil {
		return nil, err
	}
	log.Debug("batch: country processed",
		zap.Int("bands", len(bands)),
		zap.Int("records", clipped.Len()),
	)
	return clipped, nil
}

func (p *Pipeline) bands(pair, country string, records []model.MovementRecord) ([]contour.Band, error) {
	points, err := p.extractor.Extract(records, pair, country)
	if err != nil {
		return nil, err
	}
	est, err := kde.Fit(points, kde.Options{
		Bandwidth: p.params.Bandwidth,
		Kernel:    p.params.Kernel,
		Metric:    p.params.Metric,
		Inverse:   p.inverse,
	})
	if err != nil {
		return nil, err
	}
	grid := est.Grid()
	thresholds, err := kde.Thresholds(grid, p.catalog.Thresholds())
	if err != nil {
		return nil, eris.Wrapf(err, "batch: thresholds for %s in %s", country, pair)
	}
	return contour.Extract(grid, thresholds, p.catalog)
}
