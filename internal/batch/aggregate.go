package batch

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/layer"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

// AggregateFiles loads the merged layer of every roster pair that is not
// listed in the failed-pair report of params, aggregates the layers in
// mode and saves the result. Pairs whose merged file is missing are
// skipped with a warning.
func AggregateFiles(ctx context.Context, files *store.Files, params model.Params, roster []string, mode aggregate.Mode, agg aggregate.Aggregator) (*layer.Layer, string, error) {
	failed, err := files.LoadFailed(params)
	if err != nil {
		return nil, "", err
	}
	exclude := make(map[string]bool)
	for _, id := range failed.Pairs() {
		exclude[id] = true
	}

	layers := make(map[string]*layer.Layer, len(roster))
	for _, pair := range roster {
		if exclude[pair] {
			continue
		}
		l, err := files.LoadPair(ctx, pair, params)
		if errors.Is(err, model.ErrDataAbsent) {
			zap.L().Warn("batch: merged layer missing, skipping pair", zap.String("pair", pair), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, "", eris.Wrapf(err, "batch: load %s", pair)
		}
		layers[pair] = l
	}

	out, err := agg.Aggregate(layers, mode)
	if err != nil {
		return nil, "", err
	}
	if out.EPSG == 0 {
		out.EPSG = params.EPSG
	}
	path, err := files.SaveAggregate(ctx, params, mode, out)
	if err != nil {
		return nil, "", err
	}
	zap.L().Info("batch: aggregate saved",
		zap.String("path", path),
		zap.Int("pairs", len(layers)),
		zap.Int("excluded", len(exclude)),
	)
	return out, path, nil
}
