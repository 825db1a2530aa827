package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/batch"
	"github.com/sells-group/crossborder-kde/internal/boundary"
	"github.com/sells-group/crossborder-kde/internal/levels"
	"github.com/sells-group/crossborder-kde/internal/mobility"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

// kdeEnv holds the loaded inputs and the pipeline needed by the pair and
// batch commands.
type kdeEnv struct {
	Params   model.Params
	Catalog  levels.Catalog
	Files    *store.Files
	Source   *mobility.Memory
	Borders  *boundary.Dataset
	Pipeline *batch.Pipeline
}

// initEnv validates the configuration for mode, loads the movement table
// and the border dataset once and builds the pipeline over them.
func initEnv(ctx context.Context, mode string) (*kdeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	params := cfg.Params()
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	files, err := store.NewFiles(cfg.Output.Dir, cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	source, err := mobility.LoadFile(ctx, cfg.Data.MobilityFile)
	if err != nil {
		return nil, eris.Wrap(err, "load movements")
	}

	borders, err := boundary.Load(ctx, cfg.Data.BoundaryFile, boundary.LoadOptions{
		Layer:      cfg.Data.BoundaryLayer,
		KeyColumn:  cfg.Data.BoundaryKeyColumn,
		NameColumn: cfg.Data.BoundaryNameColumn,
		SourceEPSG: cfg.Data.BoundaryEPSG,
		TargetEPSG: params.EPSG,
	})
	if err != nil {
		return nil, eris.Wrap(err, "load borders")
	}

	p, err := batch.NewPipeline(params, catalog, source, borders,
		batch.WithFiles(files),
		batch.WithKeepBands(cfg.Output.KeepBands),
	)
	if err != nil {
		return nil, err
	}

	zap.L().Info("inputs loaded",
		zap.String("signature", params.Signature()),
		zap.Int("movement_pairs", len(source.Pairs())),
		zap.Int("border_regions", borders.Len()),
	)

	return &kdeEnv{
		Params:   params,
		Catalog:  catalog,
		Files:    files,
		Source:   source,
		Borders:  borders,
		Pipeline: p,
	}, nil
}

// initLedger opens and migrates the run ledger. Callers should defer
// Close.
func initLedger(ctx context.Context) (*store.SQLiteLedger, error) {
	l, err := store.NewSQLite(cfg.Store.LedgerPath)
	if err != nil {
		return nil, err
	}
	if err := l.Migrate(ctx); err != nil {
		_ = l.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return l, nil
}

// resolveRoster picks the roster of a run: explicit pair ids first, then a
// roster file, then fallback.
func resolveRoster(pairs []string, rosterFile string, fallback func() ([]string, error)) ([]string, error) {
	var ids []string
	for _, p := range pairs {
		for _, s := range strings.Split(p, ",") {
			if s = strings.TrimSpace(s); s != "" {
				ids = append(ids, s)
			}
		}
	}
	if len(ids) > 0 {
		return store.NormalizeRoster(ids)
	}
	if rosterFile != "" {
		return store.ReadRoster(rosterFile)
	}
	roster, err := fallback()
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, eris.Wrap(model.ErrDataAbsent, "roster is empty")
	}
	return roster, nil
}

// applyOverrides copies command-line overrides of the estimation
// parameters into the loaded configuration.
func applyOverrides(bandwidth float64, kernel, metric string) {
	if bandwidth > 0 {
		cfg.KDE.Bandwidth = bandwidth
	}
	if kernel != "" {
		cfg.KDE.Kernel = kernel
	}
	if metric != "" {
		cfg.KDE.Metric = metric
	}
}
