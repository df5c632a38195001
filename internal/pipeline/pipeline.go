// Package pipeline turns a directory of raster time slices into the hex
// feature table: discover, load, align, average, cover, sample, persist.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/citypath/internal/config"
	"github.com/sells-group/citypath/internal/hexgrid"
	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/monitoring"
	"github.com/sells-group/citypath/internal/raster"
)

// Writer persists a finished table together with its run record.
type Writer interface {
	ReplaceFeatures(ctx context.Context, run model.BuildRun, rows []model.HexFeatureRow) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock used for run timestamps.
func WithClock(c clockwork.Clock) Option { return func(p *Pipeline) { p.clock = c } }

// WithMetrics records build metrics.
func WithMetrics(m *monitoring.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithRunID fixes the run id instead of generating a uuid.
func WithRunID(id string) Option { return func(p *Pipeline) { p.runID = id } }

// Pipeline runs one offline build.
type Pipeline struct {
	cfg     *config.Config
	reader  raster.Reader
	writer  Writer
	clock   clockwork.Clock
	metrics *monitoring.Metrics
	runID   string
}

// New creates a Pipeline.
func New(cfg *config.Config, reader raster.Reader, writer Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		reader: reader,
		writer: writer,
		clock:  clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result summarizes a finished build.
type Result struct {
	Run      model.BuildRun
	Coverage *hexgrid.Coverage
	Stats    SampleStats
	Files    map[model.Layer][]string
	Layers   map[model.Layer]*raster.Raster
	Rows     []model.HexFeatureRow
}

// Run executes the build and persists the table.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := p.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	log := zap.L().With(zap.String("run_id", runID), zap.String("city", p.cfg.City.Name))
	log.Info("pipeline: starting build")

	started := p.clock.Now().UTC()
	res := &Result{}

	err := p.stage(log, "discover", func() error {
		files, err := Discover(p.cfg.Raster.Dir, map[model.Layer]string{
			model.LayerTemperature: p.cfg.Raster.TemperaturePattern,
			model.LayerVegetation:  p.cfg.Raster.VegetationPattern,
			model.LayerPopulation:  p.cfg.Raster.PopulationPattern,
		})
		res.Files = files
		return err
	})
	if err != nil {
		return nil, err
	}

	var ref raster.Grid
	err = p.stage(log, "reference", func() error {
		first := res.Files[model.LayerTemperature][0]
		r, err := p.reader.Read(first)
		if err != nil {
			return eris.Wrapf(err, "pipeline: read reference grid %s", first)
		}
		ref = r.Grid
		log.Info("pipeline: reference grid", zap.String("file", first), zap.Stringer("grid", ref))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(log, "aggregate", func() error {
		layers, err := p.aggregate(ctx, res.Files, ref)
		res.Layers = layers
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(log, "cover", func() error {
		bbox, err := hexgrid.BBoxFromSlice(p.cfg.City.BBox)
		if err != nil {
			return err
		}
		cov, err := hexgrid.Cover(bbox, p.cfg.City.CenterLat, p.cfg.City.CenterLon, hexgrid.CoverageOptions{
			Resolution: p.cfg.Hex.Resolution,
			MinRings:   p.cfg.Hex.MinRings,
			MaxRings:   p.cfg.Hex.MaxRings,
		})
		res.Coverage = cov
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(log, "sample", func() error {
		res.Rows, res.Stats = BuildTable(res.Coverage.Cells, res.Layers)
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	res.Run = model.BuildRun{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: p.clock.Now().UTC(),
		RowCount:   len(res.Rows),
		Resolution: p.cfg.Hex.Resolution,
		RefGrid:    ref.String(),
	}

	err = p.stage(log, "persist", func() error {
		return p.writer.ReplaceFeatures(ctx, res.Run, res.Rows)
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: persist")
	}

	if path := p.cfg.Pipeline.ManifestPath; path != "" {
		if err := WriteManifest(path, p.manifest(res)); err != nil {
			return nil, err
		}
	}

	p.record(res)
	log.Info("pipeline: build complete",
		zap.Int("cells", len(res.Coverage.Cells)),
		zap.Int("rows", len(res.Rows)),
		zap.Int("dropped", res.Stats.Dropped),
		zap.Int("rings", res.Coverage.Rings),
		zap.Bool("stable", res.Coverage.Stable),
	)
	return res, nil
}

// aggregate loads and aligns every slice onto ref, then averages each
// layer over time. Slices are processed concurrently; each layer's mean
// waits for all of its slices.
func (p *Pipeline) aggregate(ctx context.Context, files map[model.Layer][]string, ref raster.Grid) (map[model.Layer]*raster.Raster, error) {
	aligned := make(map[model.Layer][]*raster.Band, len(files))
	for layer, paths := range files {
		aligned[layer] = make([]*raster.Band, len(paths))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Pipeline.Workers, 1))

	for layer, paths := range files {
		for i, path := range paths {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				src, err := raster.Load(p.reader, path, layer)
				if err != nil {
					return eris.Wrapf(err, "pipeline: load %s slice %s", layer, path)
				}
				if p.metrics != nil {
					p.metrics.RastersRead.WithLabelValues(string(layer)).Inc()
				}

				out, err := raster.Align(src, ref)
				if err != nil {
					return eris.Wrapf(err, "pipeline: align %s slice %s", layer, path)
				}
				if p.metrics != nil {
					p.metrics.SlicesAligned.WithLabelValues(string(layer)).Inc()
				}

				// Each goroutine owns one index.
				aligned[layer][i] = out.Band
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[model.Layer]*raster.Raster, len(aligned))
	for _, layer := range model.Layers {
		bands, ok := aligned[layer]
		if !ok {
			continue
		}
		mean, err := raster.MeanStack(bands)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: average %s", layer)
		}
		zap.L().Debug("pipeline: layer averaged",
			zap.String("layer", string(layer)),
			zap.Int("slices", len(bands)),
			zap.Int("valid_pixels", mean.ValidCount()),
		)
		out[layer] = &raster.Raster{Grid: ref, Band: mean}
	}
	return out, nil
}

func (p *Pipeline) stage(log *zap.Logger, name string, fn func() error) error {
	start := p.clock.Now()
	err := fn()
	elapsed := p.clock.Since(start)

	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return nil
}

func (p *Pipeline) record(res *Result) {
	if p.metrics == nil {
		return
	}
	p.metrics.HexesCovered.Set(float64(len(res.Coverage.Cells)))
	p.metrics.RowsWritten.Set(float64(len(res.Rows)))
	p.metrics.RowsDropped.Set(float64(res.Stats.Dropped))
	for layer, n := range res.Stats.OutOfBounds {
		p.metrics.SamplesOutOfBound.WithLabelValues(string(layer)).Add(float64(n))
	}
}

func (p *Pipeline) manifest(res *Result) *Manifest {
	m := &Manifest{
		Run:     res.Run,
		City:    p.cfg.City.Name,
		BBox:    p.cfg.City.BBox,
		Grid:    res.Run.RefGrid,
		Rings:   res.Coverage.Rings,
		Stable:  res.Coverage.Stable,
		Cells:   len(res.Coverage.Cells),
		Dropped: res.Stats.Dropped,
		Layers:  make(map[string]ManifestLayer, len(res.Files)),
	}
	for layer, files := range res.Files {
		ml := ManifestLayer{Files: files, OutOfBounds: res.Stats.OutOfBounds[layer]}
		if r, ok := res.Layers[layer]; ok {
			ml.ValidPixels = r.Band.ValidCount()
		}
		m.Layers[string(layer)] = ml
	}
	return m
}
