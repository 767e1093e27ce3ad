// Package etl runs the screen-time job: ingest the raw CSV, bucket rows by
// month, aggregate per app and month, drop outliers, and write both results.
package etl

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/config"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/dataset"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/engine"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/sink"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/logger"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/metrics"
)

// Column names of the raw and aggregate records.
const (
	ColApp             = "app"
	ColDate            = "date"
	ColScreenTime      = "screen_time_min"
	ColAdhdScore       = "adhd_score"
	ColMonth           = "month"
	ColTotalScreenTime = "total_screen_time"
	ColAvgAdhdScore    = "avg_adhd_score"
)

// Pipeline is one configured run of the job.
type Pipeline struct {
	cfg     *config.Config
	store   objstore.Store
	log     logger.Logger
	metrics *metrics.Manager

	source    objstore.URI
	aggregate objstore.URI
	cleaned   objstore.URI
	mode      sink.WriteMode
	runID     string

	// tempDir is private to this run, created under cfg.TempDir.
	tempDir string
}

// New validates the paths in cfg and creates a run directory under
// cfg.TempDir. A nil
// metrics manager gets a private one that is never flushed.
func New(cfg *config.Config, store objstore.Store, log logger.Logger, m *metrics.Manager) (*Pipeline, error) {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewManager()
	}

	source, err := objstore.ParseURI(cfg.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: source_path: %v", ErrInvalidPath, err)
	}
	aggregate, err := objstore.ParseURI(cfg.AggregatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate_path: %v", ErrInvalidPath, err)
	}
	cleaned, err := objstore.ParseURI(cfg.CleanedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cleaned_path: %v", ErrInvalidPath, err)
	}
	if aggregate.String() == cleaned.String() {
		return nil, fmt.Errorf("%w: aggregate and cleaned outputs share %s", ErrInvalidPath, aggregate)
	}
	mode, err := sink.ParseWriteMode(cfg.WriteMode)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	tempDir, err := os.MkdirTemp(cfg.TempDir, "screentime-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	runID := uuid.NewString()
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		log:       log.Named("etl").With(logger.String("run_id", runID)),
		metrics:   m,
		source:    source,
		aggregate: aggregate,
		cleaned:   cleaned,
		mode:      mode,
		runID:     runID,
		tempDir:   tempDir,
	}, nil
}

// RunID identifies this pipeline's run in logs, metadata and stats.
func (p *Pipeline) RunID() string { return p.runID }

// Run executes the job once. The two writes are not transactional: a failure
// writing the cleaned rows leaves the aggregate in place.
func (p *Pipeline) Run(ctx context.Context) (stats Stats, err error) {
	start := time.Now()
	stats.RunID = p.runID
	p.log.Info(ctx, "starting ETL pipeline",
		logger.String("input", p.source.String()),
		logger.String("aggregate", p.aggregate.String()),
		logger.String("cleaned", p.cleaned.String()),
		logger.String("write_mode", string(p.mode)),
		logger.Int("workers", p.cfg.WorkerCount))

	defer func() {
		p.metrics.RecordOutcome(err == nil, time.Now())
		stats.finish(time.Since(start))
		if err != nil {
			p.log.Error(ctx, "pipeline failed", logger.Error(err), logger.Duration("elapsed", time.Since(start)))
			return
		}
		p.log.Info(ctx, "ETL pipeline completed", logger.Duration("elapsed", time.Since(start)))
		writeStats(ctx, p.log, p.cfg.StatsPath, stats)
	}()

	if p.cfg.Preflight {
		if err := p.preflight(ctx); err != nil {
			return stats, err
		}
	}

	table, err := p.ingest(ctx, &stats)
	if err != nil {
		return stats, err
	}

	sess, err := engine.Open(ctx)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			p.log.Warn(ctx, "failed to close processing session", logger.Error(cerr))
		}
	}()

	if err := sess.Load(ctx, table); err != nil {
		return stats, err
	}
	if err := p.derive(ctx, sess, &stats); err != nil {
		return stats, err
	}

	agg, err := p.aggregateRows(ctx, sess, &stats)
	if err != nil {
		return stats, err
	}

	clean, err := p.filter(ctx, sess, &stats)
	if err != nil {
		return stats, err
	}

	if err := p.write(ctx, agg, clean, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (p *Pipeline) preflight(ctx context.Context) error {
	p.log.Info(ctx, "testing destination access")
	for _, dest := range []objstore.URI{p.aggregate, p.cleaned} {
		if err := p.store.Probe(ctx, dest); err != nil {
			return fmt.Errorf("destination access test failed for %s: %w", dest, err)
		}
	}
	p.log.Info(ctx, "destination access test successful")
	return nil
}

func (p *Pipeline) ingest(ctx context.Context, stats *Stats) (*dataset.Table, error) {
	t0 := time.Now()
	table, rs, err := dataset.Read(ctx, p.store, p.source, dataset.ReadOptions{
		Workers: p.cfg.WorkerCount,
		Logger:  p.log,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", p.source, err)
	}
	p.metrics.ObserveStage(metrics.StageIngest, time.Since(t0))
	p.metrics.RecordIngest(rs.Files, rs.Rows, rs.Malformed, rs.Bytes)

	stats.TotalFilesFound = rs.Files
	stats.TotalRowsIngested = rs.Rows
	stats.MalformedRows = rs.Malformed
	stats.TotalBytesRead = rs.Bytes

	if err := table.Schema.Require(ColApp, ColDate, ColScreenTime, ColAdhdScore); err != nil {
		return nil, err
	}
	if rs.Malformed > 0 {
		p.log.Warn(ctx, "skipped malformed rows", logger.Int("rows", rs.Malformed))
	}
	p.log.Info(ctx, "ingested rows",
		logger.Int("files", rs.Files),
		logger.Int("rows", rs.Rows),
		logger.Int64("bytes", rs.Bytes),
		logger.Duration("elapsed", time.Since(t0)))
	return table, nil
}

func (p *Pipeline) derive(ctx context.Context, sess *engine.Session, stats *Stats) error {
	t0 := time.Now()
	if err := sess.DeriveMonth(ctx, ColDate, ColMonth); err != nil {
		return err
	}
	bad, err := sess.MalformedMonths(ctx, ColMonth)
	if err != nil {
		return err
	}
	p.metrics.ObserveStage(metrics.StageDerive, time.Since(t0))
	stats.MalformedMonths = bad

	if bad > 0 {
		if p.cfg.StrictDates {
			return fmt.Errorf("%w: %d rows have a %s that does not start with YYYY-MM", ErrMalformedDate, bad, ColDate)
		}
		p.log.Warn(ctx, "rows with malformed month buckets", logger.Int("rows", bad))
	}
	return nil
}

func (p *Pipeline) aggregateRows(ctx context.Context, sess *engine.Session, stats *Stats) (*dataset.Table, error) {
	t0 := time.Now()
	spec := engine.AggregateSpec{
		GroupBy: []string{ColApp, ColMonth},
		Sum:     ColScreenTime,
		SumAs:   ColTotalScreenTime,
		Avg:     ColAdhdScore,
		AvgAs:   ColAvgAdhdScore,
	}
	if p.cfg.AggregateSource == config.AggregateSourceCleaned {
		spec.OnlyAtMost = ColScreenTime
		spec.Max = p.cfg.OutlierThreshold
	}

	agg, err := sess.Aggregate(ctx, spec)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStage(metrics.StageAggregate, time.Since(t0))
	p.metrics.RecordGroups(agg.Len())
	stats.AggregateGroups = agg.Len()

	p.log.Info(ctx, "aggregated monthly usage",
		logger.Int("groups", agg.Len()),
		logger.String("source_rows", p.cfg.AggregateSource))
	return agg, nil
}

func (p *Pipeline) filter(ctx context.Context, sess *engine.Session, stats *Stats) (*dataset.Table, error) {
	t0 := time.Now()
	clean, err := sess.Filter(ctx, ColScreenTime, p.cfg.OutlierThreshold)
	if err != nil {
		return nil, err
	}
	total, err := sess.Count(ctx)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStage(metrics.StageFilter, time.Since(t0))

	dropped := total - clean.Len()
	p.metrics.RecordFilter(clean.Len(), dropped)
	stats.CleanedRows = clean.Len()
	stats.DroppedRows = dropped

	p.log.Info(ctx, "filtered outliers",
		logger.Float64("threshold", p.cfg.OutlierThreshold),
		logger.Int("kept", clean.Len()),
		logger.Int("dropped", dropped))
	return clean, nil
}

func (p *Pipeline) write(ctx context.Context, agg, clean *dataset.Table, stats *Stats) error {
	t0 := time.Now()
	opts := sink.Options{
		TempDir: p.tempDir,
		Header:  p.cfg.CSVHeader,
		RunID:   p.runID,
		Logger:  p.log,
	}

	proceed, err := sink.Prepare(ctx, p.store, p.aggregate, p.mode)
	if err != nil {
		return err
	}
	if proceed {
		res, err := sink.WriteParquet(ctx, p.store, p.aggregate, agg, opts)
		if err != nil {
			return fmt.Errorf("write aggregate: %w", err)
		}
		p.metrics.RecordWrite("aggregate", res.Bytes)
		stats.TotalBytesWritten += res.Bytes
		stats.AggregateParts = partStrings(res.Parts)
	} else {
		stats.AggregateSkipped = true
		p.log.Info(ctx, "aggregate destination already populated, skipping", logger.String("path", p.aggregate.String()))
	}

	proceed, err = sink.Prepare(ctx, p.store, p.cleaned, p.mode)
	if err != nil {
		return err
	}
	if proceed {
		res, err := sink.WriteCSV(ctx, p.store, p.cleaned, clean, opts)
		if err != nil {
			return fmt.Errorf("write cleaned rows: %w", err)
		}
		p.metrics.RecordWrite("cleaned", res.Bytes)
		stats.TotalBytesWritten += res.Bytes
		stats.CleanedParts = partStrings(res.Parts)
	} else {
		stats.CleanedSkipped = true
		p.log.Info(ctx, "cleaned destination already populated, skipping", logger.String("path", p.cleaned.String()))
	}

	p.metrics.ObserveStage(metrics.StageSink, time.Since(t0))
	return nil
}

// Cleanup removes the run directory. Anything else under cfg.TempDir is left
// alone.
func (p *Pipeline) Cleanup(ctx context.Context) {
	p.log.Info(ctx, "cleaning up temp directory", logger.String("path", p.tempDir))
	if err := os.RemoveAll(p.tempDir); err != nil {
		p.log.Warn(ctx, "failed to clean up temp directory", logger.Error(err))
	}
}

func partStrings(parts []objstore.URI) []string {
	out := make([]string, 0, len(parts))
	for _, u := range parts {
		out = append(out, u.String())
	}
	return out
}
