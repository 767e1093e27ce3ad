package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/config"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/etl"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/logger"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/metrics"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(ctx, "pipeline failed", logger.Error(err))
	}
}

// run executes one job and flushes metrics whatever the outcome.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	s3, err := objstore.NewS3Store(objstore.S3Options{
		Region:         cfg.AWSRegion,
		Endpoint:       cfg.AWSEndpoint,
		ForcePathStyle: cfg.S3ForcePathStyle,
	})
	if err != nil {
		return err
	}
	store := objstore.NewRouter(s3, objstore.NewLocalStore())

	opts := []metrics.Option{
		metrics.WithTextfile(cfg.MetricsTextfile),
		metrics.WithPushGateway(cfg.MetricsPushURL),
	}
	if host, err := os.Hostname(); err == nil {
		opts = append(opts, metrics.WithGrouping("instance", host))
	}
	m := metrics.NewManager(opts...)

	pipeline, err := etl.New(cfg, store, log, m)
	if err != nil {
		return err
	}
	defer pipeline.Cleanup(ctx)

	log.Info(ctx, "starting screen-time ETL",
		logger.String("run_id", pipeline.RunID()),
		logger.String("input", cfg.SourcePath),
		logger.Duration("timeout", cfg.JobTimeout))

	jobCtx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
	defer cancel()

	stats, runErr := pipeline.Run(jobCtx)

	// The job context may have expired; metrics still go out.
	if err := m.Flush(context.WithoutCancel(ctx)); err != nil {
		log.Warn(ctx, "failed to flush metrics", logger.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	log.Info(ctx, "final stats",
		logger.Int("rows_ingested", stats.TotalRowsIngested),
		logger.Int("groups", stats.AggregateGroups),
		logger.Int("cleaned_rows", stats.CleanedRows),
		logger.Int("dropped_rows", stats.DroppedRows),
		logger.String("execution_time", stats.TotalExecutionTime))
	return nil
}
