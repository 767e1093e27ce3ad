// Package config defines the job configuration and how it is loaded.
//
// Defaults describe the production job: read the screen-time CSV from
// the ADHD bucket, write monthly aggregates and cleaned rows to the accounting
// bucket, drop rows above 600 minutes.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Write modes accepted by WriteMode.
const (
	WriteModeErrorIfExists = "errorifexists"
	WriteModeOverwrite     = "overwrite"
	WriteModeAppend        = "append"
	WriteModeIgnore        = "ignore"
)

// Inputs accepted by AggregateSource.
const (
	AggregateSourceRaw     = "raw"
	AggregateSourceCleaned = "cleaned"
)

// Config contains the job configuration.
type Config struct {
	// SourcePath is a file, directory prefix or glob of CSV inputs.
	SourcePath string `koanf:"source_path"`

	// AggregatePath receives the monthly aggregate as Parquet.
	AggregatePath string `koanf:"aggregate_path"`

	// CleanedPath receives the filtered raw rows as CSV.
	CleanedPath string `koanf:"cleaned_path"`

	// OutlierThreshold is the inclusive upper bound on screen_time_min.
	OutlierThreshold float64 `koanf:"outlier_threshold"`

	// AggregateSource picks the rows the monthly aggregate is computed over:
	// every raw row, or only the rows that survive the outlier filter.
	AggregateSource string `koanf:"aggregate_source"`

	// WriteMode is one of errorifexists, overwrite, append, ignore.
	WriteMode string `koanf:"write_mode"`

	// CSVHeader writes a header line into cleaned CSV parts.
	CSVHeader bool `koanf:"csv_header"`

	// StrictDates fails the run when a month bucket is not YYYY-MM shaped.
	StrictDates bool `koanf:"strict_dates"`

	// Preflight uploads and deletes a probe object before processing.
	Preflight bool `koanf:"preflight"`

	AWSRegion        string `koanf:"aws_region"`
	AWSEndpoint      string `koanf:"aws_endpoint"`
	S3ForcePathStyle bool   `koanf:"s3_force_path_style"`

	// WorkerCount bounds concurrent file downloads during ingest.
	WorkerCount int `koanf:"worker_count"`

	// TempDir stages Parquet files before upload.
	TempDir string `koanf:"temp_dir"`

	JobTimeout time.Duration `koanf:"job_timeout"`

	// StatsPath is where the run summary JSON goes. Empty disables it.
	StatsPath string `koanf:"stats_path"`

	MetricsTextfile string `koanf:"metrics_textfile"`
	MetricsPushURL  string `koanf:"metrics_push_url"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		SourcePath:       "s3://rakesh-adhd-bucket/adhd_screen_time.csv",
		AggregatePath:    "s3://rakesh-accounting-bucket/processed/agg_data/",
		CleanedPath:      "s3://rakesh-accounting-bucket/processed/clean_data/",
		OutlierThreshold: 600,
		AggregateSource:  AggregateSourceRaw,
		WriteMode:        WriteModeErrorIfExists,
		AWSRegion:        "us-east-1",
		WorkerCount:      runtime.NumCPU() * 2,
		TempDir:          "/tmp/parquet_temp",
		JobTimeout:       6 * time.Hour,
		StatsPath:        "etl_stats.json",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Validate checks the configuration for values the job cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.SourcePath) == "":
		return fmt.Errorf("%w: source_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.AggregatePath) == "":
		return fmt.Errorf("%w: aggregate_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.CleanedPath) == "":
		return fmt.Errorf("%w: cleaned_path must not be empty", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.JobTimeout <= 0:
		return fmt.Errorf("%w: job_timeout must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.WriteMode) {
	case WriteModeErrorIfExists, "error", "default", WriteModeOverwrite, WriteModeAppend, WriteModeIgnore:
	default:
		return fmt.Errorf("%w: unknown write_mode %q", ErrInvalidConfig, c.WriteMode)
	}

	switch strings.ToLower(c.AggregateSource) {
	case AggregateSourceRaw, AggregateSourceCleaned:
	default:
		return fmt.Errorf("%w: aggregate_source must be raw or cleaned, got %q", ErrInvalidConfig, c.AggregateSource)
	}
	return nil
}
