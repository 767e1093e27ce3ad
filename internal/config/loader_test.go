package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.OutlierThreshold, convey.ShouldEqual, 600.0)
				convey.So(cfg.WriteMode, convey.ShouldEqual, config.WriteModeErrorIfExists)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SCREENTIME_SOURCE_PATH", "file:///data/in")
			_ = os.Setenv("SCREENTIME_OUTLIER_THRESHOLD", "480")
			_ = os.Setenv("SCREENTIME_WRITE_MODE", "Overwrite")
			_ = os.Setenv("SCREENTIME_WORKER_COUNT", "3")
			_ = os.Setenv("SCREENTIME_STRICT_DATES", "true")
			_ = os.Setenv("SCREENTIME_JOB_TIMEOUT", "90s")
			_ = os.Setenv("SCREENTIME_AGGREGATE_SOURCE", "Cleaned")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.SourcePath, convey.ShouldEqual, "file:///data/in")
				convey.So(cfg.OutlierThreshold, convey.ShouldEqual, 480.0)
				convey.So(cfg.WriteMode, convey.ShouldEqual, config.WriteModeOverwrite)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.StrictDates, convey.ShouldBeTrue)
				convey.So(cfg.JobTimeout, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.AggregateSource, convey.ShouldEqual, config.AggregateSourceCleaned)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
source_path: "s3://in-bucket/raw/*.csv"
aggregate_path: "s3://out-bucket/agg/"
cleaned_path: "s3://out-bucket/clean/"
csv_header: true
aws_endpoint: "http://localhost:9000"
s3_force_path_style: true
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SCREENTIME_CONFIG", tmpFile)
			_ = os.Setenv("SCREENTIME_CLEANED_PATH", "s3://env-wins/clean/")

			cfg, err := config.Load(ctx)

			convey.Convey("Then the file applies and env takes precedence", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.SourcePath, convey.ShouldEqual, "s3://in-bucket/raw/*.csv")
				convey.So(cfg.AggregatePath, convey.ShouldEqual, "s3://out-bucket/agg/")
				convey.So(cfg.CleanedPath, convey.ShouldEqual, "s3://env-wins/clean/")
				convey.So(cfg.CSVHeader, convey.ShouldBeTrue)
				convey.So(cfg.AWSEndpoint, convey.ShouldEqual, "http://localhost:9000")
				convey.So(cfg.S3ForcePathStyle, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("SCREENTIME_CONFIG", "/nonexistent/screentime.yaml")

			_, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the env holds an invalid write mode", func() {
			_ = os.Setenv("SCREENTIME_WRITE_MODE", "merge")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"SCREENTIME_CONFIG",
		"SCREENTIME_SOURCE_PATH",
		"SCREENTIME_CLEANED_PATH",
		"SCREENTIME_OUTLIER_THRESHOLD",
		"SCREENTIME_WRITE_MODE",
		"SCREENTIME_WORKER_COUNT",
		"SCREENTIME_STRICT_DATES",
		"SCREENTIME_JOB_TIMEOUT",
		"SCREENTIME_AGGREGATE_SOURCE",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "screentime-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
