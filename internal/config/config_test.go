package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it points at the production buckets", func() {
			convey.So(cfg.SourcePath, convey.ShouldEqual, "s3://rakesh-adhd-bucket/adhd_screen_time.csv")
			convey.So(cfg.AggregatePath, convey.ShouldEqual, "s3://rakesh-accounting-bucket/processed/agg_data/")
			convey.So(cfg.CleanedPath, convey.ShouldEqual, "s3://rakesh-accounting-bucket/processed/clean_data/")
			convey.So(cfg.OutlierThreshold, convey.ShouldEqual, 600.0)
			convey.So(cfg.WriteMode, convey.ShouldEqual, config.WriteModeErrorIfExists)
			convey.So(cfg.CSVHeader, convey.ShouldBeFalse)
			convey.So(cfg.AggregateSource, convey.ShouldEqual, config.AggregateSourceRaw)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.JobTimeout, convey.ShouldEqual, 6*time.Hour)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid values", t, func() {
		cases := map[string]func(c *config.Config){
			"empty source":    func(c *config.Config) { c.SourcePath = " " },
			"empty aggregate": func(c *config.Config) { c.AggregatePath = "" },
			"empty cleaned":   func(c *config.Config) { c.CleanedPath = "" },
			"zero workers":    func(c *config.Config) { c.WorkerCount = 0 },
			"zero timeout":    func(c *config.Config) { c.JobTimeout = 0 },
			"bad write mode":  func(c *config.Config) { c.WriteMode = "upsert" },
			"bad agg source":  func(c *config.Config) { c.AggregateSource = "both" },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldNotBeEmpty)
			_ = name
		}
	})
}
