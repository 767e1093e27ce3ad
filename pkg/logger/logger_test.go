package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	convey.Convey("Given a text logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		convey.So(InitWriter(&buf, "text"), convey.ShouldBeNil)
		convey.So(SetLevelString("info"), convey.ShouldBeNil)
		ctx := context.Background()

		convey.Convey("Info lines carry fields and the call site", func() {
			Get().Info(ctx, "ingest finished", Int("rows", 3), String("file", "a.csv"))
			out := buf.String()
			convey.So(out, convey.ShouldContainSubstring, "ingest finished")
			convey.So(out, convey.ShouldContainSubstring, "rows=3")
			convey.So(out, convey.ShouldContainSubstring, "file=a.csv")
			convey.So(out, convey.ShouldContainSubstring, "logger_test.go:")
		})

		convey.Convey("Debug lines are dropped at info level", func() {
			Get().Debug(ctx, "noisy")
			convey.So(buf.String(), convey.ShouldBeEmpty)
		})

		convey.Convey("Named loggers tag the component", func() {
			Named("sink").With(String("run_id", "r1")).Warn(ctx, "destination exists")
			out := buf.String()
			convey.So(out, convey.ShouldContainSubstring, "component=sink")
			convey.So(out, convey.ShouldContainSubstring, "run_id=r1")
		})
	})

	convey.Convey("Given a json logger", t, func() {
		var buf bytes.Buffer
		convey.So(InitWriter(&buf, "json"), convey.ShouldBeNil)
		Get().Error(context.Background(), "write failed", Int64("bytes", 42))

		var line map[string]any
		convey.So(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line), convey.ShouldBeNil)
		convey.So(line["msg"], convey.ShouldEqual, "write failed")
		convey.So(line["level"], convey.ShouldEqual, "ERROR")
		convey.So(line["bytes"], convey.ShouldEqual, float64(42))
	})

	convey.Convey("Unknown formats and levels are rejected", t, func() {
		convey.So(InitWriter(&bytes.Buffer{}, "xml"), convey.ShouldNotBeNil)
		convey.So(SetLevelString("loud"), convey.ShouldNotBeNil)
	})
}
