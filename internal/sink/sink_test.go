package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/dataset"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
	"github.com/smartystreets/goconvey/convey"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

type aggRow struct {
	App             *string  `parquet:"name=app, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Month           *string  `parquet:"name=month, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TotalScreenTime *int64   `parquet:"name=total_screen_time, type=INT64, repetitiontype=OPTIONAL"`
	AvgAdhdScore    *float64 `parquet:"name=avg_adhd_score, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func aggregateTable() *dataset.Table {
	return &dataset.Table{
		Schema: dataset.Schema{
			{Name: "app", Kind: dataset.KindString},
			{Name: "month", Kind: dataset.KindString},
			{Name: "total_screen_time", Kind: dataset.KindInteger},
			{Name: "avg_adhd_score", Kind: dataset.KindDouble},
		},
		Rows: [][]any{
			{"Insta", "2024-01", int64(100), 5.0},
			{"TikTok", "2024-01", int64(300), 6.0},
			{"YouTube", "2024-02", nil, nil},
		},
	}
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestParseWriteMode(t *testing.T) {
	convey.Convey("Write modes parse case-insensitively", t, func() {
		for in, want := range map[string]WriteMode{
			"":              ModeErrorIfExists,
			"error":         ModeErrorIfExists,
			"ErrorIfExists": ModeErrorIfExists,
			"OVERWRITE":     ModeOverwrite,
			"append":        ModeAppend,
			"ignore":        ModeIgnore,
		} {
			got, err := ParseWriteMode(in)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldEqual, want)
		}
		_, err := ParseWriteMode("upsert")
		convey.So(errors.Is(err, ErrUnknownWriteMode), convey.ShouldBeTrue)
	})
}

func TestPrepare(t *testing.T) {
	convey.Convey("Given a destination that already holds a part", t, func() {
		ctx := context.Background()
		store := objstore.NewLocalStore()
		dir := t.TempDir()
		dest := objstore.MustParseURI(filepath.Join(dir, "agg"))
		_ = os.MkdirAll(filepath.Join(dir, "agg"), 0o755)
		_ = os.WriteFile(filepath.Join(dir, "agg", "part-00000-old.csv"), []byte("x\n"), 0o644)

		convey.Convey("errorifexists refuses", func() {
			ok, err := Prepare(ctx, store, dest, ModeErrorIfExists)
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(errors.Is(err, ErrDestinationExists), convey.ShouldBeTrue)
		})

		convey.Convey("ignore skips silently", func() {
			ok, err := Prepare(ctx, store, dest, ModeIgnore)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("overwrite clears the directory", func() {
			ok, err := Prepare(ctx, store, dest, ModeOverwrite)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			exists, _ := store.Exists(ctx, dest)
			convey.So(exists, convey.ShouldBeFalse)
		})

		convey.Convey("append keeps existing parts", func() {
			ok, err := Prepare(ctx, store, dest, ModeAppend)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(listNames(t, filepath.Join(dir, "agg")), convey.ShouldResemble, []string{"part-00000-old.csv"})
		})
	})

	convey.Convey("Given an empty destination every mode proceeds", t, func() {
		ctx := context.Background()
		dest := objstore.MustParseURI(filepath.Join(t.TempDir(), "fresh"))
		for _, mode := range []WriteMode{ModeErrorIfExists, ModeIgnore, ModeOverwrite, ModeAppend} {
			ok, err := Prepare(ctx, objstore.NewLocalStore(), dest, mode)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
		}
	})
}

func TestWriteCSV(t *testing.T) {
	convey.Convey("Given cleaned rows", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		dest := objstore.MustParseURI(filepath.Join(dir, "clean"))
		table := &dataset.Table{
			Schema: dataset.Schema{
				{Name: "app", Kind: dataset.KindString},
				{Name: "date", Kind: dataset.KindString},
				{Name: "screen_time_min", Kind: dataset.KindInteger},
				{Name: "adhd_score", Kind: dataset.KindDouble},
			},
			Rows: [][]any{
				{"TikTok", "2024-01-10", int64(300), 6.0},
				{"Insta, Inc", "2024-01-02", int64(100), nil},
			},
		}

		convey.Convey("When written without a header", func() {
			res, err := WriteCSV(ctx, objstore.NewLocalStore(), dest, table, Options{})
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Rows, convey.ShouldEqual, 2)
			convey.So(res.Parts, convey.ShouldHaveLength, 1)

			names := listNames(t, filepath.Join(dir, "clean"))
			convey.So(names, convey.ShouldHaveLength, 2)
			convey.So(names[0], convey.ShouldEqual, SuccessMarker)
			convey.So(names[1], convey.ShouldStartWith, "part-00000-")
			convey.So(names[1], convey.ShouldEndWith, "-c000.csv")

			body, _ := os.ReadFile(filepath.Join(dir, "clean", names[1]))
			convey.So(string(body), convey.ShouldEqual,
				"TikTok,2024-01-10,300,6.0\n\"Insta, Inc\",2024-01-02,100,\n")
			convey.So(res.Bytes, convey.ShouldEqual, int64(len(body)))
		})

		convey.Convey("When written with a header", func() {
			res, err := WriteCSV(ctx, objstore.NewLocalStore(), dest, table, Options{Header: true})
			convey.So(err, convey.ShouldBeNil)
			body, _ := os.ReadFile(res.Parts[0].Key)
			convey.So(strings.SplitN(string(body), "\n", 2)[0], convey.ShouldEqual,
				"app,date,screen_time_min,adhd_score")
		})
	})
}

func TestWriteParquet(t *testing.T) {
	convey.Convey("Given the monthly aggregate", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		tempDir := filepath.Join(dir, "staging")
		dest := objstore.MustParseURI(filepath.Join(dir, "agg"))

		res, err := WriteParquet(ctx, objstore.NewLocalStore(), dest, aggregateTable(), Options{TempDir: tempDir, RunID: "r-1"})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then one snappy part and a marker are written", func() {
			names := listNames(t, filepath.Join(dir, "agg"))
			convey.So(names, convey.ShouldHaveLength, 2)
			convey.So(names[0], convey.ShouldEqual, SuccessMarker)
			convey.So(names[1], convey.ShouldEndWith, "-c000.snappy.parquet")
			convey.So(res.Rows, convey.ShouldEqual, 3)
			convey.So(res.Bytes, convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("Then the staging file is removed", func() {
			convey.So(listNames(t, tempDir), convey.ShouldBeEmpty)
		})

		convey.Convey("Then the part reads back with nulls intact", func() {
			fr, err := local.NewLocalFileReader(res.Parts[0].Key)
			convey.So(err, convey.ShouldBeNil)
			defer fr.Close()

			pr, err := reader.NewParquetReader(fr, new(aggRow), 1)
			convey.So(err, convey.ShouldBeNil)
			defer pr.ReadStop()

			rows := make([]aggRow, pr.GetNumRows())
			convey.So(pr.Read(&rows), convey.ShouldBeNil)
			convey.So(rows, convey.ShouldHaveLength, 3)

			convey.So(*rows[1].App, convey.ShouldEqual, "TikTok")
			convey.So(*rows[1].Month, convey.ShouldEqual, "2024-01")
			convey.So(*rows[1].TotalScreenTime, convey.ShouldEqual, int64(300))
			convey.So(*rows[1].AvgAdhdScore, convey.ShouldEqual, 6.0)
			convey.So(rows[2].TotalScreenTime, convey.ShouldBeNil)
			convey.So(rows[2].AvgAdhdScore, convey.ShouldBeNil)
		})
	})

	convey.Convey("Column names the schema syntax cannot carry are rejected", t, func() {
		_, err := parquetSchema(dataset.Schema{{Name: "a,b", Kind: dataset.KindString}})
		convey.So(err, convey.ShouldNotBeNil)
	})

	convey.Convey("Values are converted to the column's physical type", t, func() {
		convey.So(parquetValue(dataset.KindDouble, int64(3)), convey.ShouldEqual, 3.0)
		convey.So(parquetValue(dataset.KindString, int64(3)), convey.ShouldEqual, "3")
		convey.So(parquetValue(dataset.KindInteger, "x"), convey.ShouldBeNil)
		convey.So(parquetValue(dataset.KindBoolean, true), convey.ShouldEqual, true)
	})
}
