package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/dataset"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/logger"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const (
	parquetParallelism = 4
	flushEvery         = 100000
)

// parquetSchema maps columns to writer metadata. Every column is optional.
func parquetSchema(s dataset.Schema) ([]string, error) {
	md := make([]string, len(s))
	for i, c := range s {
		if strings.ContainsAny(c.Name, ",=") {
			return nil, fmt.Errorf("column name %q cannot be used in a parquet schema", c.Name)
		}
		switch c.Kind {
		case dataset.KindInteger:
			md[i] = fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", c.Name)
		case dataset.KindDouble:
			md[i] = fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", c.Name)
		case dataset.KindBoolean:
			md[i] = fmt.Sprintf("name=%s, type=BOOLEAN, repetitiontype=OPTIONAL", c.Name)
		default:
			md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c.Name)
		}
	}
	return md, nil
}

// parquetValue converts a table value to the Go type the column writer
// expects for kind.
func parquetValue(kind dataset.Kind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case dataset.KindInteger:
		if x, ok := v.(int64); ok {
			return x
		}
	case dataset.KindDouble:
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		}
	case dataset.KindBoolean:
		if x, ok := v.(bool); ok {
			return x
		}
	default:
		return dataset.Format(v)
	}
	return nil
}

// WriteParquet writes t as one SNAPPY-compressed Parquet part under dest,
// staged in a local temp file, followed by the success marker.
func WriteParquet(ctx context.Context, store objstore.Store, dest objstore.URI, t *dataset.Table, opts Options) (Result, error) {
	log := opts.log()

	md, err := parquetSchema(t.Schema)
	if err != nil {
		return Result{}, err
	}

	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create temp directory: %w", err)
	}

	name := partName(0, newWriteID(), ".snappy.parquet")
	localFileName := filepath.Join(tempDir, "temp_"+name)
	defer func() {
		if err := os.Remove(localFileName); err != nil && !os.IsNotExist(err) {
			log.Warn(ctx, "failed to remove temp file", logger.String("file", localFileName), logger.Error(err))
		}
	}()

	log.Debug(ctx, "creating local parquet file", logger.String("file", localFileName))

	fw, err := local.NewLocalFileWriter(localFileName)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create local file writer: %w", err)
	}

	pw, err := writer.NewCSVWriter(md, fw, parquetParallelism)
	if err != nil {
		fw.Close()
		return Result{}, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range t.Rows {
		rec := make([]interface{}, len(row))
		for j, v := range row {
			rec[j] = parquetValue(t.Schema[j].Kind, v)
		}
		if err := pw.Write(rec); err != nil {
			fw.Close()
			return Result{}, fmt.Errorf("error writing record %d: %w", i, err)
		}

		if (i+1)%flushEvery == 0 {
			log.Debug(ctx, "flushing parquet row group", logger.Int("written", i+1), logger.Int("total", t.Len()))
			if err := pw.Flush(true); err != nil {
				fw.Close()
				return Result{}, fmt.Errorf("error flushing parquet rows: %w", err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return Result{}, fmt.Errorf("error in WriteStop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return Result{}, fmt.Errorf("error closing file writer: %w", err)
	}

	file, err := os.Open(localFileName)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open temp file for upload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("failed to get file info: %w", err)
	}

	part := dest.Join(name)
	log.Info(ctx, "uploading parquet part", logger.String("part", part.String()),
		logger.Int("rows", t.Len()), logger.Int64("bytes", info.Size()))

	if err := store.Put(ctx, part, file, metadata(opts, t.Len())); err != nil {
		return Result{}, err
	}
	if err := markSuccess(ctx, store, dest); err != nil {
		return Result{}, err
	}
	return Result{Parts: []objstore.URI{part}, Rows: t.Len(), Bytes: info.Size()}, nil
}
