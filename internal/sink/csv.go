package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/dataset"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/logger"
)

// WriteCSV writes t as one comma-delimited part under dest followed by the
// success marker. Nulls are empty fields.
func WriteCSV(ctx context.Context, store objstore.Store, dest objstore.URI, t *dataset.Table, opts Options) (Result, error) {
	log := opts.log()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if opts.Header {
		if err := w.Write(t.Schema.Names()); err != nil {
			return Result{}, fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	record := make([]string, len(t.Schema))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = dataset.Format(v)
		}
		if err := w.Write(record); err != nil {
			return Result{}, fmt.Errorf("failed to encode CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Result{}, fmt.Errorf("failed to encode CSV: %w", err)
	}

	part := dest.Join(partName(0, newWriteID(), ".csv"))
	size := int64(buf.Len())
	log.Info(ctx, "uploading CSV part", logger.String("part", part.String()),
		logger.Int("rows", t.Len()), logger.Int64("bytes", size))

	if err := store.Put(ctx, part, bytes.NewReader(buf.Bytes()), metadata(opts, t.Len())); err != nil {
		return Result{}, err
	}
	if err := markSuccess(ctx, store, dest); err != nil {
		return Result{}, err
	}
	return Result{Parts: []objstore.URI{part}, Rows: t.Len(), Bytes: size}, nil
}
