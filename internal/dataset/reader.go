package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/logger"
)

const defaultWorkers = 4

// ReadOptions tunes Read.
type ReadOptions struct {
	// Workers bounds concurrent downloads.
	Workers int
	Logger  logger.Logger
}

// ReadStats summarizes an ingest.
type ReadStats struct {
	Files     int
	Bytes     int64
	Rows      int
	Malformed int
}

type fileResult struct {
	header    []string
	records   [][]string
	bytes     int64
	malformed int
}

// Read loads every CSV file the URI resolves to into one table. The first
// line of each file is its header and the first file's header names the
// columns. Column types are inferred from all values. Short rows are padded
// with nulls, long rows truncated, and rows the tokenizer rejects are skipped
// and counted as malformed.
func Read(ctx context.Context, store objstore.Store, u objstore.URI, opts ReadOptions) (*Table, ReadStats, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	objs, err := objstore.Resolve(ctx, store, u)
	if err != nil {
		return nil, ReadStats{}, err
	}
	log.Info(ctx, "found input files", logger.Int("files", len(objs)), logger.String("path", u.String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]fileResult, len(objs))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	semaphore := make(chan struct{}, workers)

	for i, obj := range objs {
		wg.Add(1)
		go func(i int, obj objstore.Object) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			if ctx.Err() != nil {
				return
			}
			res, err := readFile(ctx, store, obj.URI, log)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = res
		}(i, obj)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, ReadStats{}, firstErr
	}
	return assemble(results, ReadStats{Files: len(objs)})
}

func readFile(ctx context.Context, store objstore.Store, u objstore.URI, log logger.Logger) (fileResult, error) {
	body, size, err := store.Open(ctx, u)
	if err != nil {
		return fileResult{}, err
	}
	defer body.Close()

	log.Debug(ctx, "parsing CSV from stream", logger.String("file", u.String()), logger.Int64("bytes", size))

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	res := fileResult{bytes: size}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.malformed++
				log.Warn(ctx, "skipping malformed CSV row",
					logger.String("file", u.String()), logger.Int("line", perr.Line), logger.Error(err))
				continue
			}
			return fileResult{}, fmt.Errorf("error reading CSV from %s: %w", u, err)
		}

		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}
		if res.header == nil {
			res.header = record
			continue
		}
		res.records = append(res.records, record)
	}

	log.Debug(ctx, "parsed file", logger.String("file", u.String()), logger.Int("rows", len(res.records)))
	return res, nil
}

func assemble(results []fileResult, stats ReadStats) (*Table, ReadStats, error) {
	var header []string
	total := 0
	for _, r := range results {
		stats.Bytes += r.bytes
		stats.Malformed += r.malformed
		total += len(r.records)
		if header == nil && r.header != nil {
			header = r.header
		}
	}
	if header == nil {
		return nil, stats, ErrEmptyInput
	}

	names := columnNames(header)
	records := make([][]string, 0, total)
	for _, r := range results {
		records = append(records, r.records...)
	}

	kinds := InferKinds(len(names), records)
	schema := make(Schema, len(names))
	for i, n := range names {
		schema[i] = Column{Name: n, Kind: kinds[i]}
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(schema))
		for j := range schema {
			if j < len(rec) {
				row[j] = Convert(rec[j], schema[j].Kind)
			}
		}
		rows[i] = row
	}
	stats.Rows = len(rows)
	return &Table{Schema: schema, Rows: rows}, stats, nil
}

// columnNames names blank header cells _c<i> and disambiguates duplicate
// names (case-insensitively) by appending the column index.
func columnNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if h == "" {
			h = "_c" + strconv.Itoa(i)
		}
		names[i] = h
		seen[strings.ToLower(h)]++
	}
	for i, n := range names {
		if seen[strings.ToLower(n)] > 1 {
			names[i] = n + strconv.Itoa(i)
		}
	}
	return names
}
