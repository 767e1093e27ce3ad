package etl

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/logger"
)

// Stats holds the performance and volume figures of one run.
type Stats struct {
	RunID                   string   `json:"run_id"`
	TotalExecutionTime      string   `json:"total_execution_time"`
	TotalFilesFound         int      `json:"total_files_found"`
	TotalRowsIngested       int      `json:"total_rows_ingested"`
	MalformedRows           int      `json:"malformed_rows"`
	MalformedMonths         int      `json:"malformed_months"`
	AggregateGroups         int      `json:"aggregate_groups"`
	CleanedRows             int      `json:"cleaned_rows"`
	DroppedRows             int      `json:"dropped_rows"`
	TotalBytesRead          int64    `json:"total_bytes_read"`
	TotalBytesWritten       int64    `json:"total_bytes_written"`
	AggregateParts          []string `json:"aggregate_parts,omitempty"`
	CleanedParts            []string `json:"cleaned_parts,omitempty"`
	AggregateSkipped        bool     `json:"aggregate_skipped,omitempty"`
	CleanedSkipped          bool     `json:"cleaned_skipped,omitempty"`
	ProcessingThroughputGBs float64  `json:"processing_throughput_gb_per_sec"`
}

func (s *Stats) finish(d time.Duration) {
	s.TotalExecutionTime = d.String()
	if d.Seconds() > 0 {
		s.ProcessingThroughputGBs = float64(s.TotalBytesRead) / 1e9 / d.Seconds()
	}
}

// writeStats stores the summary as indented JSON. Failures are logged, not
// returned: the outputs are already written by the time this runs.
func writeStats(ctx context.Context, log logger.Logger, path string, s Stats) {
	if path == "" {
		return
	}
	statsJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Warn(ctx, "failed to serialize stats", logger.Error(err))
		return
	}
	if err := os.WriteFile(path, statsJSON, 0o644); err != nil {
		log.Warn(ctx, "failed to write stats file", logger.String("path", path), logger.Error(err))
		return
	}
	log.Info(ctx, "wrote stats", logger.String("path", path))
}
