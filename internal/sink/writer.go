package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
	"github.com/rakeshgeddam/AWS-EMR-ADHD/pkg/logger"
)

// SuccessMarker is written last into a completed destination directory.
const SuccessMarker = "_SUCCESS"

// Options tunes a write.
type Options struct {
	// TempDir stages Parquet files before upload.
	TempDir string
	// Header adds a header line to CSV parts.
	Header bool
	// RunID is stamped into object metadata.
	RunID  string
	Logger logger.Logger
}

func (o Options) log() logger.Logger {
	if o.Logger == nil {
		return logger.Nop()
	}
	return o.Logger
}

// Result describes what a write produced.
type Result struct {
	Parts []objstore.URI
	Rows  int
	Bytes int64
}

// partName follows the part-<n>-<uuid>-c000<ext> layout.
func partName(n int, id, ext string) string {
	return fmt.Sprintf("part-%05d-%s-c000%s", n, id, ext)
}

func newWriteID() string {
	return uuid.NewString()
}

func metadata(opts Options, rows int) map[string]string {
	meta := map[string]string{"record-count": strconv.Itoa(rows)}
	if opts.RunID != "" {
		meta["run-id"] = opts.RunID
	}
	return meta
}

func markSuccess(ctx context.Context, store objstore.Store, dest objstore.URI) error {
	if err := store.Put(ctx, dest.Join(SuccessMarker), strings.NewReader(""), nil); err != nil {
		return fmt.Errorf("failed to write %s marker: %w", SuccessMarker, err)
	}
	return nil
}
