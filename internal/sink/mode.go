// Package sink writes result tables to object storage as Parquet or CSV part
// files under a destination directory.
package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/objstore"
)

// WriteMode says what to do when the destination already holds data.
type WriteMode string

const (
	ModeErrorIfExists WriteMode = "errorifexists"
	ModeOverwrite     WriteMode = "overwrite"
	ModeAppend        WriteMode = "append"
	ModeIgnore        WriteMode = "ignore"
)

// ParseWriteMode accepts the mode names case-insensitively; "error" and
// "default" are aliases of errorifexists.
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "error", "default", string(ModeErrorIfExists):
		return ModeErrorIfExists, nil
	case string(ModeOverwrite):
		return ModeOverwrite, nil
	case string(ModeAppend):
		return ModeAppend, nil
	case string(ModeIgnore):
		return ModeIgnore, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWriteMode, s)
}

// Prepare applies mode to the destination. It reports false when the write
// should be skipped (ignore mode over existing data).
func Prepare(ctx context.Context, store objstore.Store, dest objstore.URI, mode WriteMode) (bool, error) {
	exists, err := store.Exists(ctx, dest)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}

	switch mode {
	case ModeErrorIfExists:
		return false, fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	case ModeIgnore:
		return false, nil
	case ModeOverwrite:
		if _, err := store.DeleteAll(ctx, dest); err != nil {
			return false, fmt.Errorf("failed to clear %s: %w", dest, err)
		}
		return true, nil
	case ModeAppend:
		return true, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownWriteMode, mode)
}
