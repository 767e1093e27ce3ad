package engine

import "errors"

var (
	ErrNotLoaded     = errors.New("no table loaded")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotNumeric    = errors.New("column is not numeric")
)
