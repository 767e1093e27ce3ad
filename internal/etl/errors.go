package etl

import "errors"

var (
	ErrMalformedDate = errors.New("malformed date values")
	ErrInvalidPath   = errors.New("invalid job path")
)
