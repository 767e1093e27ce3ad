package sink

import "errors"

var (
	ErrDestinationExists = errors.New("destination already exists")
	ErrUnknownWriteMode  = errors.New("unknown write mode")
)
