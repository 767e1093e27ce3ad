package objstore

import "errors"

var (
	ErrInvalidURI        = errors.New("invalid storage uri")
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	ErrNotFound          = errors.New("object not found")
	ErrNoInput           = errors.New("no input files matched")
)
