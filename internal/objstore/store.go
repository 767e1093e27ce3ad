// Package objstore reads and writes objects on S3 and on the local filesystem
// behind one interface.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Object describes a stored object.
type Object struct {
	URI  URI
	Size int64
}

// Store is implemented by every storage backend.
type Store interface {
	// List returns every object whose key starts with prefix.Key.
	List(ctx context.Context, prefix URI) ([]Object, error)
	// Stat describes a single object, or returns ErrNotFound.
	Stat(ctx context.Context, u URI) (Object, error)
	// Open streams an object's content.
	Open(ctx context.Context, u URI) (io.ReadCloser, int64, error)
	// Put writes body to u, replacing any object already there.
	Put(ctx context.Context, u URI, body io.ReadSeeker, meta map[string]string) error
	// Exists reports whether u is an object or a non-empty directory.
	Exists(ctx context.Context, u URI) (bool, error)
	// DeleteAll removes every object under the directory u.
	DeleteAll(ctx context.Context, u URI) (int, error)
	// Probe checks that objects can be written next to u.
	Probe(ctx context.Context, u URI) error
}

// Router dispatches to a backend by URI scheme.
type Router struct {
	backends map[string]Store
}

// NewRouter builds a router. A nil backend leaves that scheme unsupported.
func NewRouter(s3 Store, local Store) *Router {
	r := &Router{backends: make(map[string]Store)}
	if s3 != nil {
		r.backends[SchemeS3] = s3
	}
	if local != nil {
		r.backends[SchemeFile] = local
	}
	return r
}

func (r *Router) backend(u URI) (Store, error) {
	s, ok := r.backends[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return s, nil
}

func (r *Router) List(ctx context.Context, prefix URI) ([]Object, error) {
	s, err := r.backend(prefix)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, prefix)
}

func (r *Router) Stat(ctx context.Context, u URI) (Object, error) {
	s, err := r.backend(u)
	if err != nil {
		return Object{}, err
	}
	return s.Stat(ctx, u)
}

func (r *Router) Open(ctx context.Context, u URI) (io.ReadCloser, int64, error) {
	s, err := r.backend(u)
	if err != nil {
		return nil, 0, err
	}
	return s.Open(ctx, u)
}

func (r *Router) Put(ctx context.Context, u URI, body io.ReadSeeker, meta map[string]string) error {
	s, err := r.backend(u)
	if err != nil {
		return err
	}
	return s.Put(ctx, u, body, meta)
}

func (r *Router) Exists(ctx context.Context, u URI) (bool, error) {
	s, err := r.backend(u)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, u)
}

func (r *Router) DeleteAll(ctx context.Context, u URI) (int, error) {
	s, err := r.backend(u)
	if err != nil {
		return 0, err
	}
	return s.DeleteAll(ctx, u)
}

func (r *Router) Probe(ctx context.Context, u URI) error {
	s, err := r.backend(u)
	if err != nil {
		return err
	}
	return s.Probe(ctx, u)
}

// Resolve expands a read path into the input objects it names, sorted by key.
// A glob in the key is matched segment-wise, an exact object is returned as
// is, and anything else is read as a directory. Marker files (leading "_" or
// ".") are skipped.
func Resolve(ctx context.Context, s Store, u URI) ([]Object, error) {
	var (
		objs []Object
		err  error
	)
	switch {
	case u.IsGlob():
		objs, err = resolveGlob(ctx, s, u)
	case strings.HasSuffix(u.Key, "/"):
		objs, err = s.List(ctx, u)
	default:
		var obj Object
		obj, err = s.Stat(ctx, u)
		if err == nil {
			return []Object{obj}, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
		objs, err = s.List(ctx, u.Dir())
	}
	if err != nil {
		return nil, err
	}

	out := objs[:0]
	for _, o := range objs {
		if strings.HasSuffix(o.URI.Key, "/") || hidden(o.URI.Base()) {
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInput, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI.Key < out[j].URI.Key })
	return out, nil
}

func resolveGlob(ctx context.Context, s Store, u URI) ([]Object, error) {
	if _, err := path.Match(u.Key, ""); err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidURI, u.Key, err)
	}
	// List from the longest literal directory before the first metacharacter.
	literal := u.Key[:strings.IndexAny(u.Key, "*?[")]
	prefix := u
	prefix.Key = literal[:strings.LastIndex(literal, "/")+1]

	listed, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []Object
	for _, o := range listed {
		if ok, _ := path.Match(u.Key, o.URI.Key); ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
