package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects as files. URI keys are slash paths.
type LocalStore struct{}

func NewLocalStore() *LocalStore { return &LocalStore{} }

func osPath(u URI) string {
	if u.Key == "" {
		return "."
	}
	return filepath.FromSlash(u.Key)
}

func (l *LocalStore) List(ctx context.Context, prefix URI) ([]Object, error) {
	root := osPath(prefix)
	dir := root
	namePrefix := ""
	if !strings.HasSuffix(prefix.Key, "/") && prefix.Key != "" {
		// Plain key prefix: walk the parent, keep entries starting with it.
		dir = filepath.Dir(root)
		namePrefix = filepath.Clean(root)
	}

	var out []Object
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || (namePrefix != "" && !strings.HasPrefix(p, namePrefix)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{
			URI:  URI{Scheme: SchemeFile, Key: filepath.ToSlash(p)},
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return out, nil
}

func (l *LocalStore) Stat(_ context.Context, u URI) (Object, error) {
	info, err := os.Stat(osPath(u))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return Object{}, err
	}
	if info.IsDir() {
		return Object{}, fmt.Errorf("%w: %s is a directory", ErrNotFound, u)
	}
	return Object{URI: u, Size: info.Size()}, nil
}

func (l *LocalStore) Open(_ context.Context, u URI) (io.ReadCloser, int64, error) {
	f, err := os.Open(osPath(u))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return nil, 0, fmt.Errorf("failed to open %s: %w", u, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", u, err)
	}
	return f, info.Size(), nil
}

func (l *LocalStore) Put(_ context.Context, u URI, body io.ReadSeeker, _ map[string]string) error {
	p := osPath(u)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", u, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", u, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", u, err)
	}
	return f.Close()
}

func (l *LocalStore) Exists(ctx context.Context, u URI) (bool, error) {
	info, err := os.Stat(osPath(u))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return true, nil
	}
	objs, err := l.List(ctx, u.Dir())
	if err != nil {
		return false, err
	}
	return len(objs) > 0, nil
}

func (l *LocalStore) DeleteAll(ctx context.Context, u URI) (int, error) {
	objs, err := l.List(ctx, u.Dir())
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(osPath(u)); err != nil {
		return 0, fmt.Errorf("failed to remove %s: %w", u, err)
	}
	return len(objs), nil
}

func (l *LocalStore) Probe(_ context.Context, u URI) error {
	dir := osPath(u.Dir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local write probe failed: %w", err)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("local write probe failed: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
