package objstore

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Schemes understood by ParseURI.
const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// URI addresses an object or a prefix. For S3 Bucket is the bucket name and Key
// the object key; for local files Bucket is empty and Key is a slash path.
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI accepts s3://, s3a://, s3n://, file:// and bare filesystem paths.
func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URI{}, fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	if !strings.Contains(raw, "://") {
		return URI{Scheme: SchemeFile, Key: cleanKey(filepath.ToSlash(raw))}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %s: %v", ErrInvalidURI, raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "s3", "s3a", "s3n":
		if u.Host == "" {
			return URI{}, fmt.Errorf("%w: missing bucket in %s", ErrInvalidURI, raw)
		}
		return URI{Scheme: SchemeS3, Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
	case "file":
		if u.Path == "" {
			return URI{}, fmt.Errorf("%w: missing path in %s", ErrInvalidURI, raw)
		}
		return URI{Scheme: SchemeFile, Key: cleanKey(u.Path)}, nil
	default:
		return URI{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// cleanKey normalizes a local path the way directory walks report it,
// keeping a trailing slash.
func cleanKey(key string) string {
	cleaned := path.Clean(key)
	if strings.HasSuffix(key, "/") && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}

// MustParseURI is ParseURI for literals; it panics on error.
func MustParseURI(raw string) URI {
	u, err := ParseURI(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func (u URI) String() string {
	if u.Scheme == SchemeS3 {
		return "s3://" + u.Bucket + "/" + u.Key
	}
	return u.Key
}

// Dir returns u treated as a directory prefix (trailing slash).
func (u URI) Dir() URI {
	if u.Key != "" && !strings.HasSuffix(u.Key, "/") {
		u.Key += "/"
	}
	return u
}

// Join appends a child name to u treated as a directory.
func (u URI) Join(name string) URI {
	d := u.Dir()
	d.Key += name
	return d
}

// Base is the last path segment of the key.
func (u URI) Base() string {
	return path.Base(strings.TrimSuffix(u.Key, "/"))
}

// IsGlob reports whether the key contains path.Match metacharacters.
func (u URI) IsGlob() bool {
	return strings.ContainsAny(u.Key, "*?[")
}

// hidden reports whether a file name is an engine marker or dotfile.
func hidden(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}
