// Package source resolves ingest file references. A reference is either a
// local filesystem path or a gs:// object URI; remote objects are staged to
// a local temp file before reading.
package source

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// File is a resolved source, readable from the local filesystem.
type File struct {
	// Path is the local path to the parquet data.
	Path string

	staged bool
}

// Close removes the staged copy of a remote source. For local sources it is
// a no-op.
func (f *File) Close() error {
	if !f.staged {
		return nil
	}
	return os.Remove(f.Path)
}

// IsRemote reports whether ref names a cloud object rather than a local path.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "gs://")
}

// Resolve turns a file reference into a locally readable File. Remote
// references are downloaded; local paths are checked and passed through.
func Resolve(ctx context.Context, ref string) (*File, error) {
	if IsRemote(ref) {
		return stage(ctx, ref)
	}

	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("stat source %q: %w", ref, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %q is a directory", ref)
	}
	return &File{Path: ref}, nil
}
