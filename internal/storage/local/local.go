// Package local provides the local filesystem storage backend.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuhuotech/pixelhub/internal/retry"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string
}

// Backend implements storage.Backend on the local filesystem. Object keys
// carry the shared uploads/ prefix; on disk the root path takes its place,
// so uploads/202403/x.png lands at {root}/202403/x.png.
type Backend struct {
	rootPath   string
	writeRetry retry.Config
}

// New creates a local filesystem backend rooted at cfg.RootPath.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}
	if err := os.MkdirAll(cfg.RootPath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", cfg.RootPath, err)
	}
	return &Backend{
		rootPath:   cfg.RootPath,
		writeRetry: retry.WritePolicy(),
	}, nil
}

func (b *Backend) fullPath(key string) string {
	rel := strings.TrimPrefix(key, "uploads/")
	return filepath.Join(b.rootPath, filepath.FromSlash(rel))
}

// Put writes the object atomically via temp file + rename. Filesystem
// writes share the bounded retry policy with the git backends; the body is
// rewound between attempts when it supports seeking, otherwise a failed
// first attempt is terminal.
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	path := b.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	seeker, seekable := body.(io.Seeker)
	first := true

	return retry.Do(ctx, b.writeRetry, func(ctx context.Context) error {
		if !first {
			if !seekable {
				return fmt.Errorf("write %s: body not rewindable", key)
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind body for %s: %w", key, err)
			}
		}
		first = false
		return b.writeFile(path, key, body)
	})
}

func (b *Backend) writeFile(path, key string, body io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pixelhub-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}
	return nil
}

// Open reads the object directly from disk.
func (b *Backend) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(b.fullPath(key))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }
