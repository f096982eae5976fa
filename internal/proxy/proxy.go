// Package proxy streams stored images back to clients. Retrieval always
// follows the backend recorded with the image, not the currently
// configured one, so images stay reachable after a backend switch.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yuhuotech/pixelhub/internal/logging"
	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/metrics"
	"github.com/yuhuotech/pixelhub/internal/storage"
	"github.com/yuhuotech/pixelhub/internal/storage/transport"
)

// CacheControl is sent with every served image. Public paths never change
// once issued, so clients may cache forever.
const CacheControl = "public, max-age=31536000, immutable"

// Store looks up image metadata by public path.
type Store interface {
	FindByPublicPath(ctx context.Context, publicPath string) (*postgres.ImageRecord, error)
}

// Result is a served image. Close releases the underlying stream and its
// read deadline.
type Result struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Size        int64
}

func (r *Result) Close() error { return r.Body.Close() }

// Proxy fetches image bytes from whichever backend holds them.
type Proxy struct {
	store   Store
	resolve func(ctx context.Context, cfg storage.Config, kind storage.Kind) (storage.Backend, error)
}

func New(store Store) *Proxy {
	return &Proxy{store: store, resolve: storage.Resolve}
}

// Fetch resolves publicPath to its record and opens the object on the
// backend the record names. Reads are bounded by a single deadline with no
// retry; the client retries by re-requesting.
func (p *Proxy) Fetch(ctx context.Context, cfg storage.Config, publicPath string) (*Result, error) {
	rec, err := p.store.FindByPublicPath(ctx, publicPath)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", publicPath, err)
	}
	if rec == nil || rec.DeletedAt != nil {
		return nil, storage.ErrNotFound
	}

	kind := storage.Kind(rec.BackendKind)
	backend, err := p.resolve(ctx, cfg, kind)
	if err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithTimeout(ctx, storage.ReadTimeout)

	start := time.Now()
	body, err := backend.Open(readCtx, rec.ObjectKey)
	metrics.RecordBackendOp(string(kind), "open", time.Since(start))
	if err != nil {
		cancel()
		metrics.RecordDownload(string(kind), false)
		logging.Warn("backend read failed",
			zap.String("backend", string(kind)),
			zap.String("key", rec.ObjectKey),
			zap.Error(err))
		// A vanished object is not-found whether the backend reported it
		// as a missing file or an HTTP 404.
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		var serr *transport.StatusError
		if errors.As(err, &serr) {
			return nil, &storage.TransportError{Kind: kind, Status: serr.Status, Err: err}
		}
		return nil, &storage.TransportError{Kind: kind, Err: err}
	}

	metrics.RecordDownload(string(kind), true)
	return &Result{
		Body:        &cancelReadCloser{rc: body, cancel: cancel},
		ContentType: ContentTypeFor(publicPath),
		Filename:    rec.Filename,
		Size:        rec.Size,
	}, nil
}

// cancelReadCloser ties the read deadline's cancel to stream close so the
// body can outlive Fetch without leaking the context.
type cancelReadCloser struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *cancelReadCloser) Close() error {
	err := c.rc.Close()
	c.cancel()
	return err
}

// ContentTypeFor maps a public path's extension to a MIME type. Unknown
// extensions fall back to a generic octet stream.
func ContentTypeFor(publicPath string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(publicPath), ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
