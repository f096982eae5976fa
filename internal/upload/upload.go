// Package upload orchestrates an image upload: validate, route to the
// active storage backend, then record metadata.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yuhuotech/pixelhub/internal/logging"
	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/metrics"
	"github.com/yuhuotech/pixelhub/internal/storage"
)

// ValidationError reports a rejected upload request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Store persists image metadata after the object is written.
type Store interface {
	CreateImage(ctx context.Context, rec *postgres.ImageRecord) error
}

// Input is a single upload request.
type Input struct {
	Filename string
	MimeType string
	Body     []byte
	// Kind overrides the configured backend when non-empty.
	Kind storage.Kind
}

// Orchestrator routes uploads to storage and records the result.
type Orchestrator struct {
	store   Store
	maxSize int64
	httpc   *http.Client
}

func New(store Store, maxSize int64) *Orchestrator {
	return &Orchestrator{
		store:   store,
		maxSize: maxSize,
		httpc:   &http.Client{Timeout: storage.ReadTimeout},
	}
}

// Upload writes the image to the target backend and records it. The
// backend is the declared kind when given, the configured one otherwise.
func (o *Orchestrator) Upload(ctx context.Context, cfg storage.Config, in Input) (*postgres.ImageRecord, error) {
	if err := o.validate(in); err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = cfg.ActiveKind
	}

	backend, err := storage.Resolve(ctx, cfg, kind)
	if err != nil {
		metrics.RecordUpload(string(kind), 0, false)
		return nil, err
	}

	now := time.Now()
	objectKey := storage.ObjectKey(in.Filename, now)
	publicPath := storage.PublicPath(kind, objectKey, in.Filename, in.MimeType, now)

	start := time.Now()
	err = backend.Put(ctx, objectKey, bytes.NewReader(in.Body), int64(len(in.Body)), in.MimeType)
	metrics.RecordBackendOp(string(kind), "put", time.Since(start))
	if err != nil {
		metrics.RecordUpload(string(kind), 0, false)
		return nil, &storage.UploadError{Kind: kind, Attempts: putAttempts(kind), Err: err}
	}

	width, height := probeDimensions(in.Body)

	rec := &postgres.ImageRecord{
		ID:          uuid.NewString(),
		BackendKind: string(kind),
		ObjectKey:   objectKey,
		PublicPath:  publicPath,
		URL:         "/file/" + publicPath,
		Filename:    in.Filename,
		Size:        int64(len(in.Body)),
		Width:       width,
		Height:      height,
		MimeType:    in.MimeType,
	}
	if err := o.store.CreateImage(ctx, rec); err != nil {
		// The object is already written; it stays behind as an orphan.
		metrics.RecordOrphanedObject(string(kind))
		metrics.RecordUpload(string(kind), 0, false)
		logging.Error("orphaned object: metadata write failed after upload",
			zap.String("backend", string(kind)),
			zap.String("key", objectKey),
			zap.Error(err))
		return nil, fmt.Errorf("record image: %w", err)
	}

	metrics.RecordUpload(string(kind), rec.Size, true)
	logging.Info("image uploaded",
		zap.String("backend", string(kind)),
		zap.String("key", objectKey),
		zap.Int64("size", rec.Size))
	return rec, nil
}

// UploadFromURL fetches a remote image and uploads it like a direct upload.
func (o *Orchestrator) UploadFromURL(ctx context.Context, cfg storage.Config, rawURL string, kind storage.Kind) (*postgres.ImageRecord, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ValidationError{Reason: "invalid image url"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &ValidationError{Reason: "invalid image url"}
	}
	req.Header.Set("User-Agent", "PixelHub")

	resp, err := o.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ValidationError{Reason: fmt.Sprintf("remote returned status %d", resp.StatusCode)}
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &ValidationError{Reason: fmt.Sprintf("remote content type %q is not an image", mimeType)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, o.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read remote body: %w", err)
	}
	if int64(len(body)) > o.maxSize {
		return nil, &ValidationError{Reason: "remote image exceeds size limit"}
	}

	return o.Upload(ctx, cfg, Input{
		Filename: filenameFromURL(u, mimeType),
		MimeType: mimeType,
		Body:     body,
		Kind:     kind,
	})
}

func (o *Orchestrator) validate(in Input) error {
	if len(in.Body) == 0 {
		return &ValidationError{Reason: "empty file"}
	}
	if int64(len(in.Body)) > o.maxSize {
		return &ValidationError{Reason: "file exceeds size limit"}
	}
	if in.Filename == "" {
		return &ValidationError{Reason: "filename required"}
	}
	if in.Kind != "" && !in.Kind.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown storage backend %q", in.Kind)}
	}
	return nil
}

// putAttempts is how many write attempts the backend kind makes. Local and
// git backends retry in-process; bucket backends lean on SDK retries and
// count as a single attempt here.
func putAttempts(kind storage.Kind) int {
	switch kind {
	case storage.KindLocal, storage.KindGitHub, storage.KindGitee:
		return 3
	default:
		return 1
	}
}

// probeDimensions decodes only the image header. Unknown formats yield
// zero dimensions rather than an error.
func probeDimensions(body []byte) (width, height int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func filenameFromURL(u *url.URL, mimeType string) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		name = "image"
	}
	if path.Ext(name) == "" {
		if ext := extForMime(mimeType); ext != "" {
			name += ext
		}
	}
	return name
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	}
	return ""
}
