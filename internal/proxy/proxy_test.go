package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/storage"
	"github.com/yuhuotech/pixelhub/internal/storage/local"
	"github.com/yuhuotech/pixelhub/internal/storage/transport"
)

type fakeStore struct {
	records map[string]*postgres.ImageRecord
}

func (f *fakeStore) FindByPublicPath(_ context.Context, publicPath string) (*postgres.ImageRecord, error) {
	return f.records[publicPath], nil
}

func seedLocalObject(t *testing.T, root, key string, data []byte) {
	t.Helper()
	b, err := local.New(local.Config{RootPath: root})
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	if err := b.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
		t.Fatalf("seed object: %v", err)
	}
}

func TestFetchFollowsRecordedBackend(t *testing.T) {
	root := t.TempDir()
	key := "uploads/202403/1710498600000-cat.png"
	data := []byte("png bytes")
	seedLocalObject(t, root, key, data)

	store := &fakeStore{records: map[string]*postgres.ImageRecord{
		key: {ID: "img-1", BackendKind: "local", ObjectKey: key, PublicPath: key, Filename: "cat.png", Size: int64(len(data))},
	}}

	// The configured backend has moved on to github; the stored record
	// still says local and retrieval must follow the record.
	cfg := storage.Config{
		ActiveKind: storage.KindGitHub,
		Local:      storage.LocalConfig{RootPath: root},
	}

	p := New(store)
	res, err := p.Fetch(context.Background(), cfg, key)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	got, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
	if res.ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", res.ContentType)
	}
	if res.Filename != "cat.png" {
		t.Errorf("filename = %q, want cat.png", res.Filename)
	}
}

func TestFetchUnknownPath(t *testing.T) {
	p := New(&fakeStore{records: map[string]*postgres.ImageRecord{}})
	_, err := p.Fetch(context.Background(), storage.Config{}, "uploads/202403/nope.png")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFetchSoftDeletedIsNotFound(t *testing.T) {
	now := time.Now()
	key := "uploads/202403/1-cat.png"
	store := &fakeStore{records: map[string]*postgres.ImageRecord{
		key: {ID: "img-1", BackendKind: "local", ObjectKey: key, PublicPath: key, DeletedAt: &now},
	}}

	p := New(store)
	_, err := p.Fetch(context.Background(), storage.Config{Local: storage.LocalConfig{RootPath: t.TempDir()}}, key)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for soft-deleted image", err)
	}
}

func TestFetchMissingObject(t *testing.T) {
	key := "uploads/202403/2-gone.png"
	store := &fakeStore{records: map[string]*postgres.ImageRecord{
		key: {ID: "img-2", BackendKind: "local", ObjectKey: key, PublicPath: key},
	}}

	p := New(store)
	cfg := storage.Config{Local: storage.LocalConfig{RootPath: t.TempDir()}}
	_, err := p.Fetch(context.Background(), cfg, key)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound when the object vanished", err)
	}
}

// fakeBackend stands in for a remote adapter whose reads fail.
type fakeBackend struct {
	openErr error
}

func (f *fakeBackend) Put(context.Context, string, io.Reader, int64, string) error {
	return nil
}

func (f *fakeBackend) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, f.openErr
}

func (f *fakeBackend) Type() string { return "github" }

func remoteRecordStore(key string) *fakeStore {
	return &fakeStore{records: map[string]*postgres.ImageRecord{
		key: {ID: "img-r", BackendKind: "github", ObjectKey: key, PublicPath: key},
	}}
}

func TestFetchRemote404IsNotFound(t *testing.T) {
	key := "uploads/202403/3-gone.png"
	p := New(remoteRecordStore(key))
	p.resolve = func(context.Context, storage.Config, storage.Kind) (storage.Backend, error) {
		return &fakeBackend{openErr: fmt.Errorf("fetch: %w", &transport.StatusError{Status: http.StatusNotFound})}, nil
	}

	_, err := p.Fetch(context.Background(), storage.Config{}, key)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for a backend 404", err)
	}
}

func TestFetchRemoteErrorCarriesStatus(t *testing.T) {
	key := "uploads/202403/4-flaky.png"
	p := New(remoteRecordStore(key))
	p.resolve = func(context.Context, storage.Config, storage.Kind) (storage.Backend, error) {
		return &fakeBackend{openErr: fmt.Errorf("fetch: %w", &transport.StatusError{Status: http.StatusServiceUnavailable})}, nil
	}

	_, err := p.Fetch(context.Background(), storage.Config{}, key)
	var terr *storage.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", terr.Status)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"uploads/202403/a.png", "image/png"},
		{"uploads/202403/a.jpg", "image/jpeg"},
		{"uploads/202403/a.JPEG", "image/jpeg"},
		{"uploads/202403/a.gif", "image/gif"},
		{"uploads/202403/a.webp", "image/webp"},
		{"uploads/202403/a.svg", "image/svg+xml"},
		{"uploads/202403/a.bin", "application/octet-stream"},
		{"uploads/202403/noext", "application/octet-stream"},
	}
	for _, c := range cases {
		if got := ContentTypeFor(c.path); got != c.want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
