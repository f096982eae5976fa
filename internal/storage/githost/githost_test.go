package githost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/yuhuotech/pixelhub/internal/retry"
	"github.com/yuhuotech/pixelhub/internal/storage/transport"
)

// fastRetry keeps the write policy's attempt count without the real backoff.
var fastRetry = retry.Config{Attempts: 3, Backoff: time.Millisecond, AttemptTimeout: time.Second}

func TestGitHubPut(t *testing.T) {
	var gotPath, gotAuth, gotMethod string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g := NewGitHub(Config{Token: "tok", Owner: "acme", Repo: "images"})
	g.apiBase = srv.URL
	g.writeRetry = fastRetry

	data := []byte("png bytes")
	key := "uploads/202403/1-cat.png"
	if err := g.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if want := "/repos/acme/images/contents/" + key; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q, want bearer token", gotAuth)
	}
	if gotBody["branch"] != "main" {
		t.Errorf("branch = %q, want default main", gotBody["branch"])
	}
	decoded, err := base64.StdEncoding.DecodeString(gotBody["content"])
	if err != nil || !bytes.Equal(decoded, data) {
		t.Errorf("content is not the base64 payload")
	}
	if gotBody["message"] == "" {
		t.Error("commit message missing")
	}
}

func TestGitHubPutRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g := NewGitHub(Config{Token: "tok", Owner: "acme", Repo: "images"})
	g.apiBase = srv.URL
	g.writeRetry = fastRetry

	if err := g.Put(context.Background(), "uploads/202403/2-a.png", bytes.NewReader([]byte("x")), 1, "image/png"); err != nil {
		t.Fatalf("Put should succeed on the third attempt: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestGitHubPutGivesUpAfterBudget(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	g := NewGitHub(Config{Token: "tok", Owner: "acme", Repo: "images"})
	g.apiBase = srv.URL
	g.writeRetry = fastRetry

	if err := g.Put(context.Background(), "uploads/202403/3-b.png", bytes.NewReader([]byte("x")), 1, "image/png"); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestGitHubOpen(t *testing.T) {
	data := []byte("raw image bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.github.v3.raw" {
			t.Errorf("accept = %q, want raw media type", r.Header.Get("Accept"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth = %q, want bearer token", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("ref") != "dev" {
			t.Errorf("ref = %q, want dev", r.URL.Query().Get("ref"))
		}
		w.Write(data)
	}))
	defer srv.Close()

	g := NewGitHub(Config{Token: "tok", Owner: "acme", Repo: "images", Branch: "dev"})
	g.apiBase = srv.URL

	rc, err := g.Open(context.Background(), "uploads/202403/1-cat.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestGiteePutTokenInBody(t *testing.T) {
	var gotBody map[string]string
	var gotMethod, gotContentType, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g := NewGitee(Config{Token: "tok", Owner: "acme", Repo: "images"})
	g.apiBase = srv.URL
	g.writeRetry = fastRetry

	if err := g.Put(context.Background(), "uploads/202403/1-cat.png", bytes.NewReader([]byte("x")), 1, "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotContentType != "application/json;charset=UTF-8" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotAuth != "" {
		t.Error("gitee should not send an Authorization header")
	}
	if gotBody["access_token"] != "tok" {
		t.Errorf("access_token = %q, want token in body", gotBody["access_token"])
	}
	if gotBody["branch"] != "master" {
		t.Errorf("branch = %q, want default master", gotBody["branch"])
	}
}

func TestGiteeOpenUsesRawURL(t *testing.T) {
	data := []byte("raw")
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("Authorization") != "" {
			t.Error("raw fetch should be anonymous")
		}
		w.Write(data)
	}))
	defer srv.Close()

	g := NewGitee(Config{Token: "tok", Owner: "acme", Repo: "images"})
	g.rawBase = srv.URL

	rc, err := g.Open(context.Background(), "uploads/202403/1-cat.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	if want := "/acme/images/raw/master/uploads/202403/1-cat.png"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestOpenNotFoundMapsToNotExist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewGitHub(Config{Token: "tok", Owner: "acme", Repo: "images"})
	g.apiBase = srv.URL

	_, err := g.Open(context.Background(), "uploads/202403/missing.png")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	// A 404 from the host means the object vanished, same as a missing
	// local file.
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("404 should satisfy os.ErrNotExist, got %v", err)
	}
}

func TestOpenErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGitee(Config{Token: "tok", Owner: "acme", Repo: "images"})
	g.rawBase = srv.URL

	_, err := g.Open(context.Background(), "uploads/202403/1-cat.png")
	var serr *transport.StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if serr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", serr.Status)
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Error("503 should not look like a missing object")
	}
}

func TestCommitMessageUsesOriginalFilename(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"uploads/202403/1710498600000-cat.png", "Upload cat.png via PixelHub"},
		{"uploads/202403/1710498600000-2024-photo.png", "Upload 2024-photo.png via PixelHub"},
		{"uploads/202403/1710498600000-", "Upload  via PixelHub"},
		{"plain.png", "Upload plain.png via PixelHub"},
	}
	for _, c := range cases {
		if got := commitMessage(c.key); got != c.want {
			t.Errorf("commitMessage(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}
