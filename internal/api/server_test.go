package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/storage"
	"github.com/yuhuotech/pixelhub/internal/upload"
)

func TestAbsoluteURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://pixelhub.example/api/v1/images", nil)

	s := &Server{}
	if got := s.absoluteURL(r, "/file/uploads/a.png"); got != "http://pixelhub.example/file/uploads/a.png" {
		t.Errorf("absoluteURL = %q", got)
	}

	r.Header.Set("X-Forwarded-Proto", "https")
	if got := s.absoluteURL(r, "/file/uploads/a.png"); got != "https://pixelhub.example/file/uploads/a.png" {
		t.Errorf("absoluteURL behind proxy = %q", got)
	}

	s = &Server{baseURL: "https://img.example.com"}
	if got := s.absoluteURL(r, "/file/uploads/a.png"); got != "https://img.example.com/file/uploads/a.png" {
		t.Errorf("absoluteURL with base = %q", got)
	}
}

func TestSendStorageErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&upload.ValidationError{Reason: "empty file"}, http.StatusBadRequest},
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("lookup: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("image x: %w", sql.ErrNoRows), http.StatusNotFound},
		{&storage.ConfigError{Kind: storage.KindS3, Param: "bucket"}, http.StatusInternalServerError},
		{&storage.TransportError{Kind: "github", Status: http.StatusBadGateway}, http.StatusBadGateway},
		{&storage.TransportError{Kind: "github", Status: http.StatusNotFound}, http.StatusNotFound},
		{&storage.UploadError{Kind: "local", Attempts: 3, Err: errors.New("disk full")}, http.StatusInternalServerError},
		{errors.New("something else"), http.StatusInternalServerError},
	}

	s := &Server{}
	for _, c := range cases {
		w := httptest.NewRecorder()
		s.sendStorageError(w, c.err)
		if w.Code != c.want {
			t.Errorf("status for %v = %d, want %d", c.err, w.Code, c.want)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
			t.Errorf("error body missing for %v", c.err)
		}
	}
}

func TestOriginURL(t *testing.T) {
	cfg := storage.Config{
		S3:     storage.S3Config{Bucket: "imgs", Region: "us-east-1"},
		Minio:  storage.MinioConfig{Endpoint: "minio.example.com", Bucket: "imgs", UseSSL: true},
		GitHub: storage.GitHostConfig{Owner: "acme", Repo: "pics", Branch: "main"},
		Gitee:  storage.GitHostConfig{Owner: "acme", Repo: "pics", Branch: "master"},
	}
	key := "uploads/202403/1-cat.png"

	cases := []struct {
		kind string
		want string
	}{
		{"local", ""},
		{"s3", "https://imgs.s3.us-east-1.amazonaws.com/" + key},
		{"minio", "https://minio.example.com/imgs/" + key},
		{"github", "https://raw.githubusercontent.com/acme/pics/main/" + key},
		{"gitee", "https://gitee.com/acme/pics/raw/master/" + key},
	}
	for _, c := range cases {
		rec := &postgres.ImageRecord{BackendKind: c.kind, ObjectKey: key}
		if got := originURL(cfg, rec); got != c.want {
			t.Errorf("originURL(%s) = %q, want %q", c.kind, got, c.want)
		}
	}

	// Custom S3 endpoint switches to path-style.
	cfg.S3.Endpoint = "https://s3.example.com/"
	rec := &postgres.ImageRecord{BackendKind: "s3", ObjectKey: key}
	if got := originURL(cfg, rec); got != "https://s3.example.com/imgs/"+key {
		t.Errorf("originURL with endpoint = %q", got)
	}
}

func TestIsSecretKey(t *testing.T) {
	secrets := []string{"s3SecretKey", "s3AccessKey", "githubAccessToken", "giteeAccessToken"}
	for _, k := range secrets {
		if !isSecretKey(k) {
			t.Errorf("%s should be masked", k)
		}
	}
	public := []string{"storageType", "s3Region", "s3Bucket", "githubOwner", "localStoragePath"}
	for _, k := range public {
		if isSecretKey(k) {
			t.Errorf("%s should not be masked", k)
		}
	}
}
