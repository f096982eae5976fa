package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/storage"
	s3store "github.com/yuhuotech/pixelhub/internal/storage/s3"
	"github.com/yuhuotech/pixelhub/internal/upload"
)

// uploadResponse is what clients get back for every successful upload.
type uploadResponse struct {
	URL        string `json:"url"`
	Key        string `json:"key"`
	PublicPath string `json:"publicPath"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mimeType"`
}

func (s *Server) uploadResponseFor(r *http.Request, rec *postgres.ImageRecord) uploadResponse {
	return uploadResponse{
		URL:        s.absoluteURL(r, rec.URL),
		Key:        rec.ObjectKey,
		PublicPath: rec.PublicPath,
		Filename:   rec.Filename,
		Size:       rec.Size,
		MimeType:   rec.MimeType,
	}
}

// handleUpload accepts a multipart file upload. The {backend} path segment
// picks the target backend; "auto" defers to the configured one.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var kind storage.Kind
	if seg := r.PathValue("backend"); seg != "auto" {
		k, ok := storage.ParseKind(seg)
		if !ok {
			sendError(w, http.StatusBadRequest, "unknown storage backend "+seg)
			return
		}
		kind = k
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		sendError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	cfg, err := s.settings.Snapshot(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	rec, err := s.uploader.Upload(r.Context(), cfg, upload.Input{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Body:     body,
		Kind:     kind,
	})
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, s.uploadResponseFor(r, rec))
}

// handleUploadURL imports a remote image by URL.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL         string `json:"url"`
		StorageType string `json:"storageType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		sendError(w, http.StatusBadRequest, "url required")
		return
	}

	var kind storage.Kind
	if req.StorageType != "" {
		k, ok := storage.ParseKind(req.StorageType)
		if !ok {
			sendError(w, http.StatusBadRequest, "unknown storage backend "+req.StorageType)
			return
		}
		kind = k
	}

	cfg, err := s.settings.Snapshot(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	rec, err := s.uploader.UploadFromURL(r.Context(), cfg, req.URL, kind)
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, s.uploadResponseFor(r, rec))
}

// handleSignUpload hands out short-lived credentials scoped to the current
// upload prefix so browsers can write straight to the bucket.
func (s *Server) handleSignUpload(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.settings.Snapshot(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	backend, err := storage.Resolve(r.Context(), cfg, storage.KindS3)
	if err != nil {
		s.sendStorageError(w, err)
		return
	}
	s3b, ok := backend.(*s3store.Backend)
	if !ok {
		sendError(w, http.StatusInternalServerError, "s3 backend unavailable")
		return
	}

	prefix := storage.KeyPrefix + "/" + time.Now().UTC().Format("200601")
	creds, err := s3b.SignUploadCredentials(r.Context(), prefix)
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"credentials": creds,
		"bucket":      cfg.S3.Bucket,
		"region":      cfg.S3.Region,
		"prefix":      prefix,
	})
}

// handleUploadConfig reports the active backend and upload limits so the
// client can shape its upload flow before sending bytes.
func (s *Server) handleUploadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.settings.Snapshot(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"storageType":   cfg.ActiveKind,
		"backends":      storage.Kinds,
		"maxUploadSize": s.maxUploadSize,
	})
}
