// Package api exposes the HTTP surface: auth, uploads, the image file
// proxy, gallery listing and settings management.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/yuhuotech/pixelhub/internal/auth"
	"github.com/yuhuotech/pixelhub/internal/logging"
	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/metrics"
	"github.com/yuhuotech/pixelhub/internal/proxy"
	"github.com/yuhuotech/pixelhub/internal/settings"
	"github.com/yuhuotech/pixelhub/internal/storage"
	"github.com/yuhuotech/pixelhub/internal/upload"
)

// Server wires handlers to their dependencies.
type Server struct {
	store         *postgres.Store
	settings      *settings.Store
	auth          *auth.Auth
	uploader      *upload.Orchestrator
	proxy         *proxy.Proxy
	maxUploadSize int64
	baseURL       string
}

type Options struct {
	Store         *postgres.Store
	Settings      *settings.Store
	Auth          *auth.Auth
	Uploader      *upload.Orchestrator
	Proxy         *proxy.Proxy
	MaxUploadSize int64
	BaseURL       string
}

func NewServer(opts Options) *Server {
	return &Server{
		store:         opts.Store,
		settings:      opts.Settings,
		auth:          opts.Auth,
		uploader:      opts.Uploader,
		proxy:         opts.Proxy,
		maxUploadSize: opts.MaxUploadSize,
		baseURL:       opts.BaseURL,
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", s.auth.HandleLogin)
	mux.HandleFunc("GET /file/{path...}", s.handleFile)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /upload/{backend}", s.handleUpload)
	protected.HandleFunc("POST /upload/url", s.handleUploadURL)
	protected.HandleFunc("GET /api/v1/upload/sign", s.handleSignUpload)
	protected.HandleFunc("GET /api/v1/upload/config", s.handleUploadConfig)
	protected.HandleFunc("GET /api/v1/images", s.handleListImages)
	protected.HandleFunc("GET /api/v1/images/stats", s.handleImageStats)
	protected.HandleFunc("DELETE /api/v1/images/{id}", s.handleDeleteImage)
	protected.HandleFunc("PATCH /api/v1/images/{id}", s.handlePatchImage)
	protected.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	protected.HandleFunc("PUT /api/v1/settings", s.handlePutSettings)
	mux.Handle("/", s.auth.Middleware(protected))

	return logging.Middleware(metrics.HTTPMiddleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		sendError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFile serves an uploaded image by its public path.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	publicPath := r.PathValue("path")

	cfg, err := s.settings.Snapshot(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	res, err := s.proxy.Fetch(r.Context(), cfg, publicPath)
	if err != nil {
		s.sendStorageError(w, err)
		return
	}
	defer res.Close()

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", proxy.CacheControl)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", res.Filename))
	if res.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}
	if _, err := io.Copy(w, res.Body); err != nil {
		logging.Warn("file stream interrupted", zap.String("path", publicPath), zap.Error(err))
	}
}

// absoluteURL turns a relative image URL into one a client can fetch.
func (s *Server) absoluteURL(r *http.Request, rel string) string {
	if s.baseURL != "" {
		return s.baseURL + rel
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + rel
}

// sendStorageError maps storage and lookup failures onto HTTP statuses.
func (s *Server) sendStorageError(w http.ResponseWriter, err error) {
	var (
		validationErr *upload.ValidationError
		configErr     *storage.ConfigError
		uploadErr     *storage.UploadError
		transportErr  *storage.TransportError
	)
	switch {
	case errors.As(err, &validationErr):
		sendError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		sendError(w, http.StatusNotFound, "image not found")
	case errors.As(err, &configErr):
		logging.Error("storage misconfigured", zap.Error(err))
		sendError(w, http.StatusInternalServerError, configErr.Error())
	case errors.As(err, &transportErr):
		logging.Error("backend transport failure", zap.Error(err))
		status := http.StatusBadGateway
		if transportErr.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		sendError(w, status, "storage backend request failed")
	case errors.As(err, &uploadErr):
		logging.Error("upload failed", zap.Error(err))
		sendError(w, http.StatusInternalServerError, uploadErr.Error())
	default:
		logging.Error("request failed", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
	}
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, map[string]string{"error": message})
}
