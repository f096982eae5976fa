package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yuhuotech/pixelhub/internal/logging"
	"github.com/yuhuotech/pixelhub/internal/metadata/postgres"
	"github.com/yuhuotech/pixelhub/internal/metrics"
	"github.com/yuhuotech/pixelhub/internal/storage"
)

const defaultPageSize = 20

// handleListImages returns one gallery page. Supported query parameters:
// cursor, q, trash, year, month, limit.
func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := postgres.ListFilter{
		Trash:  q.Get("trash") == "true",
		Query:  q.Get("q"),
		Cursor: q.Get("cursor"),
		Limit:  defaultPageSize,
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			sendError(w, http.StatusBadRequest, "invalid year")
			return
		}
		filter.Year = year
	}
	if v := q.Get("month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil || month < 1 || month > 12 {
			sendError(w, http.StatusBadRequest, "invalid month")
			return
		}
		filter.Month = month
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 200 {
			sendError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		filter.Limit = limit
	}

	images, nextCursor, err := s.store.ListImages(r.Context(), filter)
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	cfg, err := s.settings.Snapshot(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(images))
	for _, rec := range images {
		item := map[string]any{
			"id":          rec.ID,
			"storageType": rec.BackendKind,
			"key":         rec.ObjectKey,
			"publicPath":  rec.PublicPath,
			"url":         s.absoluteURL(r, rec.URL),
			"filename":    rec.Filename,
			"size":        rec.Size,
			"mimeType":    rec.MimeType,
			"createdAt":   rec.CreatedAt,
		}
		if origin := originURL(cfg, rec); origin != "" {
			item["originUrl"] = origin
		}
		if rec.Width > 0 {
			item["width"] = rec.Width
			item["height"] = rec.Height
		}
		if rec.DeletedAt != nil {
			item["deletedAt"] = rec.DeletedAt
		}
		items = append(items, item)
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"images":     items,
		"nextCursor": nextCursor,
	})
}

// originURL builds the direct backend address of an object from the
// current settings, for backends that expose one. Local objects are only
// reachable through the file proxy.
func originURL(cfg storage.Config, rec *postgres.ImageRecord) string {
	switch storage.Kind(rec.BackendKind) {
	case storage.KindS3:
		if cfg.S3.Bucket == "" {
			return ""
		}
		if cfg.S3.Endpoint != "" {
			return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(cfg.S3.Endpoint, "/"), cfg.S3.Bucket, rec.ObjectKey)
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.S3.Bucket, cfg.S3.Region, rec.ObjectKey)
	case storage.KindMinio:
		if cfg.Minio.Endpoint == "" || cfg.Minio.Bucket == "" {
			return ""
		}
		scheme := "https"
		if !cfg.Minio.UseSSL {
			scheme = "http"
		}
		return fmt.Sprintf("%s://%s/%s/%s", scheme, cfg.Minio.Endpoint, cfg.Minio.Bucket, rec.ObjectKey)
	case storage.KindGitHub:
		if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
			return ""
		}
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s",
			cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Branch, rec.ObjectKey)
	case storage.KindGitee:
		if cfg.Gitee.Owner == "" || cfg.Gitee.Repo == "" {
			return ""
		}
		return fmt.Sprintf("https://gitee.com/%s/%s/raw/%s/%s",
			cfg.Gitee.Owner, cfg.Gitee.Repo, cfg.Gitee.Branch, rec.ObjectKey)
	default:
		return ""
	}
}

// handleImageStats summarizes stored images per backend.
func (s *Server) handleImageStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Stats(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	var totalCount, totalBytes int64
	for _, c := range counts {
		totalCount += c.Count
		totalBytes += c.Bytes
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"totalCount": totalCount,
		"totalSize":  totalBytes,
		"backends":   counts,
	})
}

// handleDeleteImage soft-deletes by default; ?force=true removes the
// record permanently. Neither touches the stored object.
func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var err error
	if r.URL.Query().Get("force") == "true" {
		rec, getErr := s.store.GetImage(r.Context(), id)
		err = s.store.HardDeleteImage(r.Context(), id)
		if err == nil && getErr == nil && rec != nil {
			// The backend object outlives the record; log it for cleanup.
			metrics.RecordOrphanedObject(rec.BackendKind)
			logging.Info("orphaned object: record removed, bytes remain",
				zap.String("backend", rec.BackendKind),
				zap.String("key", rec.ObjectKey))
		}
	} else {
		err = s.store.SoftDeleteImage(r.Context(), id)
	}
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// handlePatchImage restores a soft-deleted image.
func (s *Server) handlePatchImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Restore bool `json:"restore"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Restore {
		sendError(w, http.StatusBadRequest, "expected {\"restore\": true}")
		return
	}

	if err := s.store.RestoreImage(r.Context(), id); err != nil {
		s.sendStorageError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]string{"id": id, "status": "restored"})
}
