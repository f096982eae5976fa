package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yuhuotech/pixelhub/internal/auth"
	"github.com/yuhuotech/pixelhub/internal/logging"
	"github.com/yuhuotech/pixelhub/internal/settings"
	"github.com/yuhuotech/pixelhub/internal/storage"
)

// handleGetSettings returns the resolved settings. Secret values are
// masked; the client only needs to know whether they are set.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.All(r.Context())
	if err != nil {
		s.sendStorageError(w, err)
		return
	}

	masked := make(map[string]string, len(all))
	for key, value := range all {
		if isSecretKey(key) && value != "" {
			masked[key] = "********"
		} else {
			masked[key] = value
		}
	}

	sendJSON(w, http.StatusOK, map[string]any{"settings": masked})
}

// handlePutSettings updates settings from a flat key/value object. Unknown
// keys and an invalid storageType are rejected before anything is written.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req) == 0 {
		sendError(w, http.StatusBadRequest, "no settings provided")
		return
	}

	for key := range req {
		if !settings.Known(key) {
			sendError(w, http.StatusBadRequest, "unknown setting "+key)
			return
		}
	}
	if v, ok := req["storageType"]; ok {
		if _, valid := storage.ParseKind(v); !valid {
			sendError(w, http.StatusBadRequest, "unknown storage backend "+v)
			return
		}
	}

	for key, value := range req {
		if err := s.settings.Set(r.Context(), key, value); err != nil {
			s.sendStorageError(w, err)
			return
		}
	}

	username := ""
	if claims := auth.GetClaims(r.Context()); claims != nil {
		username = claims.Username
	}
	logging.Info("settings updated",
		zap.Strings("keys", keysOf(req)),
		zap.String("user", username))

	sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "secret") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "accesskey")
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
