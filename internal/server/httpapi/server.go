// Package httpapi exposes the backend over JSON HTTP plus a websocket
// realtime feed. Reads are public; writes, uploads and token endpoints carry
// their own auth.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
	"github.com/campusfix/campusfix/internal/server/feedhub"
	"github.com/campusfix/campusfix/internal/server/services"
)

type Server struct {
	logger  logging.Logger
	users   *services.UserService
	records *services.RecordService
	storage *services.StorageService
	hub     *feedhub.Hub

	jwtSecret []byte
}

func NewServer(logger logging.Logger, users *services.UserService, records *services.RecordService,
	storage *services.StorageService, hub *feedhub.Hub, secretKey string) *Server {
	return &Server{
		logger:    logger.With("module", "httpapi"),
		users:     users,
		records:   records,
		storage:   storage,
		hub:       hub,
		jwtSecret: []byte(secretKey),
	}
}

// Handler builds the route table. Method+path patterns keep the dispatch in
// the mux instead of per-handler switches.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	mux.HandleFunc("GET /api/tables/{collection}", s.handleList)
	mux.HandleFunc("GET /api/tables/{collection}/{id}", s.handleGet)
	mux.Handle("POST /api/tables/{collection}", s.requireAuth(s.handleCreate))
	mux.Handle("PATCH /api/tables/{collection}/{id}", s.requireAuth(s.handleUpdate))
	mux.Handle("DELETE /api/tables/{collection}/{id}", s.requireAuth(s.handleDelete))

	mux.Handle("POST /api/storage/presign", s.requireAuth(s.handlePresign))

	mux.HandleFunc("GET /realtime", s.handleRealtime)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses and the {"error": ...}
// payload the client expects.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var de *models.DecodeError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrUnknownCollection),
		errors.Is(err, services.ErrBadStoragePath),
		errors.As(err, &de):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidLoginPassword),
		errors.Is(err, models.ErrInvalidToken),
		errors.Is(err, models.ErrTokenExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrLoginAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, models.ErrNotOwner):
		status = http.StatusForbidden
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
