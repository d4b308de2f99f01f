package httpapi

import (
	"net/http"
	"strconv"

	"github.com/campusfix/campusfix/internal/models"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, models.ErrInvalidLoginPassword)
		return
	}
	if err := s.users.Register(r.Context(), req.Username, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, models.ErrInvalidLoginPassword)
		return
	}
	pair, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       pair.UserID,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, models.ErrInvalidToken)
		return
	}
	pair, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       pair.UserID,
	})
}

// pageResponse mirrors the client's page envelope.
type pageResponse struct {
	Rows  []models.Entity `json:"rows"`
	Count int             `json:"count"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(r.PathValue("collection"))
	q := r.URL.Query()
	filter := models.FilterFromQuery(q)
	sort := models.SortFromQuery(q)
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	page, err := s.records.List(r.Context(), collection, filter, sort, offset, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows := page.Rows
	if rows == nil {
		rows = []models.Entity{}
	}
	writeJSON(w, http.StatusOK, pageResponse{Rows: rows, Count: page.Total})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(r.PathValue("collection"))
	e, err := s.records.Get(r.Context(), collection, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(r.PathValue("collection"))
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		s.writeError(w, models.ErrUnknownCollection)
		return
	}
	e, err := s.records.Create(r.Context(), collection, userID(r.Context()), fields)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(r.PathValue("collection"))
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		s.writeError(w, models.ErrUnknownCollection)
		return
	}
	e, err := s.records.Update(r.Context(), collection, r.PathValue("id"), userID(r.Context()), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection := models.Collection(r.PathValue("collection"))
	err := s.records.Delete(r.Context(), collection, r.PathValue("id"), userID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket string `json:"bucket"`
		Path   string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	uploadURL, publicURL, err := s.storage.PresignPut(r.Context(), req.Bucket, req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"uploadUrl": uploadURL,
		"publicUrl": publicURL,
	})
}
