package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
)

const issueRow = `{
	"id": "i1", "ownerId": "u1", "status": "pending",
	"createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-01T00:00:00Z",
	"title": "Broken window"
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, logging.NewDiscard())
}

func TestFetchPage(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables/issues", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"rows":[` + issueRow + `],"count":7}`))
	}))

	page, err := c.FetchPage(context.Background(), models.CollectionIssues,
		models.Eq1("ownerId", "u1"), models.Sort{}, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "i1", page.Rows[0].Meta().ID)
	assert.Contains(t, gotQuery, "eq=ownerId%3Au1")
	assert.Contains(t, gotQuery, "order=createdAt.desc")
}

func TestFetchPage_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"db down"}`, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"rows":[],"count":0}`))
	}))

	_, err := c.FetchPage(context.Background(), models.CollectionIssues, models.Filter{}, models.Sort{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPage_BadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"malformed predicate"}`, http.StatusBadRequest)
	}))

	_, err := c.FetchPage(context.Background(), models.CollectionIssues, models.Filter{}, models.Sort{}, 0, 10)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindBadRequest, re.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPage_InvalidRowFailsDecode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[{"id":""}],"count":1}`))
	}))

	_, err := c.FetchPage(context.Background(), models.CollectionIssues, models.Filter{}, models.Sort{}, 0, 10)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindDecode, re.Kind)
}

func TestFetchOne_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.FetchOne(context.Background(), models.CollectionIssues, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestInsert_ReturnsStoredRow(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Broken window", in["title"])
		_, _ = w.Write([]byte(issueRow))
	}))

	e, err := c.Insert(context.Background(), models.CollectionIssues, map[string]any{"title": "Broken window"})
	require.NoError(t, err)
	assert.Equal(t, "i1", e.Meta().ID)
}

func TestDoJSON_RefreshesExpiredToken(t *testing.T) {
	var refreshed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"stale","refreshToken":"r1"}`))
	})
	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshed.Store(true)
		_, _ = w.Write([]byte(`{"accessToken":"fresh","refreshToken":"r2"}`))
	})
	mux.HandleFunc("GET /api/tables/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(AccessTokenHeader) != "Bearer fresh" {
			http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"rows":[],"count":0}`))
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.Login(context.Background(), "u1", "pw"))
	_, err := c.FetchPage(context.Background(), models.CollectionIssues, models.Filter{}, models.Sort{}, 0, 10)
	require.NoError(t, err)
	assert.True(t, refreshed.Load())
	assert.Equal(t, "fresh", c.AccessToken())
}

func TestUploadObject(t *testing.T) {
	mux := http.NewServeMux()
	var uploaded []byte
	var srvURL string
	mux.HandleFunc("POST /api/storage/presign", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "media", in["bucket"])
		resp := map[string]string{
			"uploadUrl": srvURL + "/put/" + in["path"],
			"publicUrl": "https://cdn.example.com/" + in["path"],
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("PUT /put/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		uploaded = body
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	c := NewClient(srv.URL, logging.NewDiscard())

	url, err := c.UploadObject(context.Background(), "media", "u1-123.jpg", []byte("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/u1-123.jpg", url)
	assert.Equal(t, []byte("jpegbytes"), uploaded)
}

func TestUploadObject_FailureIsTyped(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no such bucket"}`, http.StatusBadRequest)
	}))

	_, err := c.UploadObject(context.Background(), "nope", "p.jpg", []byte("x"))
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "nope", ue.Bucket)
}
