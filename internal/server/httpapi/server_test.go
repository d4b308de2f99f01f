package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/campusfix/campusfix/internal/dbx"
	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
	"github.com/campusfix/campusfix/internal/server/auth"
	"github.com/campusfix/campusfix/internal/server/config"
	"github.com/campusfix/campusfix/internal/server/feedhub"
	"github.com/campusfix/campusfix/internal/server/repositories/records"
	"github.com/campusfix/campusfix/internal/server/repositories/refreshtokens"
	"github.com/campusfix/campusfix/internal/server/repositories/users"
	"github.com/campusfix/campusfix/internal/server/services"
)

// In-memory repositories; the *sql.DB below only provides transactions.

type memUserRepo struct {
	byName map[string]*users.User
	nextID int
}

func (r *memUserRepo) Create(_ context.Context, u *users.User) (*users.User, error) {
	if _, ok := r.byName[u.Username]; ok {
		return nil, models.ErrLoginAlreadyExists
	}
	r.nextID++
	u.ID = fmt.Sprintf("user-%d", r.nextID)
	u.CreatedAt = time.Now().UTC()
	r.byName[u.Username] = u
	return u, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, name string) (*users.User, error) {
	u, ok := r.byName[name]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

type memTokenRepo struct {
	tokens map[string]*refreshtokens.Token
}

func (r *memTokenRepo) Create(_ context.Context, userID, token string, validity time.Duration) error {
	r.tokens[token] = &refreshtokens.Token{Token: token, UserID: userID, Expires: time.Now().Add(validity)}
	return nil
}

func (r *memTokenRepo) Find(_ context.Context, token string) (*refreshtokens.Token, error) {
	t, ok := r.tokens[token]
	if !ok {
		return nil, models.ErrInvalidToken
	}
	return t, nil
}

func (r *memTokenRepo) Delete(_ context.Context, token string) error {
	delete(r.tokens, token)
	return nil
}

type memRecordRepo struct {
	rows map[string]models.Entity
}

func recKey(c models.Collection, id string) string { return string(c) + "/" + id }

func (r *memRecordRepo) List(_ context.Context, c models.Collection, f models.Filter, _ models.Sort, _, _ int) ([]models.Entity, error) {
	var out []models.Entity
	for _, e := range r.rows {
		if e.Collection() == c && f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRecordRepo) Count(_ context.Context, c models.Collection, f models.Filter) (int, error) {
	rows, _ := r.List(context.Background(), c, f, models.Sort{}, 0, 0)
	return len(rows), nil
}

func (r *memRecordRepo) Get(_ context.Context, c models.Collection, id string) (models.Entity, error) {
	e, ok := r.rows[recKey(c, id)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return e, nil
}

func (r *memRecordRepo) Insert(_ context.Context, e models.Entity) error {
	r.rows[recKey(e.Collection(), e.Meta().ID)] = e
	return nil
}

func (r *memRecordRepo) Update(_ context.Context, e models.Entity) error {
	r.rows[recKey(e.Collection(), e.Meta().ID)] = e
	return nil
}

func (r *memRecordRepo) Delete(_ context.Context, c models.Collection, id string) error {
	delete(r.rows, recKey(c, id))
	return nil
}

type memRepos struct {
	users   *memUserRepo
	tokens  *memTokenRepo
	records *memRecordRepo
}

func (m *memRepos) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *memRepos) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }
func (m *memRepos) Records(dbx.DBTX) records.Repository             { return m.records }
func (m *memRepos) RunMigrations(context.Context, *sql.DB) error    { return nil }

type testEnv struct {
	ts  *httptest.Server
	hub *feedhub.Hub
	svc *services.RecordService
	cfg *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	repos := &memRepos{
		users:   &memUserRepo{byName: map[string]*users.User{}},
		tokens:  &memTokenRepo{tokens: map[string]*refreshtokens.Token{}},
		records: &memRecordRepo{rows: map[string]models.Entity{}},
	}

	logger := logging.NewDiscard()
	hub := feedhub.NewHub(logger)
	userSvc := services.NewUserService(db, repos, cfg)
	recordSvc := services.NewRecordService(repos.records, hub)
	storageSvc := services.NewStorageService(cfg)

	srv := NewServer(logger, userSvc, recordSvc, storageSvc, hub, cfg.SecretKey)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, svc: recordSvc, cfg: cfg}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, env.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (env *testEnv) login(t *testing.T, username string) tokenPairResponse {
	t.Helper()
	creds := credentialsRequest{Username: username, Password: "pw-" + username}
	resp := env.do(t, "POST", "/api/register", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "POST", "/api/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[tokenPairResponse](t, resp)
}

func TestRegisterLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	pair := env.login(t, "alice")
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEmpty(t, pair.UserID)

	// Duplicate registration conflicts.
	resp := env.do(t, "POST", "/api/register", "", credentialsRequest{Username: "alice", Password: "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Wrong password is a 401.
	resp = env.do(t, "POST", "/api/login", "", credentialsRequest{Username: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	pair := env.login(t, "alice")

	resp := env.do(t, "POST", "/api/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next := decode[tokenPairResponse](t, resp)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The old refresh token is spent.
	resp = env.do(t, "POST", "/api/refresh", "", map[string]string{"refreshToken": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRowCRUD(t *testing.T) {
	env := newTestEnv(t)
	pair := env.login(t, "alice")

	resp := env.do(t, "POST", "/api/tables/issues", pair.AccessToken, map[string]any{"title": "broken door"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, pair.UserID, created["ownerId"])
	assert.Equal(t, models.StatusPending, created["status"])

	// Reads are public.
	resp = env.do(t, "GET", "/api/tables/issues/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "GET", "/api/tables/issues?eq=ownerId:"+pair.UserID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[struct {
		Rows  []json.RawMessage `json:"rows"`
		Count int               `json:"count"`
	}](t, resp)
	assert.Len(t, page.Rows, 1)
	assert.Equal(t, 1, page.Count)

	resp = env.do(t, "PATCH", "/api/tables/issues/"+id, pair.AccessToken, map[string]any{"status": models.StatusResolved})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decode[map[string]any](t, resp)
	assert.Equal(t, models.StatusResolved, patched["status"])

	resp = env.do(t, "DELETE", "/api/tables/issues/"+id, pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "GET", "/api/tables/issues/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWritesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "POST", "/api/tables/issues", "", map[string]any{"title": "anon"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.NotEmpty(t, body["error"])
}

func TestExpiredAccessToken(t *testing.T) {
	env := newTestEnv(t)

	expired, err := auth.GenerateToken("user-1", []byte(env.cfg.SecretKey), -time.Minute)
	require.NoError(t, err)

	resp := env.do(t, "POST", "/api/tables/issues", expired, map[string]any{"title": "late"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice")
	mallory := env.login(t, "mallory")

	resp := env.do(t, "POST", "/api/tables/issues", alice.AccessToken, map[string]any{"title": "mine"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	id := created["id"].(string)

	resp = env.do(t, "PATCH", "/api/tables/issues/"+id, mallory.AccessToken, map[string]any{"status": models.StatusResolved})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "DELETE", "/api/tables/issues/"+id, mallory.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestUnknownCollection(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "GET", "/api/tables/widgets", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPresign(t *testing.T) {
	env := newTestEnv(t)
	pair := env.login(t, "alice")

	resp := env.do(t, "POST", "/api/storage/presign", pair.AccessToken,
		map[string]string{"bucket": "media", "path": "u1/photo.jpg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["uploadUrl"], "media/u1/photo.jpg")
	assert.Equal(t, env.cfg.S3PublicBase+"/media/u1/photo.jpg", body["publicUrl"])

	resp = env.do(t, "POST", "/api/storage/presign", pair.AccessToken,
		map[string]string{"bucket": "media", "path": "../escape"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRealtimeDelivery(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/realtime"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeFrame{
		Collection: models.CollectionIssues,
		Predicate:  &feedhub.Predicate{Field: "ownerId", Value: "u1"},
	}))

	// Give the handler a moment to register the subscription.
	require.Eventually(t, func() bool {
		env.hub.Publish(models.EventInsert, models.CollectionIssues, "probe",
			&models.Issue{EntityMeta: models.EntityMeta{ID: "probe", OwnerID: "u1", CreatedAt: time.Now().UTC()}, Title: "probe"})
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var ev models.ChangeEvent
		return conn.ReadJSON(&ev) == nil
	}, 2*time.Second, 50*time.Millisecond)

	_, err = env.svc.Create(context.Background(), models.CollectionIssues, "u2", map[string]any{"title": "not mine"})
	require.NoError(t, err)
	_, err = env.svc.Create(context.Background(), models.CollectionIssues, "u1", map[string]any{"title": "mine"})
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.ChangeEvent
	for {
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.RowID != "probe" {
			break
		}
	}
	assert.Equal(t, models.EventInsert, ev.Kind)
	require.NotNil(t, ev.Entity)
	assert.Equal(t, "u1", ev.Entity.Meta().OwnerID)
	assert.Equal(t, "mine", ev.Entity.(*models.Issue).Title)
}

func TestRealtimeRejectsUnknownCollection(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/realtime"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(subscribeFrame{Collection: "widgets"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}
