package fallback

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/campusfix/internal/models"

	_ "modernc.org/sqlite"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	db, err := OpenDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCache(NewSQLiteKV(db))
}

func report(id, owner, title string) *models.Report {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &models.Report{
		EntityMeta: models.EntityMeta{
			ID: id, OwnerID: owner, Status: models.StatusSubmitted,
			CreatedAt: created, UpdatedAt: created,
		},
		Title: title,
	}
}

func TestAppendAndListFor(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "my-reports", report("r1", "u1", "a")))
	require.NoError(t, c.Append(ctx, "my-reports", report("r2", "u2", "b")))

	all, err := c.ListFor(ctx, "my-reports", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := c.ListFor(ctx, "my-reports", "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r1", mine[0].Meta().ID)
}

func TestAppend_ReplacesById(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "p", report("r1", "u1", "first")))
	require.NoError(t, c.Append(ctx, "p", report("r1", "u1", "second")))

	got, err := c.ListFor(ctx, "p", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].(*models.Report).Title)
}

func TestPatch(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "p", report("r1", "u1", "before")))
	require.NoError(t, c.Patch(ctx, "p", "r1", map[string]any{
		"title":  "after",
		"status": models.StatusReviewed,
	}))

	got, err := c.ListFor(ctx, "p", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	r := got[0].(*models.Report)
	assert.Equal(t, "after", r.Title)
	assert.Equal(t, models.StatusReviewed, r.Status)
}

func TestPatch_MissingIdIsNoop(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "p", report("r1", "u1", "x")))
	require.NoError(t, c.Patch(ctx, "p", "does-not-exist", map[string]any{"title": "y"}))

	got, err := c.ListFor(ctx, "p", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].(*models.Report).Title)
}

func TestPatch_RejectsInvalidResult(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "p", report("r1", "u1", "x")))
	err := c.Patch(ctx, "p", "r1", map[string]any{"status": "bogus"})
	var de *models.DecodeError
	require.ErrorAs(t, err, &de)
}

func TestNewLocalID_HasPrefix(t *testing.T) {
	id := NewLocalID()
	assert.True(t, strings.HasPrefix(id, models.LocalIDPrefix))
	assert.NotEqual(t, NewLocalID(), id)
}

func TestKV_RoundTrip(t *testing.T) {
	db, err := OpenDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	kv := NewSQLiteKV(db)
	ctx := context.Background()

	_, ok, err := kv.GetItem(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.SetItem(ctx, "k", "v1"))
	require.NoError(t, kv.SetItem(ctx, "k", "v2"))

	v, ok, err := kv.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}
