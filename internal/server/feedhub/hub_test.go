package feedhub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/campusfix/internal/logging"
	"github.com/campusfix/campusfix/internal/models"
)

func issue(id, owner, title string) *models.Issue {
	return &models.Issue{
		EntityMeta: models.EntityMeta{
			ID:        id,
			OwnerID:   owner,
			Status:    models.StatusPending,
			CreatedAt: time.Now().UTC(),
		},
		Title: title,
	}
}

func recv(t *testing.T, ch <-chan models.ChangeEvent) models.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.ChangeEvent{}
	}
}

func TestPublishDeliversToMatchingCollection(t *testing.T) {
	h := NewHub(logging.NewDiscard())
	issues := h.Subscribe(models.CollectionIssues, nil)
	defer issues.Close()
	events := h.Subscribe(models.CollectionEvents, nil)
	defer events.Close()

	h.Publish(models.EventInsert, models.CollectionIssues, "i1", issue("i1", "u1", "leak"))

	ev := recv(t, issues.C)
	assert.Equal(t, models.EventInsert, ev.Kind)
	assert.Equal(t, "i1", ev.RowID)
	assert.NotEmpty(t, ev.Seq)

	select {
	case ev := <-events.C:
		t.Fatalf("unexpected event on other collection: %+v", ev)
	default:
	}
}

func TestPredicateNarrowsDelivery(t *testing.T) {
	h := NewHub(logging.NewDiscard())
	mine := h.Subscribe(models.CollectionIssues, &Predicate{Field: "ownerId", Value: "u1"})
	defer mine.Close()

	h.Publish(models.EventInsert, models.CollectionIssues, "a", issue("a", "u2", "not mine"))
	h.Publish(models.EventInsert, models.CollectionIssues, "b", issue("b", "u1", "mine"))

	ev := recv(t, mine.C)
	assert.Equal(t, "b", ev.RowID)
}

func TestDeleteBypassesPredicate(t *testing.T) {
	h := NewHub(logging.NewDiscard())
	mine := h.Subscribe(models.CollectionIssues, &Predicate{Field: "ownerId", Value: "u1"})
	defer mine.Close()

	h.Publish(models.EventDelete, models.CollectionIssues, "gone", nil)

	ev := recv(t, mine.C)
	assert.Equal(t, models.EventDelete, ev.Kind)
	assert.Equal(t, "gone", ev.RowID)
	assert.Nil(t, ev.Entity)
}

func TestSeqIsMonotonic(t *testing.T) {
	h := NewHub(logging.NewDiscard())
	sub := h.Subscribe(models.CollectionIssues, nil)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		h.Publish(models.EventInsert, models.CollectionIssues, "i1", issue("i1", "u1", "t"))
	}

	prev := ""
	for i := 0; i < 5; i++ {
		ev := recv(t, sub.C)
		assert.Greater(t, ev.Seq, prev)
		prev = ev.Seq
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	h := NewHub(logging.NewDiscard())
	sub := h.Subscribe(models.CollectionIssues, nil)
	sub.Close()
	sub.Close() // idempotent

	h.Publish(models.EventInsert, models.CollectionIssues, "i1", issue("i1", "u1", "t"))

	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(logging.NewDiscard())
	sub := h.Subscribe(models.CollectionIssues, nil)

	for i := 0; i < subscriberBuffer+1; i++ {
		h.Publish(models.EventInsert, models.CollectionIssues, "i1", issue("i1", "u1", "t"))
	}

	n := 0
	for range sub.C {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
}
