package reconcile

import (
	"sort"

	"github.com/campusfix/campusfix/internal/client/feed"
	"github.com/campusfix/campusfix/internal/models"
)

// applyLocked patches the list with one change event. Callers hold v.mu.
//
// Rules:
//   - Insert of a present id behaves as an update (idempotent replace).
//   - Update of an absent id behaves as an insert, so an update racing the
//     active filter is not silently dropped.
//   - Delete of an absent id is a no-op.
//   - A patched row that no longer satisfies the active filter is evicted
//     even though the event was not a delete.
func (v *View) applyLocked(ev models.ChangeEvent) {
	switch ev.Kind {
	case models.EventDelete:
		v.removeLocked(ev.RowID)
	case models.EventInsert, models.EventUpdate:
		if ev.Entity == nil {
			return
		}
		v.upsertLocked(ev.Entity)
	}
}

func (v *View) upsertLocked(e models.Entity) {
	id := e.Meta().ID

	if !v.opts.Filter.Matches(e) {
		// The row moved outside the view's predicate; membership must be
		// recomputed, not just the raw operation applied.
		v.removeLocked(id)
		return
	}

	for i, existing := range v.items {
		if existing.Meta().ID == id {
			// Replace in place: the positions of other rows never move on
			// an update.
			v.items[i] = e
			return
		}
	}

	// New row: insert at the position the active sort dictates.
	idx := sort.Search(len(v.items), func(i int) bool {
		return v.opts.Sort.Less(e, v.items[i])
	})
	v.items = append(v.items, nil)
	copy(v.items[idx+1:], v.items[idx:])
	v.items[idx] = e
	v.total++
}

func (v *View) removeLocked(id string) {
	for i, existing := range v.items {
		if existing.Meta().ID == id {
			v.items = append(v.items[:i], v.items[i+1:]...)
			if v.total > 0 {
				v.total--
			}
			return
		}
	}
}

// subscriptionPredicate picks the single equality the feed channel is scoped
// by. ownerId wins when present since that is the dominant per-user view
// shape; otherwise the lexicographically smallest field keeps the choice
// deterministic. Remaining predicates are enforced client-side by Matches.
func subscriptionPredicate(f models.Filter) *feed.Predicate {
	if len(f.Eq) == 0 {
		return nil
	}
	if v, ok := f.Eq["ownerId"]; ok {
		return &feed.Predicate{Field: "ownerId", Value: v}
	}
	var field string
	for k := range f.Eq {
		if field == "" || k < field {
			field = k
		}
	}
	return &feed.Predicate{Field: field, Value: f.Eq[field]}
}
