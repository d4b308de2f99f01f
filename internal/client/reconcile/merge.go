package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/campusfix/campusfix/internal/models"
)

// DedupeMode picks how a fallback merge treats a locally-created record whose
// write later succeeded server-side under a different id.
type DedupeMode int

const (
	// DedupeNone concatenates without reconciling the two id spaces. A
	// locally-created record confirmed server-side shows up twice; this is
	// the original behavior, kept selectable on purpose.
	DedupeNone DedupeMode = iota

	// DedupeContentMatch drops a local-id record when a remote row by the
	// same owner with the same title was created within contentMatchWindow
	// of it.
	DedupeContentMatch
)

// contentMatchWindow bounds how far apart a local record and its confirmed
// remote counterpart may have been created and still be considered the same
// submission.
const contentMatchWindow = 2 * time.Minute

var ErrNoCache = errors.New("view has no fallback cache")

// MergeFallback folds the cached records for a purpose into the list:
// fallback records first, remote rows second. Records duplicating an id
// already in the list are always skipped (the list never holds an id twice);
// mode controls reconciliation across the two id spaces. ownerID narrows the
// cached records; empty means all.
func (v *View) MergeFallback(ctx context.Context, purpose, ownerID string, mode DedupeMode) error {
	if v.cache == nil {
		return ErrNoCache
	}
	records, err := v.cache.ListFor(ctx, purpose, ownerID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	present := make(map[string]struct{}, len(v.items))
	for _, e := range v.items {
		present[e.Meta().ID] = struct{}{}
	}

	ahead := make([]models.Entity, 0, len(records))
	for _, rec := range records {
		id := rec.Meta().ID
		if _, dup := present[id]; dup {
			continue
		}
		if mode == DedupeContentMatch && v.confirmedRemotelyLocked(rec) {
			continue
		}
		present[id] = struct{}{}
		ahead = append(ahead, rec)
	}

	v.items = append(ahead, v.items...)
	v.notifyLocked()
	return nil
}

// confirmedRemotelyLocked reports whether a local-id record has a plausible
// server-confirmed counterpart already in the list.
func (v *View) confirmedRemotelyLocked(rec models.Entity) bool {
	if !strings.HasPrefix(rec.Meta().ID, models.LocalIDPrefix) {
		return false
	}
	recTitle, _ := rec.Field("title")
	for _, e := range v.items {
		if strings.HasPrefix(e.Meta().ID, models.LocalIDPrefix) {
			continue
		}
		if e.Meta().OwnerID != rec.Meta().OwnerID {
			continue
		}
		title, _ := e.Field("title")
		if title != recTitle {
			continue
		}
		gap := e.Meta().CreatedAt.Sub(rec.Meta().CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= contentMatchWindow {
			return true
		}
	}
	return false
}
