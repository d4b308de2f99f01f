package fallback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/campusfix/campusfix/internal/models"
)

// Cache stores flat lists of fallback records, one list per logical purpose
// (e.g. "my-reports"). Records are created on write failure or pre-emptively
// for zero-latency feedback; they are never garbage-collected here, only
// recomputed by the owning view's next merge pass.
type Cache struct {
	kv KV
}

func NewCache(kv KV) *Cache {
	return &Cache{kv: kv}
}

// NewLocalID synthesizes an id for a row the remote store has not confirmed.
// The prefix keeps the two id spaces distinguishable.
func NewLocalID() string {
	return models.LocalIDPrefix + uuid.NewString()
}

// storedRecord is the persisted shape; the row stays raw until its
// collection is known.
type storedRecord struct {
	Collection models.Collection `json:"collection"`
	Row        json.RawMessage   `json:"row"`
}

func purposeKey(purpose string) string {
	return "fallback:" + purpose
}

func (c *Cache) load(ctx context.Context, purpose string) ([]storedRecord, error) {
	raw, ok, err := c.kv.GetItem(ctx, purposeKey(purpose))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var records []storedRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("fallback list for %q is corrupt: %w", purpose, err)
	}
	return records, nil
}

func (c *Cache) store(ctx context.Context, purpose string, records []storedRecord) error {
	b, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.kv.SetItem(ctx, purposeKey(purpose), string(b))
}

// Append adds a record, or replaces the existing record with the same id.
func (c *Cache) Append(ctx context.Context, purpose string, e models.Entity) error {
	if err := models.Validate(e); err != nil {
		return err
	}
	row, err := json.Marshal(e)
	if err != nil {
		return err
	}
	records, err := c.load(ctx, purpose)
	if err != nil {
		return err
	}

	rec := storedRecord{Collection: e.Collection(), Row: row}
	replaced := false
	for i, existing := range records {
		if rowID(existing.Row) == e.Meta().ID {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return c.store(ctx, purpose, records)
}

// ListFor returns the records for a purpose, optionally narrowed to one
// owner. Records that no longer decode are skipped rather than failing the
// whole list.
func (c *Cache) ListFor(ctx context.Context, purpose, ownerID string) ([]models.Entity, error) {
	records, err := c.load(ctx, purpose)
	if err != nil {
		return nil, err
	}
	result := make([]models.Entity, 0, len(records))
	for _, rec := range records {
		e, err := models.Decode(rec.Collection, rec.Row)
		if err != nil {
			continue
		}
		if ownerID != "" && e.Meta().OwnerID != ownerID {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// Patch updates the named fields of one record in place. A missing id is a
// no-op, matching the remote store's tolerance for racing deletes.
func (c *Cache) Patch(ctx context.Context, purpose, id string, fields map[string]any) error {
	records, err := c.load(ctx, purpose)
	if err != nil {
		return err
	}
	for i, rec := range records {
		if rowID(rec.Row) != id {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(rec.Row, &m); err != nil {
			return fmt.Errorf("fallback record %q is corrupt: %w", id, err)
		}
		for k, v := range fields {
			m[k] = v
		}
		patched, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := models.Decode(rec.Collection, patched); err != nil {
			return err
		}
		records[i].Row = patched
		return c.store(ctx, purpose, records)
	}
	return nil
}

func rowID(row json.RawMessage) string {
	var m struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(row, &m)
	return m.ID
}
