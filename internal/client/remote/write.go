package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/campusfix/campusfix/internal/models"
)

// Insert creates a row and returns the stored version with its server-assigned
// id and timestamps. Writes are fire-and-confirm: no optimistic locking, a
// racing write last-writer-wins at the store.
func (c *Client) Insert(ctx context.Context, collection models.Collection, fields any) (models.Entity, error) {
	if !collection.Valid() {
		return nil, remoteErr("insert", collection, KindBadRequest, models.ErrUnknownCollection)
	}
	var raw json.RawMessage
	path := fmt.Sprintf("/api/tables/%s", collection)
	if err := c.doJSON(ctx, "POST", path, fields, &raw); err != nil {
		return nil, err
	}
	e, err := models.Decode(collection, raw)
	if err != nil {
		return nil, remoteErr("insert", collection, KindDecode, err)
	}
	return e, nil
}

// Update patches the named fields of a row.
func (c *Client) Update(ctx context.Context, collection models.Collection, id string, fields map[string]any) error {
	if !collection.Valid() {
		return remoteErr("update", collection, KindBadRequest, models.ErrUnknownCollection)
	}
	path := fmt.Sprintf("/api/tables/%s/%s", collection, url.PathEscape(id))
	return c.doJSON(ctx, "PATCH", path, fields, nil)
}

// Delete removes a row.
func (c *Client) Delete(ctx context.Context, collection models.Collection, id string) error {
	if !collection.Valid() {
		return remoteErr("delete", collection, KindBadRequest, models.ErrUnknownCollection)
	}
	path := fmt.Sprintf("/api/tables/%s/%s", collection, url.PathEscape(id))
	return c.doJSON(ctx, "DELETE", path, nil, nil)
}
