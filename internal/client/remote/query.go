package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/campusfix/campusfix/internal/models"
)

// Page is the response shape of a range query.
type Page struct {
	Rows  []models.Entity
	Total int
}

// pageEnvelope mirrors the store's {rows, count} response.
type pageEnvelope struct {
	Rows  []json.RawMessage `json:"rows"`
	Count int               `json:"count"`
}

// FetchPage runs a filtered, sorted range query against one collection.
// Transient failures (network, 5xx) are retried with fibonacci backoff before
// the error is surfaced; write operations are never retried.
func (c *Client) FetchPage(ctx context.Context, collection models.Collection, filter models.Filter, sort models.Sort, offset, limit int) (Page, error) {
	if !collection.Valid() {
		return Page{}, remoteErr("fetch", collection, KindBadRequest, models.ErrUnknownCollection)
	}

	params := filter.Values()
	for k, vs := range sort.Values() {
		params[k] = vs
	}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/api/tables/%s?%s", collection, params.Encode())

	var page Page
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var env pageEnvelope
		if err := c.doJSON(ctx, "GET", path, nil, &env); err != nil {
			var re *RemoteError
			if errors.As(err, &re) && re.Transient() {
				return retry.RetryableError(err)
			}
			return err
		}
		rows := make([]models.Entity, 0, len(env.Rows))
		for _, raw := range env.Rows {
			e, err := models.Decode(collection, raw)
			if err != nil {
				return remoteErr("fetch", collection, KindDecode, err)
			}
			rows = append(rows, e)
		}
		page = Page{Rows: rows, Total: env.Count}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// FetchOne returns a single row by id. A missing row yields models.ErrNotFound
// (check with errors.Is), not a generic failure.
func (c *Client) FetchOne(ctx context.Context, collection models.Collection, id string) (models.Entity, error) {
	if !collection.Valid() {
		return nil, remoteErr("fetch", collection, KindBadRequest, models.ErrUnknownCollection)
	}
	var raw json.RawMessage
	path := fmt.Sprintf("/api/tables/%s/%s", collection, url.PathEscape(id))
	if err := c.doJSON(ctx, "GET", path, nil, &raw); err != nil {
		return nil, err
	}
	e, err := models.Decode(collection, raw)
	if err != nil {
		return nil, remoteErr("fetch", collection, KindDecode, err)
	}
	return e, nil
}
