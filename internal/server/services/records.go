package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/campusfix/campusfix/internal/models"
	"github.com/campusfix/campusfix/internal/server/feedhub"
	"github.com/campusfix/campusfix/internal/server/repositories/records"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// RecordService implements the row CRUD behind /api/tables. Every write
// publishes a change event, so realtime subscribers track the store without
// polling.
type RecordService struct {
	repo records.Repository
	hub  *feedhub.Hub
}

func NewRecordService(repo records.Repository, hub *feedhub.Hub) *RecordService {
	return &RecordService{repo: repo, hub: hub}
}

// ListPage is a bulk query result: one page of rows plus the filtered total.
type ListPage struct {
	Rows  []models.Entity
	Total int
}

func (s *RecordService) List(ctx context.Context, collection models.Collection, filter models.Filter, sort models.Sort, offset, limit int) (*ListPage, error) {
	if !collection.Valid() {
		return nil, models.ErrUnknownCollection
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.repo.List(ctx, collection, filter, sort, offset, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	return &ListPage{Rows: rows, Total: total}, nil
}

func (s *RecordService) Get(ctx context.Context, collection models.Collection, id string) (models.Entity, error) {
	if !collection.Valid() {
		return nil, models.ErrUnknownCollection
	}
	return s.repo.Get(ctx, collection, id)
}

// Create inserts a new row owned by ownerID. The server assigns id, owner,
// timestamps and the default status; client-supplied values for those fields
// are ignored.
func (s *RecordService) Create(ctx context.Context, collection models.Collection, ownerID string, fields map[string]any) (models.Entity, error) {
	if !collection.Valid() {
		return nil, models.ErrUnknownCollection
	}

	doc := map[string]any{}
	for k, v := range fields {
		doc[k] = v
	}
	now := time.Now().UTC()
	doc["id"] = uuid.NewString()
	doc["ownerId"] = ownerID
	doc["createdAt"] = now
	doc["updatedAt"] = now
	if str, _ := doc["status"].(string); str == "" {
		doc["status"] = models.DefaultStatus(collection)
	}

	e, err := decodeDoc(collection, doc)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, err
	}

	s.hub.Publish(models.EventInsert, collection, e.Meta().ID, e)
	return e, nil
}

// Update applies a partial patch to a row the actor owns. Identity fields in
// the patch are discarded; updatedAt is bumped.
func (s *RecordService) Update(ctx context.Context, collection models.Collection, id, actorID string, patch map[string]any) (models.Entity, error) {
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if existing.Meta().OwnerID != actorID {
		return nil, models.ErrNotOwner
	}

	raw, err := json.Marshal(existing)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range patch {
		doc[k] = v
	}
	doc["id"] = existing.Meta().ID
	doc["ownerId"] = existing.Meta().OwnerID
	doc["createdAt"] = existing.Meta().CreatedAt
	doc["updatedAt"] = time.Now().UTC()

	e, err := decodeDoc(collection, doc)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	s.hub.Publish(models.EventUpdate, collection, id, e)
	return e, nil
}

// Delete removes a row the actor owns.
func (s *RecordService) Delete(ctx context.Context, collection models.Collection, id, actorID string) error {
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if existing.Meta().OwnerID != actorID {
		return models.ErrNotOwner
	}

	if err := s.repo.Delete(ctx, collection, id); err != nil {
		return err
	}

	s.hub.Publish(models.EventDelete, collection, id, nil)
	return nil
}

// decodeDoc round-trips a document through models.Decode, which enforces the
// per-collection validation rules.
func decodeDoc(collection models.Collection, doc map[string]any) (models.Entity, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return models.Decode(collection, raw)
}
