// Package models defines the row types stored in the campus tables, the
// change events delivered over the realtime feed, and the filter predicates
// shared by queries and subscriptions.
package models

import (
	"time"
)

// Collection names a group of homogeneous rows in the relational store.
type Collection string

const (
	CollectionIssues        Collection = "issues"
	CollectionReports       Collection = "reports"
	CollectionEvents        Collection = "events"
	CollectionRegistrations Collection = "registrations"
)

// KnownCollections lists every collection the store serves.
var KnownCollections = []Collection{
	CollectionIssues, CollectionReports, CollectionEvents, CollectionRegistrations,
}

func (c Collection) Valid() bool {
	for _, k := range KnownCollections {
		if c == k {
			return true
		}
	}
	return false
}

// Issue statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

// Report statuses.
const (
	StatusSubmitted = "submitted"
	StatusReviewed  = "reviewed"
)

// Event statuses.
const (
	StatusPublished = "published"
	StatusCancelled = "cancelled"
)

// Registration statuses.
const (
	StatusRegistered   = "registered"
	StatusUnregistered = "unregistered"
)

// LocalIDPrefix marks ids synthesized by the fallback cache for rows the
// remote store has not confirmed.
const LocalIDPrefix = "local-"

// Meta carries the fields every row has regardless of collection.
type Meta struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entity is one row of a known collection. Field exposes the scalar fields a
// filter predicate may reference, keyed by their wire names.
type Entity interface {
	Collection() Collection
	Meta() *Meta
	Field(name string) (string, bool)
}

func (m *Meta) Meta() *Meta { return m }

// EntityMeta aliases Meta for embedding: an embedded field named Meta would
// shadow the promoted Meta accessor required by Entity.
type EntityMeta = Meta

// metaField resolves the fields common to all collections.
func (m *Meta) metaField(name string) (string, bool) {
	switch name {
	case "id":
		return m.ID, true
	case "ownerId":
		return m.OwnerID, true
	case "status":
		return m.Status, true
	case "createdAt":
		return m.CreatedAt.UTC().Format(time.RFC3339), true
	case "updatedAt":
		return m.UpdatedAt.UTC().Format(time.RFC3339), true
	}
	return "", false
}

// Issue is a maintenance problem reported on campus.
type Issue struct {
	EntityMeta
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Location      string `json:"location,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	UploadPending bool   `json:"uploadPending,omitempty"`
}

func (e *Issue) Collection() Collection { return CollectionIssues }

func (e *Issue) Field(name string) (string, bool) {
	switch name {
	case "title":
		return e.Title, true
	case "description":
		return e.Description, true
	case "category":
		return e.Category, true
	case "priority":
		return e.Priority, true
	case "location":
		return e.Location, true
	}
	return e.metaField(name)
}

// Report is a free-form submission with an optional photo.
type Report struct {
	EntityMeta
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	UploadPending bool   `json:"uploadPending,omitempty"`
}

func (e *Report) Collection() Collection { return CollectionReports }

func (e *Report) Field(name string) (string, bool) {
	switch name {
	case "title":
		return e.Title, true
	case "description":
		return e.Description, true
	case "category":
		return e.Category, true
	}
	return e.metaField(name)
}

// Event is a campus event published by an administrator.
type Event struct {
	EntityMeta
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	Capacity    int       `json:"capacity,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
}

func (e *Event) Collection() Collection { return CollectionEvents }

func (e *Event) Field(name string) (string, bool) {
	switch name {
	case "title":
		return e.Title, true
	case "description":
		return e.Description, true
	case "location":
		return e.Location, true
	case "startsAt":
		return e.StartsAt.UTC().Format(time.RFC3339), true
	}
	return e.metaField(name)
}

// Registration ties a student to an event.
type Registration struct {
	EntityMeta
	EventID string `json:"eventId"`
}

func (e *Registration) Collection() Collection { return CollectionRegistrations }

func (e *Registration) Field(name string) (string, bool) {
	if name == "eventId" {
		return e.EventID, true
	}
	return e.metaField(name)
}

// Statuses returns the valid status set for a collection.
func Statuses(c Collection) []string {
	switch c {
	case CollectionIssues:
		return []string{StatusPending, StatusInProgress, StatusResolved}
	case CollectionReports:
		return []string{StatusSubmitted, StatusReviewed}
	case CollectionEvents:
		return []string{StatusPublished, StatusCancelled}
	case CollectionRegistrations:
		return []string{StatusRegistered, StatusUnregistered}
	}
	return nil
}

// DefaultStatus is assigned to newly inserted rows with no explicit status.
func DefaultStatus(c Collection) string {
	s := Statuses(c)
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
