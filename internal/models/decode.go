package models

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a row that failed validation at the store boundary.
// Rows with missing or malformed required fields never reach the UI layer.
type DecodeError struct {
	Collection Collection
	Field      string
	Reason     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: field %q: %s", e.Collection, e.Field, e.Reason)
}

func decodeErr(c Collection, field, reason string) *DecodeError {
	return &DecodeError{Collection: c, Field: field, Reason: reason}
}

// New returns a zero value of the entity type for a collection.
func New(c Collection) (Entity, error) {
	switch c {
	case CollectionIssues:
		return &Issue{}, nil
	case CollectionReports:
		return &Report{}, nil
	case CollectionEvents:
		return &Event{}, nil
	case CollectionRegistrations:
		return &Registration{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
}

// Decode unmarshals one row of a collection and validates its required
// fields. The remote store carries no schema, so this is the single place
// where loosely-typed rows become typed entities.
func Decode(c Collection, raw []byte) (Entity, error) {
	e, err := New(c)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, decodeErr(c, "", err.Error())
	}
	if err := Validate(e); err != nil {
		return nil, err
	}
	return e, nil
}

// DecodeList unmarshals an array of rows, validating each.
func DecodeList(c Collection, raw []byte) ([]Entity, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, decodeErr(c, "", err.Error())
	}
	result := make([]Entity, 0, len(rows))
	for _, r := range rows {
		e, err := Decode(c, r)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// Validate checks the invariants common to all rows plus per-collection ones.
func Validate(e Entity) error {
	c := e.Collection()
	m := e.Meta()
	if m.ID == "" {
		return decodeErr(c, "id", "required")
	}
	if m.OwnerID == "" {
		return decodeErr(c, "ownerId", "required")
	}
	if m.CreatedAt.IsZero() {
		return decodeErr(c, "createdAt", "required")
	}
	if m.Status != "" && !validStatus(c, m.Status) {
		return decodeErr(c, "status", fmt.Sprintf("unknown value %q", m.Status))
	}
	switch v := e.(type) {
	case *Issue:
		if v.Title == "" {
			return decodeErr(c, "title", "required")
		}
	case *Report:
		if v.Title == "" {
			return decodeErr(c, "title", "required")
		}
	case *Event:
		if v.Title == "" {
			return decodeErr(c, "title", "required")
		}
		if v.StartsAt.IsZero() {
			return decodeErr(c, "startsAt", "required")
		}
	case *Registration:
		if v.EventID == "" {
			return decodeErr(c, "eventId", "required")
		}
	}
	return nil
}

func validStatus(c Collection, status string) bool {
	for _, s := range Statuses(c) {
		if s == status {
			return true
		}
	}
	return false
}
