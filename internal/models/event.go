package models

import "encoding/json"

// EventKind tags a ChangeEvent.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// ChangeEvent is a row-level notification delivered over the realtime feed.
// Insert and Update carry the full new row; Delete carries only the id. Seq is
// a server-assigned sortable id (ulid) giving events a total order per feed.
type ChangeEvent struct {
	Seq        string     `json:"seq"`
	Kind       EventKind  `json:"kind"`
	Collection Collection `json:"collection"`
	RowID      string     `json:"rowId"`
	Entity     Entity     `json:"-"`
}

// wireChangeEvent is the JSON shape on the websocket; the row stays raw until
// the collection is known.
type wireChangeEvent struct {
	Seq        string          `json:"seq"`
	Kind       EventKind       `json:"kind"`
	Collection Collection      `json:"collection"`
	RowID      string          `json:"rowId"`
	Row        json.RawMessage `json:"row,omitempty"`
}

func (ev ChangeEvent) MarshalJSON() ([]byte, error) {
	w := wireChangeEvent{Seq: ev.Seq, Kind: ev.Kind, Collection: ev.Collection, RowID: ev.RowID}
	if ev.Entity != nil {
		row, err := json.Marshal(ev.Entity)
		if err != nil {
			return nil, err
		}
		w.Row = row
	}
	return json.Marshal(w)
}

func (ev *ChangeEvent) UnmarshalJSON(b []byte) error {
	var w wireChangeEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ev.Seq = w.Seq
	ev.Kind = w.Kind
	ev.Collection = w.Collection
	ev.RowID = w.RowID
	ev.Entity = nil
	if len(w.Row) > 0 && w.Kind != EventDelete {
		e, err := Decode(w.Collection, w.Row)
		if err != nil {
			return err
		}
		ev.Entity = e
		if ev.RowID == "" {
			ev.RowID = e.Meta().ID
		}
	}
	return nil
}
