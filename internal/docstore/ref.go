package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Ref is a relationship field. Stores hand these back as a bare id, an embedded object
// carrying "id" or "_id", or an array of either; Ref normalizes all of them.
type Ref struct {
	IDs []string
}

// NewRef builds a single-id reference.
func NewRef(id string) Ref {
	if id == "" {
		return Ref{}
	}
	return Ref{IDs: []string{id}}
}

// ID returns the first referenced id.
func (r Ref) ID() string {
	if len(r.IDs) == 0 {
		return ""
	}
	return r.IDs[0]
}

// Is reports whether id is among the referenced ids.
func (r Ref) Is(id string) bool {
	if id == "" {
		return false
	}
	for _, v := range r.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// MarshalJSON writes a reference back as a bare id.
func (r Ref) MarshalJSON() ([]byte, error) {
	switch len(r.IDs) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(r.IDs[0])
	default:
		return json.Marshal(r.IDs)
	}
}

// UnmarshalJSON accepts every supported relationship shape.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	r.IDs = RefIDs(raw)
	return nil
}

// RefIDs extracts ids from any supported relationship shape. It is the single place
// that knows about those shapes.
func RefIDs(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case json.Number:
		return []string{t.String()}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(t)}
	case int64:
		return []string{strconv.FormatInt(t, 10)}
	case Record:
		return RefIDs(map[string]any(t))
	case map[string]any:
		if id, ok := t["id"]; ok {
			return RefIDs(id)
		}
		if id, ok := t["_id"]; ok {
			return RefIDs(id)
		}
		return nil
	case []any:
		var ids []string
		for _, item := range t {
			ids = append(ids, RefIDs(item)...)
		}
		return ids
	case []string:
		var ids []string
		for _, item := range t {
			if item != "" {
				ids = append(ids, item)
			}
		}
		return ids
	case Ref:
		return t.IDs
	case fmt.Stringer:
		return RefIDs(t.String())
	default:
		return nil
	}
}

// RefersTo reports whether the relationship value v points at id.
func RefersTo(v any, id string) bool {
	if id == "" {
		return false
	}
	for _, got := range RefIDs(v) {
		if got == id {
			return true
		}
	}
	return false
}
