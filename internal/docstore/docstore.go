// Package docstore is the generic document-store collaborator used by the session engine.
// Every backend exposes the same get/list/create/update contract over logical collections;
// relationship filtering is left to callers (see Ref).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Logical collections.
const (
	Exams           = "exams"
	Questions       = "questions"
	ExamQuestions   = "exam_questions"
	Responses       = "responses"
	Attempts        = "attempts"
	Results         = "results"
	Enrollments     = "enrollments"
	ViolationEvents = "violation_events"
)

// Store errors.
var (
	ErrNotFound = errors.New("document not found")
	// ErrPermissionDenied means the store refused the caller. For writes this implies
	// the caller's data is not being recorded at all.
	ErrPermissionDenied = errors.New("document store permission denied")
	// ErrConflict means a document with the same id already exists.
	ErrConflict = errors.New("document already exists")
)

// Record is one schemaless document. The "id" key holds its identifier.
type Record map[string]any

// ID returns the record identifier or "".
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	switch v := r["id"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Query narrows a List call. Filter holds equality matches on top-level scalar fields only;
// relationship fields must be matched by the caller with RefersTo.
type Query struct {
	Filter  map[string]any
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the create/read/update/list interface every backend implements.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	List(ctx context.Context, collection string, q Query) ([]Record, error)
	Create(ctx context.Context, collection string, data Record) (Record, error)
	Update(ctx context.Context, collection, id string, patch Record) (Record, error)
}

// BulkCreator is implemented by backends with a fast multi-insert path.
type BulkCreator interface {
	BulkCreate(ctx context.Context, collection string, rows []Record) error
}

// Decode converts a record into a typed model through its JSON tags.
func Decode(rec Record, dst any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Encode converts a typed model into a record through its JSON tags.
func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return rec, nil
}

// stamp sets bookkeeping timestamps on a record about to be written.
func stamp(rec Record, created bool) Record {
	now := time.Now().UTC()
	if created {
		if _, ok := rec["created_at"]; !ok {
			rec["created_at"] = now
		}
	}
	rec["updated_at"] = now
	return rec
}

// clone deep-copies maps and slices so callers never share state with a backend.
func clone(v any) any {
	switch t := v.(type) {
	case Record:
		out := make(Record, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}

func cloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	return clone(r).(Record)
}
