package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op names a store operation, used by fault hooks.
type Op string

const (
	OpGet    Op = "get"
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// Fault is consulted before every MemoryStore operation. Returning an error fails the
// operation; blocking inside the hook simulates a slow network.
type Fault func(ctx context.Context, op Op, collection string, data Record) error

// MemoryStore is a map-backed Store used in tests and by DOCSTORE_DRIVER=memory.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[string]Record
	order map[string][]string
	calls map[string]int
	fault Fault
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string]Record),
		order: make(map[string][]string),
		calls: make(map[string]int),
	}
}

// SetFault installs (or clears, with nil) the fault hook.
func (s *MemoryStore) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

// Calls returns how many times op ran against collection, including failed calls.
func (s *MemoryStore) Calls(op Op, collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[string(op)+":"+collection]
}

// Seed inserts records verbatim, keeping their ids.
func (s *MemoryStore) Seed(collection string, recs ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.put(collection, cloneRecord(r))
	}
}

// All returns every record of a collection in insertion order.
func (s *MemoryStore) All(collection string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order[collection]))
	for _, id := range s.order[collection] {
		out = append(out, cloneRecord(s.docs[collection][id]))
	}
	return out
}

func (s *MemoryStore) before(ctx context.Context, op Op, collection string, data Record) error {
	s.mu.Lock()
	s.calls[string(op)+":"+collection]++
	f := s.fault
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if f != nil {
		return f(ctx, op, collection, data)
	}
	return nil
}

func (s *MemoryStore) put(collection string, rec Record) {
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]Record)
	}
	id := rec.ID()
	if _, exists := s.docs[collection][id]; !exists {
		s.order[collection] = append(s.order[collection], id)
	}
	s.docs[collection][id] = rec
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := s.before(ctx, OpGet, collection, nil); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := s.before(ctx, OpList, collection, nil); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Record, 0, len(s.order[collection]))
	for _, id := range s.order[collection] {
		rec := s.docs[collection][id]
		if matches(rec, q.Filter) {
			out = append(out, cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, data Record) (Record, error) {
	if err := s.before(ctx, OpCreate, collection, data); err != nil {
		return nil, err
	}
	rec := stamp(cloneRecord(data), true)
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[collection][rec.ID()]; exists {
		return nil, fmt.Errorf("%s/%s: %w", collection, rec.ID(), ErrConflict)
	}
	s.put(collection, rec)
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	if err := s.before(ctx, OpUpdate, collection, patch); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		rec[k] = clone(v)
	}
	stamp(rec, false)
	return cloneRecord(rec), nil
}

// BulkCreate inserts rows one by one; the memory store has no faster path.
func (s *MemoryStore) BulkCreate(ctx context.Context, collection string, rows []Record) error {
	for _, r := range rows {
		if _, err := s.Create(ctx, collection, r); err != nil {
			return err
		}
	}
	return nil
}

func matches(rec Record, filter map[string]any) bool {
	for k, want := range filter {
		if compareValues(rec[k], want) != 0 {
			return false
		}
	}
	return true
}

// compareValues orders scalars: numbers numerically, times chronologically, the rest as text.
func compareValues(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
