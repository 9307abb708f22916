package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
)

// ReferenceCollections never change while an attempt is running, so they are safe to cache.
var ReferenceCollections = []string{Exams, ExamQuestions, Questions}

// CachedStore is a Redis read-through decorator for the reference collections.
// Everything else passes straight to the wrapped store. Writes to a cached collection
// invalidate its keys; a cache failure always falls back to the wrapped store.
type CachedStore struct {
	Store
	rdb    *redis.Client
	ttl    time.Duration
	cached map[string]bool
	log    zerolog.Logger
}

// NewCachedStore wraps next with a Redis cache.
func NewCachedStore(next Store, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedStore {
	cached := make(map[string]bool, len(ReferenceCollections))
	for _, c := range ReferenceCollections {
		cached[c] = true
	}
	return &CachedStore{
		Store:  next,
		rdb:    rdb,
		ttl:    ttl,
		cached: cached,
		log:    log.With().Str("component", "docstore_cache").Logger(),
	}
}

func (s *CachedStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if !s.cached[collection] {
		return s.Store.Get(ctx, collection, id)
	}

	key := config.CacheKey.DocumentKey(collection, id)
	var rec Record
	if s.read(ctx, key, &rec) {
		return rec, nil
	}

	rec, err := s.Store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	s.write(ctx, key, rec)
	return rec, nil
}

// List caches only the unfiltered listing; filtered queries go to the store.
func (s *CachedStore) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	if !s.cached[collection] || len(q.Filter) > 0 || q.OrderBy != "" || q.Limit > 0 {
		return s.Store.List(ctx, collection, q)
	}

	key := config.CacheKey.CollectionKey(collection)
	var recs []Record
	if s.read(ctx, key, &recs) {
		return recs, nil
	}

	recs, err := s.Store.List(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	s.write(ctx, key, recs)
	return recs, nil
}

func (s *CachedStore) Create(ctx context.Context, collection string, data Record) (Record, error) {
	rec, err := s.Store.Create(ctx, collection, data)
	if err == nil && s.cached[collection] {
		s.invalidate(ctx, collection, rec.ID())
	}
	return rec, err
}

func (s *CachedStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	rec, err := s.Store.Update(ctx, collection, id, patch)
	if err == nil && s.cached[collection] {
		s.invalidate(ctx, collection, id)
	}
	return rec, err
}

// BulkCreate forwards to the wrapped store's fast path when it has one.
func (s *CachedStore) BulkCreate(ctx context.Context, collection string, rows []Record) error {
	if bc, ok := s.Store.(BulkCreator); ok {
		return bc.BulkCreate(ctx, collection, rows)
	}
	for _, r := range rows {
		if _, err := s.Store.Create(ctx, collection, r); err != nil {
			return err
		}
	}
	return nil
}

// Prewarm loads every reference collection into Redis before traffic arrives.
func (s *CachedStore) Prewarm(ctx context.Context) error {
	for _, collection := range ReferenceCollections {
		recs, err := s.Store.List(ctx, collection, Query{})
		if err != nil {
			return err
		}

		pipe := s.rdb.Pipeline()
		listing, _ := json.Marshal(recs)
		pipe.Set(ctx, config.CacheKey.CollectionKey(collection), listing, s.ttl)
		for _, rec := range recs {
			raw, _ := json.Marshal(rec)
			pipe.Set(ctx, config.CacheKey.DocumentKey(collection, rec.ID()), raw, s.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}

		s.log.Info().
			Str("collection", collection).
			Int("count", len(recs)).
			Msg("Reference cache warmed")
	}
	return nil
}

func (s *CachedStore) read(ctx context.Context, key string, dst any) bool {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, using store")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, using store")
		return false
	}
	return true
}

func (s *CachedStore) write(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (s *CachedStore) invalidate(ctx context.Context, collection, id string) {
	err := s.rdb.Del(ctx,
		config.CacheKey.DocumentKey(collection, id),
		config.CacheKey.CollectionKey(collection),
	).Err()
	if err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Msg("Cache invalidation failed")
	}
}
