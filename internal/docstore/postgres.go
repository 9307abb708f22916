package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every logical collection in one jsonb "documents" table
// (see migrations/000001_documents.up.sql).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Record, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		return nil, mapPgError(collection, id, err)
	}
	return decodeRow(raw)
}

func (s *PostgresStore) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	query := `SELECT data FROM documents WHERE collection = $1`
	args := []any{collection}

	for k, v := range q.Filter {
		args = append(args, k, fmt.Sprint(v))
		query += fmt.Sprintf(" AND data ->> $%d::text = $%d", len(args)-1, len(args))
	}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		query += fmt.Sprintf(" ORDER BY data -> $%d::text", len(args))
		if q.Desc {
			query += " DESC"
		}
		query += ", created_at ASC"
	} else {
		query += " ORDER BY created_at ASC"
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(collection, "", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := decodeRow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data Record) (Record, error) {
	rec := stamp(cloneRecord(data), true)
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", collection, err)
	}

	var stored []byte
	err = s.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, id, data)
		 VALUES ($1, $2, $3::jsonb)
		 RETURNING data`,
		collection, rec.ID(), raw,
	).Scan(&stored)
	if err != nil {
		return nil, mapPgError(collection, rec.ID(), err)
	}
	return decodeRow(stored)
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	p := cloneRecord(patch)
	delete(p, "id")
	raw, err := json.Marshal(stamp(p, false))
	if err != nil {
		return nil, fmt.Errorf("encode %s patch: %w", collection, err)
	}

	// jsonb || merges top-level keys, which is exactly partial-update semantics.
	var stored []byte
	err = s.pool.QueryRow(ctx,
		`UPDATE documents
		 SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2
		 RETURNING data`,
		collection, id, raw,
	).Scan(&stored)
	if err != nil {
		return nil, mapPgError(collection, id, err)
	}
	return decodeRow(stored)
}

// BulkCreate inserts rows with COPY. Any bad row fails the whole batch.
func (s *PostgresStore) BulkCreate(ctx context.Context, collection string, rows []Record) error {
	copyRows := make([][]any, 0, len(rows))
	now := time.Now().UTC()
	for _, r := range rows {
		rec := stamp(cloneRecord(r), true)
		if rec.ID() == "" {
			rec["id"] = uuid.NewString()
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", collection, err)
		}
		copyRows = append(copyRows, []any{collection, rec.ID(), raw, now, now})
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"documents"},
		[]string{"collection", "id", "data", "created_at", "updated_at"},
		pgx.CopyFromRows(copyRows),
	)
	if err != nil {
		return mapPgError(collection, "", err)
	}
	return nil
}

func decodeRow(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return rec, nil
}

// mapPgError translates driver errors into store errors.
// SQLSTATE 42501 is insufficient_privilege, 28xxx are authorization failures and
// 23505 is unique_violation.
func mapPgError(collection, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "42501" || strings.HasPrefix(pgErr.Code, "28") {
			return fmt.Errorf("%s: %w: %s", collection, ErrPermissionDenied, pgErr.Message)
		}
		if pgErr.Code == "23505" {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", collection, err)
}
