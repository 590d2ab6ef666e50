// Package postgres stores marketplace documents as JSONB rows.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data jsonb_path_ops);
`

// Migrate creates the documents table when missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

type row struct {
	ID        string    `db:"id"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store implements store.Store on a single documents table. Writes signal local subscriptions
// directly and, when a feed is configured, every other process through it.
type Store struct {
	db     *sqlx.DB
	feed   store.Feed
	hub    *store.Hub
	logger *zap.Logger
	newID  func() string
}

// New builds a Store. feed may be nil for a single-process deployment.
func New(db *sqlx.DB, feed store.Feed, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:     db,
		feed:   feed,
		logger: logger,
		newID:  uuid.NewString,
	}
	s.hub = store.NewHub(s.Query, logger)
	return s
}

var _ store.Store = (*Store)(nil)

// Run relays feed signals to local subscriptions until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	if s.feed == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.feed.Listen(ctx, s.hub.Notify)
}

// Close stops every subscription.
func (s *Store) Close() {
	s.hub.Close()
}

// Get fetches one document.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	const query = `
		SELECT id, data, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var r row
	if err := s.db.GetContext(ctx, &r, query, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, apperr.Transient("postgres get", err)
	}
	return r.document()
}

// Set upserts a document. With merge, top-level keys are merged into the existing body.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	const replace = `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`
	const upsertMerge = `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()
	`
	body, err := encode(fields)
	if err != nil {
		return err
	}
	query := replace
	if merge {
		query = upsertMerge
	}
	if _, err := s.db.ExecContext(ctx, query, collection, id, body); err != nil {
		return apperr.Transient("postgres set", err)
	}
	s.changed(ctx, collection)
	return nil
}

// SetIf merges fields when every guard holds, in a single UPDATE.
func (s *Store) SetIf(ctx context.Context, collection, id string, conds []store.Where, fields map[string]any) error {
	body, err := encode(fields)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2")
	args := []any{collection, id, body}
	for _, w := range conds {
		args = appendWhere(&b, args, w)
	}
	res, err := s.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return apperr.Transient("postgres set if", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Transient("postgres set if", err)
	}
	if n == 0 {
		exists, err := s.exists(ctx, collection, id)
		if err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrPreconditionFailed
	}
	s.changed(ctx, collection)
	return nil
}

// Add inserts a document under a generated id.
func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	const query = `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
	`
	body, err := encode(fields)
	if err != nil {
		return "", err
	}
	id := s.newID()
	if _, err := s.db.ExecContext(ctx, query, collection, id, body); err != nil {
		return "", apperr.Transient("postgres add", err)
	}
	s.changed(ctx, collection)
	return id, nil
}

// Increment adds delta to a numeric field server-side.
func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	const query = `
		UPDATE documents
		SET data = jsonb_set(data, ARRAY[$3::text], to_jsonb(COALESCE((data->>$3::text)::bigint, 0) + $4::bigint), true),
			updated_at = now()
		WHERE collection = $1 AND id = $2
	`
	res, err := s.db.ExecContext(ctx, query, collection, id, field, delta)
	if err != nil {
		if isInvalidNumber(err) {
			return store.ErrNotNumeric
		}
		return apperr.Transient("postgres increment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Transient("postgres increment", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	s.changed(ctx, collection)
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return apperr.Transient("postgres delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.changed(ctx, collection)
	}
	return nil
}

// Query returns matching documents ordered by id.
func (s *Store) Query(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	query, args := buildQuery(collection, filter)
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Transient("postgres query", err)
	}
	out := make([]store.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Subscribe delivers the matching set now and after every signalled change.
func (s *Store) Subscribe(ctx context.Context, collection string, filter store.Filter, fn func(store.Snapshot)) (store.CancelFunc, error) {
	return s.hub.Subscribe(ctx, collection, filter, fn)
}

func (s *Store) exists(ctx context.Context, collection, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`
	var ok bool
	if err := s.db.GetContext(ctx, &ok, query, collection, id); err != nil {
		return false, apperr.Transient("postgres exists", err)
	}
	return ok, nil
}

func (s *Store) changed(ctx context.Context, collection string) {
	s.hub.Notify(collection)
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, collection); err != nil {
		s.logger.Warn("failed to publish change", zap.String("collection", collection), zap.Error(err))
	}
}

func buildQuery(collection string, filter store.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT id, data, updated_at FROM documents WHERE collection = $1")
	args := []any{collection}
	if filter.ID != "" {
		args = append(args, filter.ID)
		fmt.Fprintf(&b, " AND id = $%d", len(args))
	}
	for _, w := range filter.Where {
		args = appendWhere(&b, args, w)
	}
	b.WriteString(" ORDER BY id")
	return b.String(), args
}

func appendWhere(b *strings.Builder, args []any, w store.Where) []any {
	if w.Absent {
		args = append(args, w.Field)
		fmt.Fprintf(b, " AND (data->>$%d::text) IS NULL", len(args))
		return args
	}
	args = append(args, w.Field, w.Value)
	fmt.Fprintf(b, " AND data->>$%d::text = $%d", len(args)-1, len(args))
	return args
}

func encode(fields map[string]any) (string, error) {
	data, err := store.Normalize(fields)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("postgres: encode: %w", err)
	}
	return string(raw), nil
}

func (r row) document() (store.Document, error) {
	data := map[string]any{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return store.Document{}, apperr.Wrap(apperr.ErrValidation, fmt.Sprintf("document %q is not valid JSON", r.ID), err)
		}
	}
	return store.Document{ID: r.ID, Data: data, UpdatedAt: r.UpdatedAt}, nil
}

func isInvalidNumber(err error) bool {
	var pgErr *pgconn.PgError
	// invalid_text_representation from the ::bigint cast.
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
