// Package bunstore persists records in SQLite through bun. Each record
// type gets its own table holding the owner id plus the metadata and
// user data bags as JSON columns; query clauses compile to json_extract
// predicates.
package bunstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/CherifSy/divide"
	"github.com/CherifSy/divide/query"
)

// Store is a divide.Store backed by bun over SQLite.
type Store struct {
	db     *bun.DB
	logger divide.Logger

	mu     sync.Mutex
	tables map[string]bool
}

var _ divide.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger replaces the default stdout logger.
func WithLogger(logger divide.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an existing bun handle.
func New(db *bun.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
		tables: map[string]bool{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open dials a SQLite DSN and returns a store over it. The caller owns
// the handle through Close.
func Open(dsn string, opts ...StoreOption) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	return New(bun.NewDB(sqldb, sqlitedialect.New()), opts...), nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying bun handle.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Execute runs a query. SELECT returns matching records; DELETE removes
// matches and returns what was removed.
func (s *Store) Execute(ctx context.Context, q *query.Query) ([]*divide.Record, error) {
	if err := s.ensureTable(ctx, q.From); err != nil {
		return nil, err
	}

	switch q.Action {
	case query.ActionSelect:
		return s.selectRecords(ctx, q)
	case query.ActionDelete:
		return s.deleteRecords(ctx, q)
	default:
		return nil, query.ErrActionNotSupported
	}
}

// Save upserts the record by owner id.
func (s *Store) Save(ctx context.Context, r *divide.Record) error {
	typeName := r.TypeName()
	if err := s.ensureTable(ctx, typeName); err != nil {
		return err
	}

	meta, err := json.Marshal(r.Meta)
	if err != nil {
		return err
	}
	userData, err := json.Marshal(r.UserData)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(
		`INSERT INTO %s (owner_id, meta_data, user_data) VALUES (?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET meta_data = excluded.meta_data, user_data = excluded.user_data`,
		query.SafeName(typeName),
	)

	_, err = s.db.ExecContext(ctx, stmt, r.OwnerID, string(meta), string(userData))
	return err
}

// Count returns the number of stored records of the given type.
func (s *Store) Count(ctx context.Context, typeName string) (int64, error) {
	if err := s.ensureTable(ctx, typeName); err != nil {
		return 0, err
	}

	var count int64
	stmt := fmt.Sprintf("SELECT count(*) FROM %s", query.SafeName(typeName))
	if err := s.db.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (s *Store) selectRecords(ctx context.Context, q *query.Query) ([]*divide.Record, error) {
	var sb strings.Builder
	sb.WriteString("SELECT owner_id, meta_data, user_data FROM ")
	sb.WriteString(query.SafeName(q.From))

	args := writeWhere(&sb, q.Where)

	if q.Random {
		sb.WriteString(" ORDER BY RANDOM()")
	}
	writeWindow(&sb, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows, q.From)
}

func (s *Store) deleteRecords(ctx context.Context, q *query.Query) ([]*divide.Record, error) {
	// Fetch the victims first so the caller sees what went away.
	sel := *q
	sel.Action = query.ActionSelect
	removed, err := s.selectRecords(ctx, &sel)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(query.SafeName(q.From))

	var args []any
	if q.Limit > 0 || q.Offset > 0 {
		// A windowed delete removes exactly the rows the window selected.
		if len(removed) == 0 {
			return nil, nil
		}
		sb.WriteString(" WHERE owner_id IN (")
		for i, r := range removed {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, r.OwnerID)
		}
		sb.WriteString(")")
	} else {
		args = writeWhere(&sb, q.Where)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return nil, err
	}

	return removed, nil
}

func (s *Store) ensureTable(ctx context.Context, typeName string) error {
	table := query.SafeName(typeName)

	s.mu.Lock()
	created := s.tables[table]
	s.mu.Unlock()
	if created {
		return nil
	}

	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			owner_id INTEGER PRIMARY KEY,
			meta_data TEXT NOT NULL DEFAULT '{}',
			user_data TEXT NOT NULL DEFAULT '{}'
		)`, table)

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Debug("bunstore: ensured table %s", table)
	}

	s.mu.Lock()
	s.tables[table] = true
	s.mu.Unlock()

	return nil
}

func scanRecords(rows *sql.Rows, typeName string) ([]*divide.Record, error) {
	var out []*divide.Record

	for rows.Next() {
		var (
			ownerID  int64
			meta     string
			userData string
		)
		if err := rows.Scan(&ownerID, &meta, &userData); err != nil {
			return nil, err
		}

		r := divide.NewRecord(typeName)
		r.OwnerID = ownerID
		if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(userData), &r.UserData); err != nil {
			return nil, err
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

// writeWhere renders clauses as parameterized predicates and returns the
// bind arguments.
func writeWhere(sb *strings.Builder, clauses []query.Clause) []any {
	if len(clauses) == 0 {
		return nil
	}

	args := make([]any, 0, len(clauses))
	sb.WriteString(" WHERE ")

	for i, c := range clauses {
		if i > 0 {
			connector := c.Connector
			if connector == "" {
				connector = query.And
			}
			sb.WriteString(" ")
			sb.WriteString(string(connector))
			sb.WriteString(" ")
		}
		sb.WriteString(column(c.Field))
		sb.WriteString(" ")
		sb.WriteString(string(c.Op))
		sb.WriteString(" ?")
		args = append(args, c.Value)
	}

	return args
}

func writeWindow(sb *strings.Builder, limit, offset int) {
	if limit > 0 {
		fmt.Fprintf(sb, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(sb, " OFFSET %d", offset)
	}
}

// column routes a clause field to its storage column. Metadata fields
// read through json_extract; anything else that is not owner_id targets
// the user data bag.
func column(field string) string {
	if key, isMeta := query.IsMetaField(field); isMeta {
		return fmt.Sprintf("json_extract(meta_data, '$.%s')", escapeKey(key))
	}

	if field == "owner_id" {
		return "owner_id"
	}

	return fmt.Sprintf("json_extract(user_data, '$.%s')", escapeKey(field))
}

func escapeKey(key string) string {
	return strings.NewReplacer("'", "", `"`, "", "$", "").Replace(key)
}
