// Package sqlstore persists the canonical graph, the raw inputs and the
// processing ledger in postgres or sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ocd-calaccess/internal/db"
	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/store"
)

//go:embed schema.sql
var schema string

// Store is a database-backed GraphStore, Inputs and Ledger.
type Store struct {
	db      *sql.DB
	dialect string
	log     *logger.Logger
}

var (
	_ store.GraphStore = (*Store)(nil)
	_ store.Inputs     = (*Store)(nil)
	_ store.Ledger     = (*Store)(nil)
)

// New wraps an open connection.
func New(conn *db.Connection, log *logger.Logger) *Store {
	return &Store{db: conn.DB, dialect: conn.Dialect, log: log}
}

// Migrate creates every table that does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	serial := "BIGSERIAL PRIMARY KEY"
	if s.dialect == db.SQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	if _, err := s.db.ExecContext(ctx, strings.ReplaceAll(schema, "SERIAL_PK", serial)); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $N for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != db.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// bulkInsert writes rows into table. Postgres uses COPY; sqlite a prepared
// insert.
func (s *Store) bulkInsert(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	var query string
	if s.dialect == db.Postgres {
		query = pq.CopyIn(table, columns...)
	} else {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), marks)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	if s.dialect == db.Postgres {
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to flush copy into %s: %w", table, err)
		}
	}
	return nil
}

// ts binds a time as RFC 3339 text in UTC, or NULL for the zero time.
func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// nullTime scans timestamps returned as time.Time by postgres and as text by
// sqlite.
type nullTime struct {
	Time time.Time
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time = time.Time{}
		return nil
	case time.Time:
		n.Time = v.UTC()
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	}
	return fmt.Errorf("cannot scan %T into a time", src)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", s)
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// mustJSON encodes values whose types cannot fail to marshal.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func fromJSON(text string, v any) error {
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), v)
}
