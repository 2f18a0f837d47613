// Package store is the tabular record store behind confirmed writes. Every
// collection lives in one records table keyed by (collection, record_key) with
// the row payload kept as JSON, next to an append-only audit_log table.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

var (
	// ErrNotFound is returned when the targeted record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when creating a record whose key is taken.
	ErrDuplicate = errors.New("record already exists")
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Row is one stored record.
type Row struct {
	Collection model.Collection
	Key        string
	EntityID   string
	Data       model.Data
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store reads and writes records over database/sql.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	logger *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to the database and creates the schema.
func Open(ctx context.Context, driver, dsn string, log *logger.Logger, opts ...Option) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	s := New(db, driver, log, opts...)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", driver, err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver string, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		db:     db,
		driver: driver,
		now:    time.Now,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			record_key TEXT NOT NULL,
			entity_id TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (collection, record_key)
		)`,
		`CREATE INDEX IF NOT EXISTS records_entity_idx ON records (collection, entity_id)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			user_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			target_collection TEXT NOT NULL,
			entity_id TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			raw_message TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into the driver's form.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
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

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const selectRows = `SELECT collection, record_key, entity_id, data, created_at, updated_at FROM records`

func (s *Store) queryRows(ctx context.Context, q queryer, where string, args ...any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, s.rebind(selectRows+" WHERE "+where), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r          Row
			collection string
			raw        string
		)
		if err := rows.Scan(&collection, &r.Key, &r.EntityID, &raw, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Collection = model.Collection(collection)
		if err := json.Unmarshal([]byte(raw), &r.Data); err != nil {
			return nil, fmt.Errorf("decode record %s/%s: %w", collection, r.Key, err)
		}
		if r.Data == nil {
			r.Data = model.Data{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadRecords returns the rows of a collection, optionally for one entity,
// oldest first.
func (s *Store) ReadRecords(ctx context.Context, collection model.Collection, entityID string) ([]Row, error) {
	if entityID == "" {
		return s.queryRows(ctx, s.db, "collection = ? ORDER BY created_at, record_key", string(collection))
	}
	return s.queryRows(ctx, s.db, "collection = ? AND entity_id = ? ORDER BY created_at, record_key", string(collection), entityID)
}

// ReadRecord returns one row by key.
func (s *Store) ReadRecord(ctx context.Context, collection model.Collection, key string) (Row, error) {
	rows, err := s.queryRows(ctx, s.db, "collection = ? AND record_key = ?", string(collection), key)
	if err != nil {
		return Row{}, err
	}
	if len(rows) == 0 {
		return Row{}, ErrNotFound
	}
	return rows[0], nil
}

// ReadEntities returns every site as a resolvable entity.
func (s *Store) ReadEntities(ctx context.Context) ([]model.CanonicalEntity, error) {
	rows, err := s.ReadRecords(ctx, model.CollectionSites, "")
	if err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEntity, 0, len(rows))
	for _, r := range rows {
		name := r.Data.String("name")
		if name == "" {
			name = r.Data.String(model.FieldCustomer)
		}
		out = append(out, model.CanonicalEntity{
			ID:         r.Key,
			Name:       name,
			Aliases:    aliases(r.Data["aliases"]),
			Attributes: r.Data,
		})
	}
	return out, nil
}

// aliases accepts a list or a comma separated string.
func aliases(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, a := range strings.Split(t, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
	case []any:
		for _, item := range t {
			if a, ok := item.(string); ok && strings.TrimSpace(a) != "" {
				out = append(out, strings.TrimSpace(a))
			}
		}
	}
	return out
}

// AppendAudit inserts one audit record.
func (s *Store) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO audit_log
		(id, ts, user_id, outcome, target_collection, entity_id, summary, raw_message, conversation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Timestamp.UTC(), rec.User, string(rec.Outcome), string(rec.Collection),
		rec.EntityID, rec.Summary, rec.RawMessage, rec.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Record implements audit.Sink.
func (s *Store) Record(ctx context.Context, rec model.AuditRecord) error {
	return s.AppendAudit(ctx, rec)
}
