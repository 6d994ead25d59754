// Package storage provides persistence for ProfileCRM.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/profilecrm/profilecrm/internal/core"
	"github.com/profilecrm/profilecrm/internal/logging"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// Default colors for lists and tags created without one
const (
	DefaultListColor = "#1d9bf0"
	DefaultTagColor  = "#657786"
)

// DB wraps the SQLite database connection. It is created unopened; Init
// opens and migrates it exactly once, and every store method waits on Init
// before touching the database.
type DB struct {
	cfg Config

	once    sync.Once
	conn    *sqlx.DB
	initErr error

	// now is the clock used for every timestamp the store writes
	now func() time.Time

	log *logging.Logger
}

// Config for database initialization
type Config struct {
	Path        string        // Path to database file
	InMemory    bool          // Use in-memory database (for testing)
	BusyTimeout time.Duration // How long a writer waits on a locked database

	ListColor string // Color for lists created without one
	TagColor  string // Color for tags created without one
}

// New returns an unopened database handle. Call Init (or any store method)
// to open it.
func New(cfg Config) *DB {
	if cfg.ListColor == "" {
		cfg.ListColor = DefaultListColor
	}
	if cfg.TagColor == "" {
		cfg.TagColor = DefaultTagColor
	}

	return &DB{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		log: logging.WithField("component", "storage"),
	}
}

// Open opens or creates a SQLite database and brings its schema up to date
func Open(ctx context.Context, cfg Config) (*DB, error) {
	db := New(cfg)
	if err := db.Init(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Init opens the database and applies migrations. It is idempotent: later
// calls return the outcome of the first one. A failed Init is permanent for
// this handle.
func (db *DB) Init(ctx context.Context) error {
	db.once.Do(func() {
		conn, err := db.open(ctx)
		if err != nil {
			db.initErr = fmt.Errorf("%w: %w", core.ErrStoreInit, err)
			db.log.WithError(err).Error("failed to open database")
			return
		}
		db.conn = conn
	})
	return db.initErr
}

func (db *DB) open(ctx context.Context) (*sqlx.DB, error) {
	var dsn string

	if db.cfg.InMemory {
		// Each in-memory handle gets its own named database
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		// Ensure directory exists
		dir := filepath.Dir(db.cfg.Path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = db.cfg.Path
	}

	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	conn.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON"}
	if !db.cfg.InMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	if db.cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout=%d", db.cfg.BusyTimeout.Milliseconds()))
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := migrate(ctx, conn, db.log); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// handle waits for Init and returns the open connection
func (db *DB) handle(ctx context.Context) (*sqlx.DB, error) {
	if err := db.Init(ctx); err != nil {
		return nil, err
	}
	return db.conn, nil
}

// Close closes the database connection. It waits for an Init in progress.
// Closing an unopened handle keeps it from ever opening.
func (db *DB) Close() error {
	db.once.Do(func() {
		db.initErr = fmt.Errorf("%w: database closed before open", core.ErrStoreInit)
	})
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// SchemaVersion reports the schema version recorded in the database
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return 0, err
	}

	var version int
	if err := conn.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, err
	}
	return version, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
