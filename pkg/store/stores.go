package store

import (
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Stores bundles every table-level store behind one handle. All of them
// share a single sqlx connection pool; nothing else in the process issues
// queries against the database.
type Stores struct {
	Accounts       AccountStore
	Members        MemberStore
	Groups         GroupStore
	GroupMessages  GroupMessageStore
	FriendMessages FriendMessageStore

	db *sqlx.DB
}

// Open opens (creating if needed) the archive database at path, applies any
// pending migrations and returns the ready-to-use stores.
func Open(path string) (*Stores, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// modernc's driver registers as "sqlite", which sqlx does not know the
	// bind type of out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Stores{
		Accounts:       NewAccounts(db),
		Members:        NewMembers(db),
		Groups:         NewGroups(db),
		GroupMessages:  NewGroupMessages(db),
		FriendMessages: NewFriendMessages(db),
		db:             db,
	}, nil
}

// Close releases the underlying database connection.
func (s *Stores) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func runMigrations(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return err
	}
	slog.Debug("database schema ready", "version", version, "dirty", dirty)
	return nil
}
