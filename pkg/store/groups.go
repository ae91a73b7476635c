package store

import (
	"database/sql"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/models"
	"github.com/jmoiron/sqlx"
)

var selectGroups = `SELECT g.* FROM "group" g`

// GroupStore provides database operations for chat groups.
type GroupStore interface {
	// GetByGroupID retrieves a group by its platform identity.
	GetByGroupID(groupID int64) (*models.Group, error)
	// Exists checks whether a group row is already present.
	Exists(groupID int64) (bool, error)
	// Insert adds a new group row.
	Insert(groupID int64, name string) error
	// UpdateName sets the stored name, skipping the write when it is
	// unchanged. It reports whether a row was actually modified.
	UpdateName(groupID int64, name string) (bool, error)
	// Upsert atomically inserts the group or refreshes its name, keyed on
	// the group_id uniqueness constraint.
	Upsert(groupID int64, name string) error
}

type sqliteGroupStore struct {
	db *sqlx.DB
}

// NewGroups creates a new group store.
func NewGroups(dbconn *sqlx.DB) GroupStore {
	return &sqliteGroupStore{db: dbconn}
}

func (s *sqliteGroupStore) GetByGroupID(groupID int64) (*models.Group, error) {
	query := selectGroups + " WHERE g.group_id = ?;"
	var group models.Group
	err := s.db.Get(&group, query, groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *sqliteGroupStore) Exists(groupID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM "group" WHERE group_id = ?);`
	var exists bool
	err := s.db.Get(&exists, query, groupID)
	return exists, err
}

func (s *sqliteGroupStore) Insert(groupID int64, name string) error {
	stmt := `INSERT INTO "group" (group_id, name) VALUES (?, ?);`
	_, err := s.db.Exec(stmt, groupID, name)
	return err
}

func (s *sqliteGroupStore) UpdateName(groupID int64, name string) (bool, error) {
	stmt := `UPDATE "group" SET name = ? WHERE group_id = ? AND name <> ?;`
	res, err := s.db.Exec(stmt, name, groupID, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteGroupStore) Upsert(groupID int64, name string) error {
	stmt := `
	INSERT INTO "group" (group_id, name)
	VALUES (?, ?)
	ON CONFLICT (group_id)
	DO UPDATE SET name = excluded.name
	WHERE "group".name <> excluded.name
	;`
	_, err := s.db.Exec(stmt, groupID, name)
	return err
}
