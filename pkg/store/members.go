package store

import (
	"database/sql"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/models"
	"github.com/jmoiron/sqlx"
)

var selectMembers = `SELECT m.* FROM member m`

// MemberStore provides database operations for group-scoped member
// identities. Rows are keyed by the (account_id, group_id) pair, so one
// account may appear once per group with an independent name.
type MemberStore interface {
	// GetByIDs retrieves a member row for an account inside one group.
	GetByIDs(accountID, groupID int64) (*models.Member, error)
	// Exists checks whether the member row is already present.
	Exists(accountID, groupID int64) (bool, error)
	// Insert adds a new member row.
	Insert(accountID, groupID int64, name string) error
	// UpdateName sets the group-scoped name, skipping the write when it is
	// unchanged. It reports whether a row was actually modified.
	UpdateName(accountID, groupID int64, name string) (bool, error)
	// Upsert atomically inserts the member or refreshes its name, keyed on
	// the (account_id, group_id) uniqueness constraint.
	Upsert(accountID, groupID int64, name string) error
}

type sqliteMemberStore struct {
	db *sqlx.DB
}

// NewMembers creates a new member store.
func NewMembers(dbconn *sqlx.DB) MemberStore {
	return &sqliteMemberStore{db: dbconn}
}

func (s *sqliteMemberStore) GetByIDs(accountID, groupID int64) (*models.Member, error) {
	query := selectMembers + " WHERE m.account_id = ? AND m.group_id = ?;"
	var member models.Member
	err := s.db.Get(&member, query, accountID, groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *sqliteMemberStore) Exists(accountID, groupID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM member WHERE account_id = ? AND group_id = ?);`
	var exists bool
	err := s.db.Get(&exists, query, accountID, groupID)
	return exists, err
}

func (s *sqliteMemberStore) Insert(accountID, groupID int64, name string) error {
	stmt := `INSERT INTO member (account_id, group_id, name) VALUES (?, ?, ?);`
	_, err := s.db.Exec(stmt, accountID, groupID, name)
	return err
}

func (s *sqliteMemberStore) UpdateName(accountID, groupID int64, name string) (bool, error) {
	stmt := `UPDATE member SET name = ? WHERE account_id = ? AND group_id = ? AND name <> ?;`
	res, err := s.db.Exec(stmt, name, accountID, groupID, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteMemberStore) Upsert(accountID, groupID int64, name string) error {
	stmt := `
	INSERT INTO member (account_id, group_id, name)
	VALUES (?, ?, ?)
	ON CONFLICT (account_id, group_id)
	DO UPDATE SET name = excluded.name
	WHERE member.name <> excluded.name
	;`
	_, err := s.db.Exec(stmt, accountID, groupID, name)
	return err
}
