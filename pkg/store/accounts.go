package store

import (
	"database/sql"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/models"
	"github.com/jmoiron/sqlx"
)

var selectAccounts = `SELECT a.* FROM account a`

// AccountStore provides database operations for global account profiles.
type AccountStore interface {
	// GetByAccountID retrieves an account by its platform identity.
	GetByAccountID(accountID int64) (*models.Account, error)
	// Exists checks whether an account row is already present.
	Exists(accountID int64) (bool, error)
	// Insert adds a new account row.
	Insert(accountID int64, name string) error
	// UpdateName sets the stored name, skipping the write when it is
	// unchanged. It reports whether a row was actually modified.
	UpdateName(accountID int64, name string) (bool, error)
	// Upsert atomically inserts the account or refreshes its name. The
	// conflict target is the account_id uniqueness constraint, so two
	// concurrent calls for the same identity can never produce duplicate
	// rows.
	Upsert(accountID int64, name string) error
}

type sqliteAccountStore struct {
	db *sqlx.DB
}

// NewAccounts creates a new account store.
func NewAccounts(dbconn *sqlx.DB) AccountStore {
	return &sqliteAccountStore{db: dbconn}
}

func (s *sqliteAccountStore) GetByAccountID(accountID int64) (*models.Account, error) {
	query := selectAccounts + " WHERE a.account_id = ?;"
	var account models.Account
	err := s.db.Get(&account, query, accountID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *sqliteAccountStore) Exists(accountID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM account WHERE account_id = ?);`
	var exists bool
	err := s.db.Get(&exists, query, accountID)
	return exists, err
}

func (s *sqliteAccountStore) Insert(accountID int64, name string) error {
	stmt := `INSERT INTO account (account_id, name) VALUES (?, ?);`
	_, err := s.db.Exec(stmt, accountID, name)
	return err
}

func (s *sqliteAccountStore) UpdateName(accountID int64, name string) (bool, error) {
	stmt := `UPDATE account SET name = ? WHERE account_id = ? AND name <> ?;`
	res, err := s.db.Exec(stmt, name, accountID, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteAccountStore) Upsert(accountID int64, name string) error {
	stmt := `
	INSERT INTO account (account_id, name)
	VALUES (?, ?)
	ON CONFLICT (account_id)
	DO UPDATE SET name = excluded.name
	WHERE account.name <> excluded.name
	;`
	_, err := s.db.Exec(stmt, accountID, name)
	return err
}
