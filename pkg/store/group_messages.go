package store

import (
	"database/sql"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/models"
	"github.com/jmoiron/sqlx"
)

var selectGroupMessages = `SELECT gm.* FROM group_message gm`

// GroupMessageStore is the append-only log of group messages. There are no
// update or delete operations on purpose: a recorded message is immutable.
type GroupMessageStore interface {
	// Insert appends one message to the log.
	Insert(senderID, groupID int64, timestamp float64, context string) error
	// ListPage returns up to limit messages for a group, newest first
	// (descending insertion id), skipping offset rows.
	ListPage(groupID int64, limit, offset int) ([]*models.GroupMessage, error)
	// Count returns the total number of archived messages for a group.
	Count(groupID int64) (int, error)
}

type sqliteGroupMessageStore struct {
	db *sqlx.DB
}

// NewGroupMessages creates a new group message store.
func NewGroupMessages(dbconn *sqlx.DB) GroupMessageStore {
	return &sqliteGroupMessageStore{db: dbconn}
}

func (s *sqliteGroupMessageStore) Insert(senderID, groupID int64, timestamp float64, context string) error {
	stmt := `INSERT INTO group_message (sender_id, group_id, timestamp, context) VALUES (?, ?, ?, ?);`
	_, err := s.db.Exec(stmt, senderID, groupID, timestamp, context)
	return err
}

func (s *sqliteGroupMessageStore) ListPage(groupID int64, limit, offset int) ([]*models.GroupMessage, error) {
	query := selectGroupMessages + " WHERE gm.group_id = ? ORDER BY gm._id DESC LIMIT ? OFFSET ?;"
	messages := []*models.GroupMessage{}
	err := s.db.Select(&messages, query, groupID, limit, offset)
	if err == sql.ErrNoRows {
		return []*models.GroupMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *sqliteGroupMessageStore) Count(groupID int64) (int, error) {
	query := `SELECT COUNT(*) FROM group_message WHERE group_id = ?;`
	var count int
	err := s.db.Get(&count, query, groupID)
	return count, err
}
