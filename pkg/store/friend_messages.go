package store

import (
	"database/sql"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/models"
	"github.com/jmoiron/sqlx"
)

var selectFriendMessages = `SELECT fm.* FROM friend_message fm`

// FriendMessageStore is the append-only log of friend-conversation
// messages, keyed by the other party of the conversation.
type FriendMessageStore interface {
	// Insert appends one message to the log.
	Insert(senderID, friendID int64, timestamp float64, context string) error
	// ListPage returns up to limit messages for a conversation, newest
	// first (descending insertion id), skipping offset rows.
	ListPage(friendID int64, limit, offset int) ([]*models.FriendMessage, error)
	// Count returns the total number of archived messages for a conversation.
	Count(friendID int64) (int, error)
}

type sqliteFriendMessageStore struct {
	db *sqlx.DB
}

// NewFriendMessages creates a new friend message store.
func NewFriendMessages(dbconn *sqlx.DB) FriendMessageStore {
	return &sqliteFriendMessageStore{db: dbconn}
}

func (s *sqliteFriendMessageStore) Insert(senderID, friendID int64, timestamp float64, context string) error {
	stmt := `INSERT INTO friend_message (sender_id, friend_id, timestamp, context) VALUES (?, ?, ?, ?);`
	_, err := s.db.Exec(stmt, senderID, friendID, timestamp, context)
	return err
}

func (s *sqliteFriendMessageStore) ListPage(friendID int64, limit, offset int) ([]*models.FriendMessage, error) {
	query := selectFriendMessages + " WHERE fm.friend_id = ? ORDER BY fm._id DESC LIMIT ? OFFSET ?;"
	messages := []*models.FriendMessage{}
	err := s.db.Select(&messages, query, friendID, limit, offset)
	if err == sql.ErrNoRows {
		return []*models.FriendMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *sqliteFriendMessageStore) Count(friendID int64) (int, error) {
	query := `SELECT COUNT(*) FROM friend_message WHERE friend_id = ?;`
	var count int
	err := s.db.Get(&count, query, friendID)
	return count, err
}
