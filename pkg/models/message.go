package models

// GroupMessage is one archived group message. Rows are append-only: once
// inserted they are never updated or deleted. Context holds the serialized
// message chain exactly as the platform layer produced it; the store treats
// it as an opaque blob.
type GroupMessage struct {
	ID        int64   `db:"_id"`
	SenderID  int64   `db:"sender_id"`
	GroupID   int64   `db:"group_id"`
	Timestamp float64 `db:"timestamp"`
	Context   string  `db:"context"`
}

// FriendMessage is one archived message in a friend conversation. FriendID
// is the other party of the conversation; SenderID is whoever wrote the
// message (the friend, or the bot itself for outbound and sync messages).
type FriendMessage struct {
	ID        int64   `db:"_id"`
	SenderID  int64   `db:"sender_id"`
	FriendID  int64   `db:"friend_id"`
	Timestamp float64 `db:"timestamp"`
	Context   string  `db:"context"`
}

// MessageView is a history row enriched for display: resolved names and a
// formatted local time next to the raw stored fields. Group fields stay zero
// for friend conversations.
type MessageView struct {
	Time       string
	Timestamp  float64
	Context    string
	SenderID   int64
	SenderName string
	GroupID    int64
	GroupName  string
}
