package models

// Account is the global profile of any individual the bridge has observed:
// a friend, a stranger, or a group member. AccountID is the platform identity
// and is unique per row; Name is the last nickname seen for it.
type Account struct {
	ID        int64  `db:"_id"`
	AccountID int64  `db:"account_id"`
	Name      string `db:"name"`
}

// Member is an account's identity inside one specific group. The same
// account can carry a different display name in every group it belongs to,
// so rows are keyed by the (account_id, group_id) pair.
type Member struct {
	ID        int64  `db:"_id"`
	AccountID int64  `db:"account_id"`
	GroupID   int64  `db:"group_id"`
	Name      string `db:"name"`
}

// Group is a chat group the bridge has seen at least one message from.
type Group struct {
	ID      int64  `db:"_id"`
	GroupID int64  `db:"group_id"`
	Name    string `db:"name"`
}
