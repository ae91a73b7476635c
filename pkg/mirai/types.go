// Package mirai is a thin client for the mirai-api-http websocket adapter.
// It delivers typed inbound events, exposes the handful of profile and send
// calls the rest of the bridge needs, and knows how to serialize message
// chains into the persistent string form the archive stores.
package mirai

// Group is a chat group as reported by the platform.
type Group struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Permission string `json:"permission"`
}

// Friend is a friend of the bot account.
type Friend struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Remark   string `json:"remark"`
}

// Member is an account inside a specific group, carrying its group-scoped
// display name.
type Member struct {
	ID         int64  `json:"id"`
	MemberName string `json:"memberName"`
	Permission string `json:"permission"`
	Group      Group  `json:"group"`
}

// Profile is the global profile of an account, from the userProfile,
// memberProfile and botProfile commands.
type Profile struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Age      int    `json:"age"`
	Level    int    `json:"level"`
	Sign     string `json:"sign"`
	Sex      string `json:"sex"`
}

// GroupConfig is the configuration record of a group; only the name is used
// by the bridge.
type GroupConfig struct {
	Name              string `json:"name"`
	Announcement      string `json:"announcement"`
	AllowMemberInvite bool   `json:"allowMemberInvite"`
}

// GroupMessageEvent is an inbound message in a group the bot is in.
type GroupMessageEvent struct {
	Sender       Member       `json:"sender"`
	MessageChain MessageChain `json:"messageChain"`
}

// FriendMessageEvent is an inbound message from a friend.
type FriendMessageEvent struct {
	Sender       Friend       `json:"sender"`
	MessageChain MessageChain `json:"messageChain"`
}

// GroupSyncMessageEvent is a message the bot account sent to a group from
// another client session, observed here as a sync event.
type GroupSyncMessageEvent struct {
	Subject      Group        `json:"subject"`
	MessageChain MessageChain `json:"messageChain"`
}

// FriendSyncMessageEvent is a message the bot account sent to a friend from
// another client session.
type FriendSyncMessageEvent struct {
	Subject      Friend       `json:"subject"`
	MessageChain MessageChain `json:"messageChain"`
}
