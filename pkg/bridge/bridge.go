// Package bridge wires platform events into the archive: one handler per
// inbound event type, plus the adapter that narrows the mirai client down to
// the profile-lookup capability the archive depends on.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/archive"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/mirai"
)

// eventTimeout bounds the live lookups a single event may trigger.
const eventTimeout = 10 * time.Second

// Bridge subscribes to client events and feeds them to the archive. A
// failing event only fails itself: the error is logged and the bridge keeps
// running.
type Bridge struct {
	client  *mirai.Client
	archive *archive.Manager
}

// New creates the bridge between a platform client and the archive.
func New(client *mirai.Client, mgr *archive.Manager) *Bridge {
	return &Bridge{client: client, archive: mgr}
}

// Attach registers all event handlers on the client.
func (b *Bridge) Attach() {
	b.client.OnGroupMessage(b.handleGroupMessage)
	b.client.OnFriendMessage(b.handleFriendMessage)
	b.client.OnGroupSyncMessage(b.handleGroupSync)
	b.client.OnFriendSyncMessage(b.handleFriendSync)
	b.client.OnConnect(b.handleConnected)
}

func (b *Bridge) handleConnected() {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	b.archive.Startup(ctx)
}

func (b *Bridge) handleGroupMessage(ev *mirai.GroupMessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	obs := archive.GroupMessageObservation{
		SenderID:   ev.Sender.ID,
		SenderName: ev.Sender.MemberName,
		GroupID:    ev.Sender.Group.ID,
		GroupName:  ev.Sender.Group.Name,
		Timestamp:  sourceTimestamp(ev.MessageChain),
		Payload:    ev.MessageChain.PersistentString(),
	}
	if err := b.archive.HandleGroupMessage(ctx, obs); err != nil {
		slog.Error("archiving group message failed", "group", obs.GroupID, "sender", obs.SenderID, "error", err)
	}
}

func (b *Bridge) handleFriendMessage(ev *mirai.FriendMessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	obs := archive.FriendMessageObservation{
		SenderID:   ev.Sender.ID,
		SenderName: ev.Sender.Nickname,
		Timestamp:  sourceTimestamp(ev.MessageChain),
		Payload:    ev.MessageChain.PersistentString(),
	}
	if err := b.archive.HandleFriendMessage(ctx, obs); err != nil {
		slog.Error("archiving friend message failed", "sender", obs.SenderID, "error", err)
	}
}

func (b *Bridge) handleGroupSync(ev *mirai.GroupSyncMessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	err := b.archive.HandleGroupSync(ctx, ev.Subject.ID, ev.Subject.Name, ev.MessageChain.PersistentString())
	if err != nil {
		slog.Error("archiving group sync message failed", "group", ev.Subject.ID, "error", err)
	}
}

func (b *Bridge) handleFriendSync(ev *mirai.FriendSyncMessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	err := b.archive.HandleFriendSync(ctx, ev.Subject.ID, ev.Subject.Nickname, ev.MessageChain.PersistentString())
	if err != nil {
		slog.Error("archiving friend sync message failed", "friend", ev.Subject.ID, "error", err)
	}
}

// sourceTimestamp extracts the producer-side creation time from a chain's
// source element; zero means "unknown, stamp at recording time".
func sourceTimestamp(chain mirai.MessageChain) float64 {
	if src := chain.Source(); src != nil {
		return float64(src.Time)
	}
	return 0
}
