// Package archive is the persistence and identity-reconciliation core of
// the bridge. It keeps account, member and group rows in sync with live
// observations, appends every observed message to an immutable log, and
// serves paginated, name-enriched history to the web layer.
//
// The package never touches the platform directly: everything it needs from
// the live connection comes through the narrow ProfileLookup capability
// injected at construction, and message payloads pass through as opaque
// serialized strings.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/models"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/store"
)

const (
	// DefaultPageSize is the history page size when the caller passes none.
	DefaultPageSize = 60

	timeLayout = "2006-01-02 15:04:05"

	profileCacheTTL = 5 * time.Minute
)

var (
	// ErrShuttingDown is returned for writes that arrive after Shutdown
	// has begun.
	ErrShuttingDown = errors.New("archive is shutting down")

	// ErrUnknownTarget is reported by a ProfileLookup when the platform
	// cannot resolve the requested identity (member left the group,
	// account not visible to the bot, and so on).
	ErrUnknownTarget = errors.New("platform cannot resolve target")
)

// ProfileLookup is the live-platform capability the archive needs: a handful
// of name lookups sourced from the running bot connection. Implementations
// wrap platform errors so that unresolvable identities satisfy
// errors.Is(err, ErrUnknownTarget).
type ProfileLookup interface {
	// BotID returns the bridge's own account id.
	BotID() int64
	// GroupName returns the current display name of a group.
	GroupName(ctx context.Context, groupID int64) (string, error)
	// MemberName returns the bot-visible, group-scoped display name of a
	// member.
	MemberName(ctx context.Context, groupID, accountID int64) (string, error)
	// AccountNickname returns the global nickname of an account.
	AccountNickname(ctx context.Context, accountID int64) (string, error)
	// BotNickname returns the global nickname of the bot account itself.
	BotNickname(ctx context.Context) (string, error)
}

// GroupMessageObservation is one inbound group message as seen by the event
// layer. Timestamp is the producer-side creation time in epoch seconds;
// Payload is the serialized message chain.
type GroupMessageObservation struct {
	SenderID   int64
	SenderName string
	GroupID    int64
	GroupName  string
	Timestamp  float64
	Payload    string
}

// FriendMessageObservation is one inbound friend message.
type FriendMessageObservation struct {
	SenderID   int64
	SenderName string
	Timestamp  float64
	Payload    string
}

// Manager is the data manager: reconciliation engine, message log and name
// resolution over one shared store. Handlers may call it concurrently; the
// upsert statements are atomic, so concurrent reconciliation of the same
// identity cannot produce duplicate rows.
type Manager struct {
	stores *store.Stores
	lookup ProfileLookup

	profiles *ttlcache.Cache[int64, string]

	now func() time.Time

	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
}

// NewManager creates a manager over the given stores and live-profile
// capability.
func NewManager(stores *store.Stores, lookup ProfileLookup) *Manager {
	cache := ttlcache.New[int64, string](
		ttlcache.WithTTL[int64, string](profileCacheTTL),
	)
	go cache.Start()
	return &Manager{
		stores:   stores,
		lookup:   lookup,
		profiles: cache,
		now:      time.Now,
	}
}

// Startup re-syncs the bot's own account row once the platform connection
// is up. Lookup failures are soft: the row is refreshed on the next chance.
func (m *Manager) Startup(ctx context.Context) {
	m.EnsureBotAccount(ctx)
}

// Shutdown stops accepting writes and waits for in-flight ones to drain,
// or until ctx expires. The caller closes the stores afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	m.mu.Unlock()
	// ttlcache's Stop blocks if the expiration loop is already gone.
	if !alreadyClosed {
		m.profiles.Stop()
	}

	done := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining archive writes: %w", ctx.Err())
	}
}

func (m *Manager) beginWrite() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrShuttingDown
	}
	m.inFlight.Add(1)
	return nil
}

// EnsureAccount inserts the account row or refreshes its name if it drifted.
func (m *Manager) EnsureAccount(accountID int64, name string) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()
	return m.stores.Accounts.Upsert(accountID, name)
}

// EnsureMember inserts the group-scoped member row or refreshes its name.
func (m *Manager) EnsureMember(accountID, groupID int64, name string) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()
	return m.stores.Members.Upsert(accountID, groupID, name)
}

// EnsureGroup inserts the group row or refreshes its name.
func (m *Manager) EnsureGroup(groupID int64, name string) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()
	return m.stores.Groups.Upsert(groupID, name)
}

// EnsureBotIdentity re-syncs the bot's member row in one group from its live
// profile. A failed lookup is a soft failure: logged and skipped, never
// fatal, since the next observation will retry.
func (m *Manager) EnsureBotIdentity(ctx context.Context, groupID int64) error {
	botID := m.lookup.BotID()
	name, err := m.lookup.MemberName(ctx, groupID, botID)
	if err != nil {
		slog.Warn("bot member profile unavailable, skipping re-sync", "group", groupID, "error", err)
		return nil
	}
	return m.EnsureMember(botID, groupID, name)
}

// EnsureBotAccount re-syncs the bot's global account row from its live
// profile, with the same soft-failure policy as EnsureBotIdentity.
func (m *Manager) EnsureBotAccount(ctx context.Context) {
	nick, err := m.lookup.BotNickname(ctx)
	if err != nil {
		slog.Warn("bot profile unavailable, skipping re-sync", "error", err)
		return
	}
	if err := m.EnsureAccount(m.lookup.BotID(), nick); err != nil {
		slog.Error("persisting bot account failed", "error", err)
	}
}

// HandleGroupMessage records one inbound group message and reconciles the
// group, the sender's global account and its group-scoped member row.
func (m *Manager) HandleGroupMessage(ctx context.Context, obs GroupMessageObservation) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()

	ts := obs.Timestamp
	if ts == 0 {
		ts = m.epochNow()
	}
	if err := m.stores.GroupMessages.Insert(obs.SenderID, obs.GroupID, ts, obs.Payload); err != nil {
		return fmt.Errorf("record group message: %w", err)
	}
	if err := m.stores.Groups.Upsert(obs.GroupID, obs.GroupName); err != nil {
		return fmt.Errorf("reconcile group %d: %w", obs.GroupID, err)
	}
	accountName := m.accountNameForMember(ctx, obs.SenderID, obs.SenderName)
	if err := m.stores.Accounts.Upsert(obs.SenderID, accountName); err != nil {
		return fmt.Errorf("reconcile account %d: %w", obs.SenderID, err)
	}
	if err := m.stores.Members.Upsert(obs.SenderID, obs.GroupID, obs.SenderName); err != nil {
		return fmt.Errorf("reconcile member %d in group %d: %w", obs.SenderID, obs.GroupID, err)
	}
	return nil
}

// HandleFriendMessage records one inbound friend message and reconciles the
// sender's account row. Friends carry their nickname on the event itself,
// so no live lookup is involved.
func (m *Manager) HandleFriendMessage(ctx context.Context, obs FriendMessageObservation) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()

	ts := obs.Timestamp
	if ts == 0 {
		ts = m.epochNow()
	}
	if err := m.stores.FriendMessages.Insert(obs.SenderID, obs.SenderID, ts, obs.Payload); err != nil {
		return fmt.Errorf("record friend message: %w", err)
	}
	if err := m.stores.Accounts.Upsert(obs.SenderID, obs.SenderName); err != nil {
		return fmt.Errorf("reconcile account %d: %w", obs.SenderID, err)
	}
	return nil
}

// HandleGroupSync records a group message the bot sent from another client
// session. The timestamp is the time the bridge observed it.
func (m *Manager) HandleGroupSync(ctx context.Context, groupID int64, groupName, payload string) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()

	if err := m.stores.GroupMessages.Insert(m.lookup.BotID(), groupID, m.epochNow(), payload); err != nil {
		return fmt.Errorf("record group sync message: %w", err)
	}
	if err := m.stores.Groups.Upsert(groupID, groupName); err != nil {
		return fmt.Errorf("reconcile group %d: %w", groupID, err)
	}
	return nil
}

// HandleFriendSync records a friend message the bot sent from another
// client session.
func (m *Manager) HandleFriendSync(ctx context.Context, friendID int64, friendName, payload string) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()

	if err := m.stores.FriendMessages.Insert(m.lookup.BotID(), friendID, m.epochNow(), payload); err != nil {
		return fmt.Errorf("record friend sync message: %w", err)
	}
	if friendName == "" {
		return nil
	}
	if err := m.stores.Accounts.Upsert(friendID, friendName); err != nil {
		return fmt.Errorf("reconcile account %d: %w", friendID, err)
	}
	return nil
}

// RecordBotGroupMessage appends a message the web UI just sent to a group.
// Sender is the bot account, timestamp is the time of recording.
func (m *Manager) RecordBotGroupMessage(groupID int64, payload string) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()
	if err := m.stores.GroupMessages.Insert(m.lookup.BotID(), groupID, m.epochNow(), payload); err != nil {
		return fmt.Errorf("record bot group message: %w", err)
	}
	return nil
}

// RecordBotFriendMessage appends a message the web UI just sent to a friend.
func (m *Manager) RecordBotFriendMessage(friendID int64, payload string) error {
	if err := m.beginWrite(); err != nil {
		return err
	}
	defer m.inFlight.Done()
	if err := m.stores.FriendMessages.Insert(m.lookup.BotID(), friendID, m.epochNow(), payload); err != nil {
		return fmt.Errorf("record bot friend message: %w", err)
	}
	return nil
}

// ListGroupMessages returns one history page for a group, newest first,
// enriched with resolved names and formatted local times. Page numbers
// start at 1.
func (m *Manager) ListGroupMessages(ctx context.Context, groupID int64, pageSize, page int) ([]models.MessageView, error) {
	pageSize, offset := pageBounds(pageSize, page)
	messages, err := m.stores.GroupMessages.ListPage(groupID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}

	groupName := m.groupDisplayName(ctx, groupID)
	views := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, models.MessageView{
			Time:       m.formatTimestamp(msg.Timestamp),
			Timestamp:  msg.Timestamp,
			Context:    msg.Context,
			SenderID:   msg.SenderID,
			SenderName: m.ResolveName(ctx, AccountRef{Kind: KindMember, AccountID: msg.SenderID, GroupID: groupID}),
			GroupID:    groupID,
			GroupName:  groupName,
		})
	}
	return views, nil
}

// ListFriendMessages returns one history page for a friend conversation,
// newest first. Group fields of the views stay zero.
func (m *Manager) ListFriendMessages(ctx context.Context, friendID int64, pageSize, page int) ([]models.MessageView, error) {
	pageSize, offset := pageBounds(pageSize, page)
	messages, err := m.stores.FriendMessages.ListPage(friendID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list friend messages: %w", err)
	}

	views := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, models.MessageView{
			Time:       m.formatTimestamp(msg.Timestamp),
			Timestamp:  msg.Timestamp,
			Context:    msg.Context,
			SenderID:   msg.SenderID,
			SenderName: m.ResolveName(ctx, AccountRef{Kind: KindFriend, AccountID: msg.SenderID}),
		})
	}
	return views, nil
}

// GroupPageCount returns the number of history pages for a group.
func (m *Manager) GroupPageCount(groupID int64, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total, err := m.stores.GroupMessages.Count(groupID)
	if err != nil {
		return 0, fmt.Errorf("count group messages: %w", err)
	}
	return total/pageSize + 1, nil
}

// FriendPageCount returns the number of history pages for a conversation.
func (m *Manager) FriendPageCount(friendID int64, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total, err := m.stores.FriendMessages.Count(friendID)
	if err != nil {
		return 0, fmt.Errorf("count friend messages: %w", err)
	}
	return total/pageSize + 1, nil
}

// accountNameForMember picks the name to store on a member's global account
// row: the live profile when reachable, otherwise the last-known stored
// name, otherwise the group-scoped name from the event.
func (m *Manager) accountNameForMember(ctx context.Context, accountID int64, fallback string) string {
	nick, err := m.lookup.AccountNickname(ctx, accountID)
	if err == nil && nick != "" {
		return nick
	}
	if err != nil && !errors.Is(err, ErrUnknownTarget) {
		slog.Debug("account profile lookup failed", "account", accountID, "error", err)
	}
	if account, err := m.stores.Accounts.GetByAccountID(accountID); err == nil && account != nil && account.Name != "" {
		return account.Name
	}
	return fallback
}

func (m *Manager) groupDisplayName(ctx context.Context, groupID int64) string {
	if group, err := m.stores.Groups.GetByGroupID(groupID); err == nil && group != nil && group.Name != "" {
		return group.Name
	}
	if name, err := m.lookup.GroupName(ctx, groupID); err == nil && name != "" {
		return name
	}
	return strconv.FormatInt(groupID, 10)
}

func (m *Manager) epochNow() float64 {
	return float64(m.now().UnixNano()) / float64(time.Second)
}

func (m *Manager) formatTimestamp(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).Local().Format(timeLayout)
}

func pageBounds(pageSize, page int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}
