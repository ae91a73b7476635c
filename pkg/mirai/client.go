package mirai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Sentinel errors mapped from mirai-api-http status codes.
var (
	ErrNotConnected   = errors.New("not connected to mirai-api-http")
	ErrInvalidKey     = errors.New("wrong verify key")
	ErrBotNotFound    = errors.New("bot account not found")
	ErrSessionInvalid = errors.New("session invalid or expired")
	ErrUnknownTarget  = errors.New("target does not exist")
	ErrNoPermission   = errors.New("bot lacks permission")
	ErrBotMuted       = errors.New("bot is muted in this group")
	ErrMessageTooLong = errors.New("message too long")
)

// APIError is a non-zero status reply that has no dedicated sentinel.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mirai-api-http error %d: %s", e.Code, e.Msg)
}

func apiError(code int, msg string) error {
	switch code {
	case 0:
		return nil
	case 1:
		return ErrInvalidKey
	case 2:
		return ErrBotNotFound
	case 3, 4:
		return ErrSessionInvalid
	case 5:
		return fmt.Errorf("%w: %s", ErrUnknownTarget, msg)
	case 10:
		return ErrNoPermission
	case 20:
		return ErrBotMuted
	case 30:
		return ErrMessageTooLong
	default:
		return &APIError{Code: code, Msg: msg}
	}
}

// envelope is the websocket adapter frame. Pushed events carry syncId "-1";
// command replies echo the syncId of the request.
type envelope struct {
	SyncID string          `json:"syncId"`
	Data   json.RawMessage `json:"data"`
}

type callResult struct {
	data json.RawMessage
	err  error
}

// Client talks to the mirai-api-http websocket adapter. All commands go
// through the single connection, correlated by syncId; inbound events are
// dispatched to registered handlers, one goroutine per delivery.
type Client struct {
	host      string
	verifyKey string
	qq        int64

	writeMu sync.Mutex
	conn    *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan callResult
	syncID    atomic.Int64

	handlersMu      sync.RWMutex
	onGroupMessage  []func(*GroupMessageEvent)
	onFriendMessage []func(*FriendMessageEvent)
	onGroupSync     []func(*GroupSyncMessageEvent)
	onFriendSync    []func(*FriendSyncMessageEvent)
	onConnect       []func()
	onDisconnect    []func()

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for the adapter at host (host[:port], no
// scheme) authenticating with verifyKey for the bot account qq.
func NewClient(host, verifyKey string, qq int64) *Client {
	return &Client{
		host:      host,
		verifyKey: verifyKey,
		qq:        qq,
		pending:   make(map[string]chan callResult),
		closed:    make(chan struct{}),
	}
}

// BotID returns the bot's own account id.
func (c *Client) BotID() int64 { return c.qq }

// OnGroupMessage registers a handler for inbound group messages.
func (c *Client) OnGroupMessage(fn func(*GroupMessageEvent)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onGroupMessage = append(c.onGroupMessage, fn)
}

// OnFriendMessage registers a handler for inbound friend messages.
func (c *Client) OnFriendMessage(fn func(*FriendMessageEvent)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onFriendMessage = append(c.onFriendMessage, fn)
}

// OnGroupSyncMessage registers a handler for group messages the bot sent
// from another client session.
func (c *Client) OnGroupSyncMessage(fn func(*GroupSyncMessageEvent)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onGroupSync = append(c.onGroupSync, fn)
}

// OnFriendSyncMessage registers a handler for friend messages the bot sent
// from another client session.
func (c *Client) OnFriendSyncMessage(fn func(*FriendSyncMessageEvent)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onFriendSync = append(c.onFriendSync, fn)
}

// OnConnect registers a hook fired after each successful connection.
func (c *Client) OnConnect(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a hook fired after the connection drops.
func (c *Client) OnDisconnect(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Run connects and serves the websocket until ctx is cancelled or Close is
// called, reconnecting with capped exponential backoff.
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			slog.Error("platform connection failed", "host", c.host, "error", err)
		} else {
			backoff = time.Second
			c.fireConnect()
			c.readLoop(conn)
			c.fireDisconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// Close tears the connection down and unblocks all pending calls.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.writeMu.Unlock()
	})
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   c.host,
		Path:   "/all",
		RawQuery: url.Values{
			"verifyKey": {c.verifyKey},
			"qq":        {strconv.FormatInt(c.qq, 10)},
		}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.host, err)
	}

	// First frame acknowledges the session (or reports an auth failure).
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read session ack: %w", err)
	}
	var ack struct {
		Code    int    `json:"code"`
		Msg     string `json:"msg"`
		Session string `json:"session"`
	}
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode session ack: %w", err)
	}
	if err := apiError(ack.Code, ack.Msg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	slog.Info("connected to mirai-api-http", "host", c.host, "account", c.qq)
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.writeMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.writeMu.Unlock()
		_ = conn.Close()
		c.failPending(ErrNotConnected)
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
			default:
				slog.Warn("platform connection lost", "error", err)
			}
			return
		}
		if c.deliverReply(env) {
			continue
		}
		c.dispatchEvent(env.Data)
	}
}

func (c *Client) deliverReply(env envelope) bool {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.SyncID]
	if ok {
		delete(c.pending, env.SyncID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- callResult{data: env.Data}
	}
	return ok
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- callResult{err: err}
	}
}

func (c *Client) dispatchEvent(data json.RawMessage) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		slog.Warn("undecodable platform event", "error", err)
		return
	}

	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()

	switch head.Type {
	case "GroupMessage":
		var ev GroupMessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("bad GroupMessage event", "error", err)
			return
		}
		for _, fn := range c.onGroupMessage {
			go fn(&ev)
		}
	case "FriendMessage":
		var ev FriendMessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("bad FriendMessage event", "error", err)
			return
		}
		for _, fn := range c.onFriendMessage {
			go fn(&ev)
		}
	case "GroupSyncMessage":
		var ev GroupSyncMessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("bad GroupSyncMessage event", "error", err)
			return
		}
		for _, fn := range c.onGroupSync {
			go fn(&ev)
		}
	case "FriendSyncMessage":
		var ev FriendSyncMessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("bad FriendSyncMessage event", "error", err)
			return
		}
		for _, fn := range c.onFriendSync {
			go fn(&ev)
		}
	default:
		slog.Debug("ignoring platform event", "type", head.Type)
	}
}

func (c *Client) fireConnect() {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	for _, fn := range c.onConnect {
		fn()
	}
}

func (c *Client) fireDisconnect() {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	for _, fn := range c.onDisconnect {
		fn()
	}
}

// call sends one command frame and waits for the correlated reply. The reply
// payload is unwrapped: when the adapter wraps the result in a status object
// the inner data is returned and non-zero codes become errors.
func (c *Client) call(ctx context.Context, command, subCommand string, content any) (json.RawMessage, error) {
	id := strconv.FormatInt(c.syncID.Add(1), 10)
	frame := map[string]any{
		"syncId":  id,
		"command": command,
	}
	if subCommand != "" {
		frame["subCommand"] = subCommand
	}
	if content != nil {
		frame["content"] = content
	}

	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	conn := c.conn
	var err error
	if conn == nil {
		err = ErrNotConnected
	} else {
		err = conn.WriteJSON(frame)
	}
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrNotConnected
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		var status struct {
			Code *int            `json:"code"`
			Msg  string          `json:"msg"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(res.data, &status); err == nil && status.Code != nil {
			if err := apiError(*status.Code, status.Msg); err != nil {
				return nil, err
			}
			if len(status.Data) > 0 {
				return status.Data, nil
			}
			return res.data, nil
		}
		return res.data, nil
	}
}

// GetFriendList returns the bot's friends.
func (c *Client) GetFriendList(ctx context.Context) ([]Friend, error) {
	data, err := c.call(ctx, "friendList", "", nil)
	if err != nil {
		return nil, err
	}
	var friends []Friend
	if err := json.Unmarshal(data, &friends); err != nil {
		return nil, fmt.Errorf("decode friend list: %w", err)
	}
	return friends, nil
}

// GetGroupList returns the groups the bot is a member of.
func (c *Client) GetGroupList(ctx context.Context) ([]Group, error) {
	data, err := c.call(ctx, "groupList", "", nil)
	if err != nil {
		return nil, err
	}
	var groups []Group
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decode group list: %w", err)
	}
	return groups, nil
}

// GetGroupConfig returns a group's configuration, including its name.
func (c *Client) GetGroupConfig(ctx context.Context, groupID int64) (*GroupConfig, error) {
	data, err := c.call(ctx, "groupConfig", "get", map[string]any{"target": groupID})
	if err != nil {
		return nil, err
	}
	var cfg GroupConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode group config: %w", err)
	}
	return &cfg, nil
}

// GetMemberProfile returns the global profile of a member of a group.
func (c *Client) GetMemberProfile(ctx context.Context, groupID, accountID int64) (*Profile, error) {
	data, err := c.call(ctx, "memberProfile", "", map[string]any{
		"target":   groupID,
		"memberId": accountID,
	})
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode member profile: %w", err)
	}
	return &p, nil
}

// GetAccountProfile returns the global profile of an arbitrary account.
func (c *Client) GetAccountProfile(ctx context.Context, accountID int64) (*Profile, error) {
	data, err := c.call(ctx, "userProfile", "", map[string]any{"target": accountID})
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode user profile: %w", err)
	}
	return &p, nil
}

// GetBotProfile returns the profile of the bot account itself.
func (c *Client) GetBotProfile(ctx context.Context) (*Profile, error) {
	data, err := c.call(ctx, "botProfile", "", nil)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode bot profile: %w", err)
	}
	return &p, nil
}

// SendGroupMessage sends a chain to a group and returns the platform
// message id.
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, chain MessageChain) (int64, error) {
	return c.send(ctx, "sendGroupMessage", groupID, chain)
}

// SendFriendMessage sends a chain to a friend and returns the platform
// message id.
func (c *Client) SendFriendMessage(ctx context.Context, friendID int64, chain MessageChain) (int64, error) {
	return c.send(ctx, "sendFriendMessage", friendID, chain)
}

func (c *Client) send(ctx context.Context, command string, target int64, chain MessageChain) (int64, error) {
	data, err := c.call(ctx, command, "", map[string]any{
		"target":       target,
		"messageChain": chain,
	})
	if err != nil {
		return 0, err
	}
	var res struct {
		MessageID int64 `json:"messageId"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return 0, fmt.Errorf("decode send reply: %w", err)
	}
	return res.MessageID, nil
}
