package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/store"
)

// stubLookup fakes the live platform. Unset funcs report the target as
// unknown, which is also what a dead connection degrades to.
type stubLookup struct {
	botID           int64
	groupName       func(groupID int64) (string, error)
	memberName      func(groupID, accountID int64) (string, error)
	accountNickname func(accountID int64) (string, error)
	botNickname     func() (string, error)

	accountCalls int
}

func (s *stubLookup) BotID() int64 { return s.botID }

func (s *stubLookup) GroupName(_ context.Context, groupID int64) (string, error) {
	if s.groupName == nil {
		return "", ErrUnknownTarget
	}
	return s.groupName(groupID)
}

func (s *stubLookup) MemberName(_ context.Context, groupID, accountID int64) (string, error) {
	if s.memberName == nil {
		return "", ErrUnknownTarget
	}
	return s.memberName(groupID, accountID)
}

func (s *stubLookup) AccountNickname(_ context.Context, accountID int64) (string, error) {
	s.accountCalls++
	if s.accountNickname == nil {
		return "", ErrUnknownTarget
	}
	return s.accountNickname(accountID)
}

func (s *stubLookup) BotNickname(_ context.Context) (string, error) {
	if s.botNickname == nil {
		return "", ErrUnknownTarget
	}
	return s.botNickname()
}

func newTestManager(t *testing.T, lookup *stubLookup) (*Manager, *store.Stores) {
	t.Helper()
	stores, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	mgr := NewManager(stores, lookup)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
		_ = stores.Close()
	})
	return mgr, stores
}

func TestEnsureAccountSequenceKeepsLastName(t *testing.T) {
	mgr, stores := newTestManager(t, &stubLookup{botID: 1})

	for _, name := range []string{"first", "second", "third"} {
		if err := mgr.EnsureAccount(100, name); err != nil {
			t.Fatalf("ensure %q: %v", name, err)
		}
	}

	account, err := stores.Accounts.GetByAccountID(100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if account == nil || account.Name != "third" {
		t.Fatalf("expected last name to win, got %+v", account)
	}
}

func TestEnsureMemberIsScopedPerGroup(t *testing.T) {
	mgr, stores := newTestManager(t, &stubLookup{botID: 1})

	if err := mgr.EnsureMember(100, 5, "in-five"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := mgr.EnsureMember(100, 6, "in-six"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	inFive, err := stores.Members.GetByIDs(100, 5)
	if err != nil || inFive == nil {
		t.Fatalf("member in group 5: %v %v", inFive, err)
	}
	inSix, err := stores.Members.GetByIDs(100, 6)
	if err != nil || inSix == nil {
		t.Fatalf("member in group 6: %v %v", inSix, err)
	}
	if inFive.Name == inSix.Name {
		t.Errorf("expected independent names, both are %q", inFive.Name)
	}
}

func TestHandleGroupMessageScenario(t *testing.T) {
	lookup := &stubLookup{botID: 1}
	mgr, _ := newTestManager(t, lookup)
	ctx := context.Background()

	err := mgr.HandleGroupMessage(ctx, GroupMessageObservation{
		SenderID:   100,
		SenderName: "sender",
		GroupID:    5,
		GroupName:  "gophers",
		Timestamp:  1700000000.0,
		Payload:    "hello",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	views, err := mgr.ListGroupMessages(ctx, 5, 60, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d records, want 1", len(views))
	}

	v := views[0]
	if v.SenderID != 100 {
		t.Errorf("sender = %d, want 100", v.SenderID)
	}
	if v.Context != "hello" {
		t.Errorf("payload = %q, want %q", v.Context, "hello")
	}
	if v.SenderName != "sender" {
		t.Errorf("sender name = %q, want %q", v.SenderName, "sender")
	}
	if v.GroupName != "gophers" {
		t.Errorf("group name = %q, want %q", v.GroupName, "gophers")
	}
	wantTime := time.Unix(1700000000, 0).Local().Format("2006-01-02 15:04:05")
	if v.Time != wantTime {
		t.Errorf("time = %q, want %q", v.Time, wantTime)
	}
}

func TestHandleGroupMessageFallsBackToLastKnownAccountName(t *testing.T) {
	lookup := &stubLookup{botID: 1}
	mgr, stores := newTestManager(t, lookup)
	ctx := context.Background()

	obs := GroupMessageObservation{
		SenderID: 100, SenderName: "scoped", GroupID: 5, GroupName: "g",
		Timestamp: 1700000001, Payload: "one",
	}

	// First observation: profile reachable.
	lookup.accountNickname = func(int64) (string, error) { return "global-nick", nil }
	if err := mgr.HandleGroupMessage(ctx, obs); err != nil {
		t.Fatalf("handle: %v", err)
	}

	// Second observation: the platform no longer resolves the account;
	// the stored name must survive instead of being clobbered.
	lookup.accountNickname = func(int64) (string, error) { return "", ErrUnknownTarget }
	obs.Payload = "two"
	if err := mgr.HandleGroupMessage(ctx, obs); err != nil {
		t.Fatalf("handle: %v", err)
	}

	account, err := stores.Accounts.GetByAccountID(100)
	if err != nil || account == nil {
		t.Fatalf("account row: %v %v", account, err)
	}
	if account.Name != "global-nick" {
		t.Errorf("account name = %q, want last-known %q", account.Name, "global-nick")
	}
}

func TestListGroupMessagesPagination(t *testing.T) {
	mgr, _ := newTestManager(t, &stubLookup{botID: 1})
	ctx := context.Background()

	const total = 5
	for i := 1; i <= total; i++ {
		err := mgr.HandleGroupMessage(ctx, GroupMessageObservation{
			SenderID: 100, SenderName: "s", GroupID: 5, GroupName: "g",
			Timestamp: float64(1700000000 + i), Payload: fmt.Sprintf("msg-%d", i),
		})
		if err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	tests := []struct {
		page int
		want []string
	}{
		{1, []string{"msg-5", "msg-4"}},
		{2, []string{"msg-3", "msg-2"}},
		{3, []string{"msg-1"}},
		{4, []string{}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			views, err := mgr.ListGroupMessages(ctx, 5, 2, tt.page)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(views) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(views), len(tt.want))
			}
			for i, want := range tt.want {
				if views[i].Context != want {
					t.Errorf("record[%d] = %q, want %q", i, views[i].Context, want)
				}
			}
		})
	}

	pages, err := mgr.GroupPageCount(5, 2)
	if err != nil {
		t.Fatalf("page count: %v", err)
	}
	if pages != total/2+1 {
		t.Errorf("page count = %d, want %d", pages, total/2+1)
	}

	empty, err := mgr.GroupPageCount(404, 2)
	if err != nil {
		t.Fatalf("page count: %v", err)
	}
	if empty != 1 {
		t.Errorf("empty conversation page count = %d, want 1", empty)
	}
}

func TestBotSentMessagesUseRecordingTime(t *testing.T) {
	lookup := &stubLookup{botID: 1}
	mgr, stores := newTestManager(t, lookup)

	recordedAt := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	mgr.now = func() time.Time { return recordedAt }

	if err := mgr.RecordBotGroupMessage(5, "from web ui"); err != nil {
		t.Fatalf("record: %v", err)
	}

	messages, err := stores.GroupMessages.ListPage(5, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if messages[0].SenderID != 1 {
		t.Errorf("sender = %d, want bot id 1", messages[0].SenderID)
	}
	if got, want := messages[0].Timestamp, float64(recordedAt.Unix()); got != want {
		t.Errorf("timestamp = %f, want recording time %f", got, want)
	}
}

func TestSyncMessagesAreAttributedToBot(t *testing.T) {
	lookup := &stubLookup{botID: 1}
	mgr, stores := newTestManager(t, lookup)
	ctx := context.Background()

	if err := mgr.HandleGroupSync(ctx, 5, "gophers", "from phone"); err != nil {
		t.Fatalf("group sync: %v", err)
	}
	if err := mgr.HandleFriendSync(ctx, 200, "bob", "from phone too"); err != nil {
		t.Fatalf("friend sync: %v", err)
	}

	groupMsgs, err := stores.GroupMessages.ListPage(5, 10, 0)
	if err != nil || len(groupMsgs) != 1 {
		t.Fatalf("group messages: %v %v", groupMsgs, err)
	}
	if groupMsgs[0].SenderID != 1 {
		t.Errorf("group sync sender = %d, want bot id", groupMsgs[0].SenderID)
	}

	friendMsgs, err := stores.FriendMessages.ListPage(200, 10, 0)
	if err != nil || len(friendMsgs) != 1 {
		t.Fatalf("friend messages: %v %v", friendMsgs, err)
	}
	if friendMsgs[0].SenderID != 1 {
		t.Errorf("friend sync sender = %d, want bot id", friendMsgs[0].SenderID)
	}
	if friendMsgs[0].FriendID != 200 {
		t.Errorf("friend sync conversation = %d, want 200", friendMsgs[0].FriendID)
	}

	group, err := stores.Groups.GetByGroupID(5)
	if err != nil || group == nil {
		t.Fatalf("group row: %v %v", group, err)
	}
	if group.Name != "gophers" {
		t.Errorf("group name = %q, want %q", group.Name, "gophers")
	}
}

func TestEnsureBotIdentitySoftFailsOnLookupError(t *testing.T) {
	lookup := &stubLookup{botID: 1}
	mgr, stores := newTestManager(t, lookup)

	if err := mgr.EnsureBotIdentity(context.Background(), 5); err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	member, err := stores.Members.GetByIDs(1, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if member != nil {
		t.Errorf("no row should be written on lookup failure, got %+v", member)
	}

	lookup.memberName = func(int64, int64) (string, error) { return "botty", nil }
	if err := mgr.EnsureBotIdentity(context.Background(), 5); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	member, err = stores.Members.GetByIDs(1, 5)
	if err != nil || member == nil {
		t.Fatalf("member row: %v %v", member, err)
	}
	if member.Name != "botty" {
		t.Errorf("bot member name = %q, want %q", member.Name, "botty")
	}
}

func TestShutdownRejectsNewWrites(t *testing.T) {
	mgr, _ := newTestManager(t, &stubLookup{botID: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if err := mgr.EnsureAccount(100, "late"); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
	err := mgr.HandleFriendMessage(context.Background(), FriendMessageObservation{SenderID: 1, Payload: "x"})
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}
