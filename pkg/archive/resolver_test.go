package archive

import (
	"context"
	"testing"
)

func TestResolveNamePrefersMemberRow(t *testing.T) {
	mgr, stores := newTestManager(t, &stubLookup{botID: 1})
	ctx := context.Background()

	if err := stores.Accounts.Upsert(100, "global"); err != nil {
		t.Fatalf("upsert account: %v", err)
	}
	if err := stores.Members.Upsert(100, 5, "scoped"); err != nil {
		t.Fatalf("upsert member: %v", err)
	}

	got := mgr.ResolveName(ctx, AccountRef{Kind: KindMember, AccountID: 100, GroupID: 5})
	if got != "scoped" {
		t.Errorf("name = %q, want group-scoped %q", got, "scoped")
	}

	// A member of another group falls through to the account row.
	got = mgr.ResolveName(ctx, AccountRef{Kind: KindMember, AccountID: 100, GroupID: 6})
	if got != "global" {
		t.Errorf("name = %q, want account row %q", got, "global")
	}
}

func TestResolveNameFallsBackToAccountRow(t *testing.T) {
	mgr, stores := newTestManager(t, &stubLookup{botID: 1})

	if err := stores.Accounts.Upsert(200, "bob"); err != nil {
		t.Fatalf("upsert account: %v", err)
	}

	got := mgr.ResolveName(context.Background(), AccountRef{Kind: KindFriend, AccountID: 200})
	if got != "bob" {
		t.Errorf("name = %q, want %q", got, "bob")
	}
}

func TestResolveNameConsultsLivePlatform(t *testing.T) {
	lookup := &stubLookup{
		botID:           1,
		accountNickname: func(int64) (string, error) { return "live-nick", nil },
	}
	mgr, _ := newTestManager(t, lookup)
	ctx := context.Background()

	ref := AccountRef{Kind: KindStranger, AccountID: 300}
	if got := mgr.ResolveName(ctx, ref); got != "live-nick" {
		t.Fatalf("name = %q, want %q", got, "live-nick")
	}
	// Second resolution hits the cache instead of the platform.
	if got := mgr.ResolveName(ctx, ref); got != "live-nick" {
		t.Fatalf("cached name = %q, want %q", got, "live-nick")
	}
	if lookup.accountCalls != 1 {
		t.Errorf("platform was asked %d times, want 1", lookup.accountCalls)
	}
}

func TestResolveNamePlaceholderWhenNothingResolves(t *testing.T) {
	mgr, _ := newTestManager(t, &stubLookup{botID: 1})

	got := mgr.ResolveName(context.Background(), AccountRef{Kind: KindMember, AccountID: 404, GroupID: 5})
	if got != UnresolvableName {
		t.Errorf("name = %q, want placeholder %q", got, UnresolvableName)
	}
}
