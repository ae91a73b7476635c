package archive

import (
	"context"
	"log/slog"

	"github.com/jellydator/ttlcache/v3"
)

// UnresolvableName is the placeholder rendered when no name can be
// determined for an identity at all.
const UnresolvableName = "unresolvable user"

// AccountKind says which relation an identity has to the bot, which decides
// the resolution path for its display name.
type AccountKind int

const (
	// KindFriend is an account on the bot's friend list.
	KindFriend AccountKind = iota
	// KindStranger is an account with no relation to the bot.
	KindStranger
	// KindMember is an account observed inside a group; GroupID scopes it.
	KindMember
)

// AccountRef names one identity to resolve. GroupID is only meaningful for
// KindMember.
type AccountRef struct {
	Kind      AccountKind
	AccountID int64
	GroupID   int64
}

// ResolveName produces a best-effort display name for an identity. The
// fallback chain is: group-scoped member row, global account row, live
// profile lookup (TTL-cached), and finally the fixed placeholder. It never
// fails the caller.
func (m *Manager) ResolveName(ctx context.Context, ref AccountRef) string {
	if ref.Kind == KindMember {
		member, err := m.stores.Members.GetByIDs(ref.AccountID, ref.GroupID)
		if err != nil {
			slog.Warn("member row lookup failed", "account", ref.AccountID, "group", ref.GroupID, "error", err)
		} else if member != nil && member.Name != "" {
			return member.Name
		}
	}

	account, err := m.stores.Accounts.GetByAccountID(ref.AccountID)
	if err != nil {
		slog.Warn("account row lookup failed", "account", ref.AccountID, "error", err)
	} else if account != nil && account.Name != "" {
		return account.Name
	}

	if name, ok := m.liveNickname(ctx, ref.AccountID); ok {
		return name
	}
	return UnresolvableName
}

// liveNickname consults the live profile lookup through the TTL cache, so a
// page render with many messages from one sender costs one platform call.
func (m *Manager) liveNickname(ctx context.Context, accountID int64) (string, bool) {
	if item := m.profiles.Get(accountID); item != nil {
		return item.Value(), true
	}
	name, err := m.lookup.AccountNickname(ctx, accountID)
	if err != nil || name == "" {
		slog.Debug("identity unresolvable", "account", accountID, "error", err)
		return "", false
	}
	m.profiles.Set(accountID, name, ttlcache.DefaultTTL)
	return name, true
}
