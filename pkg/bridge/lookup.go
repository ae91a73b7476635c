package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/archive"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/mirai"
)

// Lookup adapts the mirai client to the archive's ProfileLookup capability,
// translating platform error codes into the archive's sentinel.
type Lookup struct {
	client *mirai.Client
}

var _ archive.ProfileLookup = (*Lookup)(nil)

// NewLookup wraps a client as a ProfileLookup.
func NewLookup(client *mirai.Client) *Lookup {
	return &Lookup{client: client}
}

func (l *Lookup) BotID() int64 {
	return l.client.BotID()
}

func (l *Lookup) GroupName(ctx context.Context, groupID int64) (string, error) {
	cfg, err := l.client.GetGroupConfig(ctx, groupID)
	if err != nil {
		return "", mapErr(err)
	}
	return cfg.Name, nil
}

func (l *Lookup) MemberName(ctx context.Context, groupID, accountID int64) (string, error) {
	profile, err := l.client.GetMemberProfile(ctx, groupID, accountID)
	if err != nil {
		return "", mapErr(err)
	}
	return profile.Nickname, nil
}

func (l *Lookup) AccountNickname(ctx context.Context, accountID int64) (string, error) {
	profile, err := l.client.GetAccountProfile(ctx, accountID)
	if err != nil {
		return "", mapErr(err)
	}
	return profile.Nickname, nil
}

func (l *Lookup) BotNickname(ctx context.Context) (string, error) {
	profile, err := l.client.GetBotProfile(ctx)
	if err != nil {
		return "", mapErr(err)
	}
	return profile.Nickname, nil
}

func mapErr(err error) error {
	if errors.Is(err, mirai.ErrUnknownTarget) {
		return fmt.Errorf("%w: %v", archive.ErrUnknownTarget, err)
	}
	return err
}
