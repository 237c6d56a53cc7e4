package ledger

import (
	"context"
)

// MembershipOracle tells whether the account joined the required channels
// Errors are treated as "not a member"
type MembershipOracle interface {
	IsMember(ctx context.Context, accountID string) (bool, error)
}

// Notifier delivers a message to the account owner
type Notifier interface {
	Notify(ctx context.Context, accountID string, message string) error
}

type AdminSet interface {
	IsAdmin(accountID string) bool
}

// StaticAdmins is an AdminSet fixed at construction
type StaticAdmins map[string]struct{}

func NewStaticAdmins(ids ...string) StaticAdmins {
	admins := make(StaticAdmins, len(ids))
	for _, id := range ids {
		admins[id] = struct{}{}
	}
	return admins
}

func (a StaticAdmins) IsAdmin(accountID string) bool {
	_, ok := a[accountID]
	return ok
}

// Everyone is a MembershipOracle for deployments without required channels
type Everyone struct{}

func (Everyone) IsMember(context.Context, string) (bool, error) {
	return true, nil
}
