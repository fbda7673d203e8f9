package catalog

import (
	"context"
	"fmt"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/store"
)

// Policy decides who besides the owner may see a private book.
type Policy string

const (
	// PolicyFriends shows private books to the owner's friends.
	PolicyFriends Policy = "friends"
	// PolicyOwner shows private books to nobody but the owner.
	PolicyOwner Policy = "owner"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = PolicyFriends

// ParsePolicy parses a policy name. The empty string selects DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return DefaultPolicy, nil
	case PolicyFriends, PolicyOwner:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown visibility policy %q (want %q or %q)", s, PolicyFriends, PolicyOwner)
	}
}

// CanView reports whether viewerID may see b, given the friendship state
// between the viewer and the owner.
func CanView(p Policy, b *model.Book, viewerID int64, state model.FriendshipState) bool {
	if b.OwnerID == viewerID || b.Visibility == model.VisibilityPublic {
		return true
	}
	return p == PolicyFriends && state == model.FriendshipFriends
}

// Visible is CanView with the friendship state looked up in the store.
func Visible(ctx context.Context, q db.Querier, p Policy, b *model.Book, viewerID int64) (bool, error) {
	if CanView(p, b, viewerID, model.FriendshipNone) {
		return true, nil
	}
	if p != PolicyFriends {
		return false, nil
	}
	state, err := store.StatusBetween(ctx, q, viewerID, b.OwnerID)
	if err != nil {
		return false, err
	}
	return CanView(p, b, viewerID, state), nil
}
