package model

import "time"

// FriendshipState is the relationship tier between two users.
type FriendshipState string

// Friendship states. None is never stored; it is the absence of an edge.
const (
	FriendshipNone      FriendshipState = "none"
	FriendshipRequested FriendshipState = "requested"
	FriendshipFriends   FriendshipState = "friends"
)

// Friendship is an edge between two users, seen from UserID's side.
type Friendship struct {
	UserID      int64           `json:"user_id"`
	FriendID    int64           `json:"friend_id"`
	RequestedBy int64           `json:"requested_by"`
	Status      FriendshipState `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	// Joined fields (not always populated).
	FriendName    string `json:"friend_name,omitempty"`
	FriendPicture string `json:"friend_picture,omitempty"`
}

// Incoming reports whether this is a pending request sent to UserID.
func (f *Friendship) Incoming() bool {
	return f.Status == FriendshipRequested && f.RequestedBy != f.UserID
}
