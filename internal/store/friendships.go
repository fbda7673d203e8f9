package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
)

// pair orders two user IDs the way the friendships table stores them.
func pair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetFriendship returns the edge between a and b seen from a's side, or nil
// if the users are not connected.
func GetFriendship(ctx context.Context, q db.Querier, a, b int64) (*model.Friendship, error) {
	lo, hi := pair(a, b)
	f := &model.Friendship{UserID: a, FriendID: b}
	err := q.QueryRowContext(ctx,
		`SELECT requested_by, status, created_at, updated_at
		 FROM friendships WHERE user_a = ? AND user_b = ?`, lo, hi,
	).Scan(&f.RequestedBy, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting friendship: %w", err)
	}
	return f, nil
}

// StatusBetween returns the friendship state between a and b.
func StatusBetween(ctx context.Context, q db.Querier, a, b int64) (model.FriendshipState, error) {
	if a == b {
		return model.FriendshipNone, nil
	}
	f, err := GetFriendship(ctx, q, a, b)
	if err != nil {
		return "", err
	}
	if f == nil {
		return model.FriendshipNone, nil
	}
	return f.Status, nil
}

// RequestFriendship records a request from a to b. It is a no-op when a has
// already asked or the users are already friends. If b had already asked a,
// the friendship is completed.
func RequestFriendship(ctx context.Context, q db.Querier, a, b int64) (*model.Friendship, error) {
	if a == b {
		return nil, model.Errorf(model.ErrValidation, "cannot befriend yourself")
	}

	f, err := GetFriendship(ctx, q, a, b)
	if err != nil {
		return nil, err
	}

	lo, hi := pair(a, b)
	switch {
	case f == nil:
		_, err = q.ExecContext(ctx,
			`INSERT INTO friendships (user_a, user_b, requested_by, status) VALUES (?, ?, ?, ?)`,
			lo, hi, a, string(model.FriendshipRequested),
		)
		if err != nil {
			return nil, fmt.Errorf("requesting friendship: %w", err)
		}
	case f.Status == model.FriendshipRequested && f.RequestedBy == b:
		return AcceptFriendship(ctx, q, b, a)
	default:
		return f, nil
	}

	return GetFriendship(ctx, q, a, b)
}

// AcceptFriendship accepts the pending request that requester sent to target.
func AcceptFriendship(ctx context.Context, q db.Querier, requester, target int64) (*model.Friendship, error) {
	f, err := GetFriendship(ctx, q, target, requester)
	if err != nil {
		return nil, err
	}
	if f == nil || f.Status != model.FriendshipRequested || f.RequestedBy != requester {
		state := model.FriendshipNone
		if f != nil {
			state = f.Status
		}
		return nil, model.Errorf(model.ErrInvalidState,
			"no pending friend request from user %d to user %d (state %s)", requester, target, state)
	}

	lo, hi := pair(requester, target)
	_, err = q.ExecContext(ctx,
		`UPDATE friendships SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_a = ? AND user_b = ? AND status = ?`,
		string(model.FriendshipFriends), lo, hi, string(model.FriendshipRequested),
	)
	if err != nil {
		return nil, fmt.Errorf("accepting friendship: %w", err)
	}

	return GetFriendship(ctx, q, target, requester)
}

// RemoveFriendship removes any edge between a and b.
func RemoveFriendship(ctx context.Context, q db.Querier, a, b int64) error {
	lo, hi := pair(a, b)
	_, err := q.ExecContext(ctx,
		`DELETE FROM friendships WHERE user_a = ? AND user_b = ?`, lo, hi,
	)
	if err != nil {
		return fmt.Errorf("removing friendship: %w", err)
	}
	return nil
}

// ListFriendships returns all edges touching userID, seen from userID's side.
func ListFriendships(ctx context.Context, q db.Querier, userID int64) ([]model.Friendship, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT CASE WHEN f.user_a = ? THEN f.user_b ELSE f.user_a END AS friend_id,
		        f.requested_by, f.status, f.created_at, f.updated_at,
		        u.display_name, u.username, u.picture_url
		 FROM friendships f
		 JOIN users u ON u.id = CASE WHEN f.user_a = ? THEN f.user_b ELSE f.user_a END
		 WHERE (f.user_a = ? OR f.user_b = ?) AND u.deleted_at IS NULL
		 ORDER BY f.status DESC, u.display_name`,
		userID, userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friendships: %w", err)
	}
	defer rows.Close()

	var friendships []model.Friendship
	for rows.Next() {
		f := model.Friendship{UserID: userID}
		var displayName, username string
		if err := rows.Scan(&f.FriendID, &f.RequestedBy, &f.Status, &f.CreatedAt, &f.UpdatedAt,
			&displayName, &username, &f.FriendPicture); err != nil {
			return nil, fmt.Errorf("scanning friendship: %w", err)
		}
		f.FriendName = displayName
		if f.FriendName == "" {
			f.FriendName = username
		}
		friendships = append(friendships, f)
	}
	return friendships, rows.Err()
}
