package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
)

const userColumns = `id, username, password_hash, role, display_name, email, picture_url, created_at, deleted_at`

func scanUser(s interface{ Scan(...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.DisplayName, &u.Email, &u.PictureURL, &u.CreatedAt, &u.DeletedAt)
}

// CreateUser creates a new user.
func CreateUser(ctx context.Context, q db.Querier, username, passwordHash, role string) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, display_name) VALUES (?, ?, ?, ?)`,
		username, passwordHash, role, username,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Errorf(model.ErrConflict, "username %q already exists", username)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID, or nil if none exists.
func GetUser(ctx context.Context, q db.Querier, id int64) (*model.User, error) {
	u := &model.User{}
	err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetActiveUser returns a non-deleted user by ID, or nil.
func GetActiveUser(ctx context.Context, q db.Querier, id int64) (*model.User, error) {
	u, err := GetUser(ctx, q, id)
	if err != nil || u == nil || u.DeletedAt != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, q db.Querier, username string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, q db.Querier) ([]model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserProfile updates the public profile fields of a user.
func UpdateUserProfile(ctx context.Context, q db.Querier, id int64, displayName, email, pictureURL string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET display_name = ?, email = ?, picture_url = ? WHERE id = ? AND deleted_at IS NULL`,
		displayName, email, pictureURL, id,
	)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, q db.Querier, id int64, passwordHash string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// SetUserPicture stores a processed profile picture and points picture_url at it.
func SetUserPicture(ctx context.Context, q db.Querier, id int64, image []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET picture = ?, picture_mime = ?, picture_url = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, fmt.Sprintf("/api/users/%d/picture", id), id,
	)
	if err != nil {
		return fmt.Errorf("setting user picture: %w", err)
	}
	return nil
}

// GetUserPicture returns a user's stored picture and its MIME type.
func GetUserPicture(ctx context.Context, q db.Querier, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT picture, picture_mime FROM users WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting user picture: %w", err)
	}
	return image, mime.String, nil
}
