package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleUser {
		t.Errorf("expected role 'user', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleUser)
	CreateUser(ctx, database, "b", "hash", model.RoleAdmin)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleUser)
	DeleteUser(ctx, database, user.ID)

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleUser)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, database, "dup", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	_, err := CreateUser(ctx, database, "dup", "hash", model.RoleUser)
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict for duplicate username, got %v", err)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "carol", "hash", model.RoleUser)
	if user.DisplayName != "carol" {
		t.Errorf("expected display name to default to username, got %q", user.DisplayName)
	}

	if err := UpdateUserProfile(ctx, database, user.ID, "Carol", "carol@example.com", "https://example.com/c.png"); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.DisplayName != "Carol" || got.Email != "carol@example.com" || got.PictureURL != "https://example.com/c.png" {
		t.Errorf("profile not updated: %+v", got)
	}
}

func TestUserPicture(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pic", "hash", model.RoleUser)

	data, _, err := GetUserPicture(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUserPicture: %v", err)
	}
	if data != nil {
		t.Error("expected no picture initially")
	}

	if err := SetUserPicture(ctx, database, user.ID, []byte{0xff, 0xd8}, "image/jpeg"); err != nil {
		t.Fatalf("SetUserPicture: %v", err)
	}

	data, mime, _ := GetUserPicture(ctx, database, user.ID)
	if len(data) != 2 || mime != "image/jpeg" {
		t.Errorf("unexpected picture: %v %q", data, mime)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PictureURL != fmt.Sprintf("/api/users/%d/picture", user.ID) {
		t.Errorf("unexpected picture url %q", got.PictureURL)
	}
}

func TestGetActiveUserSkipsDeleted(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "gone", "hash", model.RoleUser)
	DeleteUser(ctx, database, user.ID)

	got, err := GetActiveUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetActiveUser: %v", err)
	}
	if got != nil {
		t.Error("expected nil for deleted user")
	}
}
