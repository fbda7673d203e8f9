package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/paralibrary/internal/db"
	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/store"
)

type fixture struct {
	db    *sql.DB
	svc   *Service
	owner *model.User
	pal   *model.User
	other *model.User
}

func setup(t *testing.T, p Policy) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	mk := func(name string) *model.User {
		u, err := store.CreateUser(ctx, database, name, "hash", model.RoleUser)
		require.NoError(t, err)
		return u
	}
	f := &fixture{db: database, svc: New(database, p), owner: mk("owner"), pal: mk("pal"), other: mk("other")}

	_, err := store.RequestFriendship(ctx, database, f.owner.ID, f.pal.ID)
	require.NoError(t, err)
	_, err = store.AcceptFriendship(ctx, database, f.owner.ID, f.pal.ID)
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, title string, v model.Visibility) *model.Book {
	t.Helper()
	b, err := f.svc.Create(context.Background(), f.owner.ID, BookInput{Title: title, Visibility: v})
	require.NoError(t, err)
	return b
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFriends, p)

	p, err = ParsePolicy("owner")
	require.NoError(t, err)
	assert.Equal(t, PolicyOwner, p)

	_, err = ParsePolicy("everyone")
	assert.Error(t, err)
}

func TestCanView(t *testing.T) {
	public := &model.Book{OwnerID: 1, Visibility: model.VisibilityPublic}
	private := &model.Book{OwnerID: 1, Visibility: model.VisibilityPrivate}

	tests := []struct {
		name   string
		policy Policy
		book   *model.Book
		viewer int64
		state  model.FriendshipState
		want   bool
	}{
		{"owner sees private", PolicyOwner, private, 1, model.FriendshipNone, true},
		{"stranger sees public", PolicyOwner, public, 2, model.FriendshipNone, true},
		{"friend sees private under friends", PolicyFriends, private, 2, model.FriendshipFriends, true},
		{"friend blind under owner", PolicyOwner, private, 2, model.FriendshipFriends, false},
		{"pending request is not enough", PolicyFriends, private, 2, model.FriendshipRequested, false},
		{"stranger blind", PolicyFriends, private, 2, model.FriendshipNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanView(tt.policy, tt.book, tt.viewer, tt.state))
		})
	}
}

func TestLibraryVisibility(t *testing.T) {
	ctx := context.Background()

	t.Run("friends policy", func(t *testing.T) {
		f := setup(t, PolicyFriends)
		f.create(t, "Public", model.VisibilityPublic)
		f.create(t, "Private", model.VisibilityPrivate)

		_, own, err := f.svc.Library(ctx, f.owner.ID, f.owner.ID)
		require.NoError(t, err)
		assert.Len(t, own, 2)

		_, pal, err := f.svc.Library(ctx, f.owner.ID, f.pal.ID)
		require.NoError(t, err)
		assert.Len(t, pal, 2)

		_, stranger, err := f.svc.Library(ctx, f.owner.ID, f.other.ID)
		require.NoError(t, err)
		require.Len(t, stranger, 1)
		assert.Equal(t, "Public", stranger[0].Title)
	})

	t.Run("owner policy", func(t *testing.T) {
		f := setup(t, PolicyOwner)
		f.create(t, "Public", model.VisibilityPublic)
		f.create(t, "Private", model.VisibilityPrivate)

		_, pal, err := f.svc.Library(ctx, f.owner.ID, f.pal.ID)
		require.NoError(t, err)
		require.Len(t, pal, 1)
		assert.Equal(t, "Public", pal[0].Title)
	})

	t.Run("missing owner", func(t *testing.T) {
		f := setup(t, PolicyFriends)
		_, _, err := f.svc.Library(ctx, 9999, f.pal.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestBookHidesInvisible(t *testing.T) {
	f := setup(t, PolicyFriends)
	ctx := context.Background()
	private := f.create(t, "Diary", model.VisibilityPrivate)

	_, err := f.svc.Book(ctx, private.ID, f.other.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	b, err := f.svc.Book(ctx, private.ID, f.pal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Diary", b.Title)

	_, err = f.svc.Book(ctx, 9999, f.owner.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeletedOwnerHidesBooks(t *testing.T) {
	f := setup(t, PolicyFriends)
	ctx := context.Background()
	b := f.create(t, "Dune", model.VisibilityPublic)

	require.NoError(t, store.DeleteUser(ctx, f.db, f.owner.ID))

	_, err := f.svc.Book(ctx, b.ID, f.other.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, _, err = f.svc.Library(ctx, f.owner.ID, f.other.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t, PolicyFriends)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.owner.ID, BookInput{Title: "   "})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Create(ctx, f.owner.ID, BookInput{Title: "X", Visibility: "friends-only"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Create(ctx, 9999, BookInput{Title: "X"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	b, err := f.svc.Create(ctx, f.owner.ID, BookInput{Title: " Dune ", Categories: []string{"b", " a", "", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "Dune", b.Title)
	assert.Equal(t, model.VisibilityPublic, b.Visibility)
	assert.Equal(t, []string{"a", "b"}, b.Categories)
	assert.Equal(t, f.owner.ID, b.OwnerID)
}

func TestUpdateOwnerOnly(t *testing.T) {
	f := setup(t, PolicyFriends)
	ctx := context.Background()
	b := f.create(t, "Dune", model.VisibilityPublic)

	_, err := f.svc.Update(ctx, f.pal.ID, b.ID, BookInput{Title: "Stolen"})
	assert.ErrorIs(t, err, model.ErrAuthorization)

	updated, err := f.svc.Update(ctx, f.owner.ID, b.ID, BookInput{Title: "Dune Messiah", Visibility: model.VisibilityPrivate})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, model.VisibilityPrivate, updated.Visibility)
	assert.Equal(t, f.owner.ID, updated.OwnerID)

	// A stranger cannot even learn the private book exists.
	_, err = f.svc.Update(ctx, f.other.ID, b.ID, BookInput{Title: "X"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := setup(t, PolicyFriends)
	ctx := context.Background()
	b := f.create(t, "Dune", model.VisibilityPublic)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.pal.ID, b.ID), model.ErrAuthorization)

	_, err := store.InsertLoan(ctx, f.db, &model.Loan{
		BookID: b.ID, OwnerID: f.owner.ID, RequesterID: f.pal.ID,
		Status: model.LoanPending, RequestDate: time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.owner.ID, b.ID), model.ErrConflict)

	free := f.create(t, "Emma", model.VisibilityPublic)
	require.NoError(t, f.svc.Delete(ctx, f.owner.ID, free.ID))

	_, err = f.svc.Book(ctx, free.ID, f.owner.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
