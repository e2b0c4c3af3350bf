package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dripbot/core/database"
	"dripbot/core/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	_ = logger.InitLogger(nil)

	cfg := database.Config{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		MigrationsDir: "../migrations",
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(cfg))
	return New(db)
}

func TestCreateUserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateUser(ctx, NewUser{
		TelegramID: 100500,
		Username:   "alice_dev",
		FirstName:  "Alice",
		LastName:   "Smith",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, int64(100500), created.TelegramID)
	require.Equal(t, "alice_dev", created.Username)
	require.True(t, created.IsActive)
	require.False(t, created.IsBlocked)
	require.False(t, created.CreatedAt.IsZero())
	require.Empty(t, created.ReferralCode)
	require.Zero(t, created.ReferredBy)

	got, err := store.GetUserByTelegramID(ctx, 100500)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, created.CreatedAt, got.CreatedAt)
}

func TestCreateUserDuplicateTelegramID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, NewUser{TelegramID: 42})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, NewUser{TelegramID: 42})
	require.ErrorIs(t, err, ErrConflict)
}

func TestGetUserNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetUserByTelegramID(ctx, 777)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetUserByID(ctx, 777)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetUserByReferralCode(ctx, "nosuch")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetReferralCodeOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, NewUser{TelegramID: 1})
	require.NoError(t, err)

	require.NoError(t, store.SetReferralCode(ctx, user.ID, "abc123"))

	// A second assignment must not overwrite the first.
	err = store.SetReferralCode(ctx, user.ID, "zzz999")
	require.ErrorIs(t, err, ErrConflict)

	got, err := store.GetUserByReferralCode(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestSetReferralCodeCollision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateUser(ctx, NewUser{TelegramID: 1})
	require.NoError(t, err)
	second, err := store.CreateUser(ctx, NewUser{TelegramID: 2})
	require.NoError(t, err)

	require.NoError(t, store.SetReferralCode(ctx, first.ID, "same01"))
	err = store.SetReferralCode(ctx, second.ID, "same01")
	require.ErrorIs(t, err, ErrConflict)
}

func TestSetReferralCodeUnknownUser(t *testing.T) {
	store := newTestStore(t)

	err := store.SetReferralCode(context.Background(), 9999, "abc123")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, NewUser{TelegramID: 1, Username: "old"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateProfile(ctx, user.ID, "fresh", "New", "Name"))

	got, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "fresh", got.Username)
	require.Equal(t, "New", got.FirstName)
	require.Equal(t, "Name", got.LastName)
}

func TestDeactivateUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, NewUser{TelegramID: 1})
	require.NoError(t, err)

	require.NoError(t, store.DeactivateUser(ctx, user.ID))

	got, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.ErrorIs(t, store.DeactivateUser(ctx, 9999), ErrNotFound)
}

func TestReferralsPairUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	referrer, err := store.CreateUser(ctx, NewUser{TelegramID: 1})
	require.NoError(t, err)
	referred, err := store.CreateUser(ctx, NewUser{TelegramID: 2})
	require.NoError(t, err)

	rec, err := store.CreateReferral(ctx, referrer.ID, referred.ID)
	require.NoError(t, err)
	require.Equal(t, referrer.ID, rec.ReferrerID)
	require.Equal(t, referred.ID, rec.ReferredID)
	require.False(t, rec.CreatedAt.IsZero())

	_, err = store.CreateReferral(ctx, referrer.ID, referred.ID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestReferralCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	referrer, err := store.CreateUser(ctx, NewUser{TelegramID: 1})
	require.NoError(t, err)

	for i := int64(2); i <= 4; i++ {
		u, err := store.CreateUser(ctx, NewUser{TelegramID: i})
		require.NoError(t, err)
		_, err = store.CreateReferral(ctx, referrer.ID, u.ID)
		require.NoError(t, err)
	}

	count, err := store.CountReferrals(ctx, referrer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	list, err := store.ListReferrals(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	total, err := store.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), total)
}

func TestReferredByAtCreation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	referrer, err := store.CreateUser(ctx, NewUser{TelegramID: 1})
	require.NoError(t, err)

	referred, err := store.CreateUser(ctx, NewUser{TelegramID: 2, ReferredBy: referrer.ID})
	require.NoError(t, err)
	require.Equal(t, referrer.ID, referred.ReferredBy)
}
