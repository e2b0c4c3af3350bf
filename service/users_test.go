package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dripbot/core/database"
	"dripbot/core/logger"
	"dripbot/storage"
)

func newTestStore(t *testing.T) *storage.Store {
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
	return storage.New(db)
}

func TestGetOrCreateFirstContact(t *testing.T) {
	users := NewUsers(newTestStore(t))
	ctx := context.Background()

	profile := Profile{TelegramID: 100, Username: "bob_the", FirstName: "Bob"}

	user, created, err := users.GetOrCreate(ctx, profile, 0)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(100), user.TelegramID)

	again, created, err := users.GetOrCreate(ctx, profile, 0)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, user.ID, again.ID)
}

func TestGetOrCreateRefreshesProfile(t *testing.T) {
	users := NewUsers(newTestStore(t))
	ctx := context.Background()

	_, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 100, Username: "old_handle"}, 0)
	require.NoError(t, err)

	user, created, err := users.GetOrCreate(ctx, Profile{TelegramID: 100, Username: "new_handle"}, 0)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "new_handle", user.Username)

	persisted, err := users.GetUserByTelegramID(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, "new_handle", persisted.Username)
}

func TestGetOrCreateKeepsReferrer(t *testing.T) {
	users := NewUsers(newTestStore(t))
	ctx := context.Background()

	referrer, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)

	referred, created, err := users.GetOrCreate(ctx, Profile{TelegramID: 2}, referrer.ID)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, referrer.ID, referred.ReferredBy)

	// A later call with a different referrer must not rewrite attribution.
	again, created, err := users.GetOrCreate(ctx, Profile{TelegramID: 2}, 999)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, referrer.ID, again.ReferredBy)
}

func TestGetOrCreateRejectsInvalidProfile(t *testing.T) {
	users := NewUsers(newTestStore(t))
	ctx := context.Background()

	_, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 0}, 0)
	require.Error(t, err)

	_, _, err = users.GetOrCreate(ctx, Profile{TelegramID: 5, Username: "x"}, 0)
	require.Error(t, err, "too-short username must fail validation")
}

func TestDeactivateAndCount(t *testing.T) {
	users := NewUsers(newTestStore(t))
	ctx := context.Background()

	user, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)

	require.NoError(t, users.Deactivate(ctx, user.ID))

	count, err := users.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
