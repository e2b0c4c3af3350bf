package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dripbot/storage"
)

func newReferralFixture(t *testing.T, opts ReferralOptions) (*Users, *Referrals) {
	t.Helper()
	store := newTestStore(t)
	return NewUsers(store), NewReferrals(store, opts)
}

func TestEnsureCodeIdempotent(t *testing.T) {
	users, referrals := newReferralFixture(t, ReferralOptions{})
	ctx := context.Background()

	user, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)

	code, err := referrals.EnsureCode(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, code, 6)

	again, err := referrals.EnsureCode(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, code, again)
}

func TestEnsureCodeSurvivesCacheExpiry(t *testing.T) {
	users, referrals := newReferralFixture(t, ReferralOptions{CacheTTL: time.Nanosecond})
	ctx := context.Background()

	user, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)

	code, err := referrals.EnsureCode(ctx, user.ID)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	again, err := referrals.EnsureCode(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, code, again, "expired cache must fall back to the stored code")
}

func TestEnsureCodeUniquePerUser(t *testing.T) {
	users, referrals := newReferralFixture(t, ReferralOptions{CodeLength: 8})
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := int64(1); i <= 20; i++ {
		user, _, err := users.GetOrCreate(ctx, Profile{TelegramID: i}, 0)
		require.NoError(t, err)

		code, err := referrals.EnsureCode(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, code, 8)

		_, dup := seen[code]
		require.False(t, dup, "code %q assigned twice", code)
		seen[code] = struct{}{}
	}
}

func TestEnsureCodeUnknownUser(t *testing.T) {
	_, referrals := newReferralFixture(t, ReferralOptions{})

	_, err := referrals.EnsureCode(context.Background(), 12345)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResolve(t *testing.T) {
	users, referrals := newReferralFixture(t, ReferralOptions{})
	ctx := context.Background()

	user, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)

	code, err := referrals.EnsureCode(ctx, user.ID)
	require.NoError(t, err)

	owner, err := referrals.Resolve(ctx, code)
	require.NoError(t, err)
	require.Equal(t, user.ID, owner.ID)

	_, err = referrals.Resolve(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = referrals.Resolve(ctx, "")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordAndCount(t *testing.T) {
	users, referrals := newReferralFixture(t, ReferralOptions{})
	ctx := context.Background()

	referrer, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)

	for i := int64(2); i <= 3; i++ {
		referred, _, err := users.GetOrCreate(ctx, Profile{TelegramID: i}, referrer.ID)
		require.NoError(t, err)
		require.NoError(t, referrals.Record(ctx, referrer.ID, referred.ID))
	}

	count, err := referrals.Count(ctx, referrer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestListNewestFirst(t *testing.T) {
	users, referrals := newReferralFixture(t, ReferralOptions{})
	ctx := context.Background()

	referrer, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)

	var lastReferred int64
	for i := int64(2); i <= 4; i++ {
		referred, _, err := users.GetOrCreate(ctx, Profile{TelegramID: i}, referrer.ID)
		require.NoError(t, err)
		require.NoError(t, referrals.Record(ctx, referrer.ID, referred.ID))
		lastReferred = referred.ID
	}

	list, err := referrals.List(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, lastReferred, list[0].ReferredID)
	for _, ref := range list {
		require.Equal(t, referrer.ID, ref.ReferrerID)
		require.False(t, ref.CreatedAt.IsZero())
	}
}

func TestRecordRejectsDuplicatesAndSelf(t *testing.T) {
	users, referrals := newReferralFixture(t, ReferralOptions{})
	ctx := context.Background()

	referrer, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 1}, 0)
	require.NoError(t, err)
	referred, _, err := users.GetOrCreate(ctx, Profile{TelegramID: 2}, referrer.ID)
	require.NoError(t, err)

	require.NoError(t, referrals.Record(ctx, referrer.ID, referred.ID))
	require.ErrorIs(t, referrals.Record(ctx, referrer.ID, referred.ID), storage.ErrConflict)
	require.ErrorIs(t, referrals.Record(ctx, referrer.ID, referrer.ID), storage.ErrConflict)
}

func TestRandomCodeAlphabet(t *testing.T) {
	for _, length := range []int{1, 6, 16} {
		code, err := randomCode(length)
		require.NoError(t, err)
		require.Len(t, code, length)
		for _, r := range code {
			require.Contains(t, codeAlphabet, fmt.Sprintf("%c", r))
		}
	}
}
