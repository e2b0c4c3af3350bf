package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dripbot/core/logger"
	"dripbot/storage"
)

const componentReferrals = "service.referrals"

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrCodeExhausted is returned when every generation attempt collided
// with an existing code. At reasonable code lengths this indicates the
// code space is nearly full and the length should be raised.
var ErrCodeExhausted = errors.New("referrals: code space exhausted")

// ReferralOptions tunes code generation and caching. Zero values take
// the defaults.
type ReferralOptions struct {
	CodeLength  int           // default 6
	MaxAttempts int           // default 5
	CacheTTL    time.Duration // default 1h
}

func (o ReferralOptions) withDefaults() ReferralOptions {
	if o.CodeLength <= 0 {
		o.CodeLength = 6
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	return o
}

type cachedCode struct {
	code    string
	expires time.Time
}

// Referrals assigns referral codes, resolves inbound codes to their
// owners and records referral events.
type Referrals struct {
	store *storage.Store
	opts  ReferralOptions

	mu    sync.Mutex
	cache map[int64]cachedCode
}

// NewReferrals builds the referral service over the given store.
func NewReferrals(store *storage.Store, opts ReferralOptions) *Referrals {
	return &Referrals{
		store: store,
		opts:  opts.withDefaults(),
		cache: make(map[int64]cachedCode),
	}
}

// EnsureCode returns the user's referral code, generating and persisting
// one on first request. Codes are immutable once assigned, so repeated
// calls always return the same value.
func (s *Referrals) EnsureCode(ctx context.Context, userID int64) (string, error) {
	if code, ok := s.cachedFor(userID); ok {
		return code, nil
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("referrals: get user id=%d: %w", userID, err)
	}
	if user.ReferralCode != "" {
		s.remember(userID, user.ReferralCode)
		return user.ReferralCode, nil
	}

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		code, err := randomCode(s.opts.CodeLength)
		if err != nil {
			return "", fmt.Errorf("referrals: generate code: %w", err)
		}

		err = s.store.SetReferralCode(ctx, userID, code)
		if err == nil {
			logger.Info(ctx, componentReferrals, "code_assigned",
				slog.Int64("user_id", userID),
				slog.Int("code_len", len(code)),
				slog.Int("attempt", attempt),
			)
			s.remember(userID, code)
			return code, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return "", fmt.Errorf("referrals: assign code user_id=%d: %w", userID, err)
		}

		// Conflict is either a code collision or a concurrent assignment.
		// Re-read to tell the two apart.
		user, getErr := s.store.GetUserByID(ctx, userID)
		if getErr != nil {
			return "", fmt.Errorf("referrals: re-read user id=%d: %w", userID, getErr)
		}
		if user.ReferralCode != "" {
			s.remember(userID, user.ReferralCode)
			return user.ReferralCode, nil
		}
		logger.Debug(ctx, componentReferrals, "code_collision",
			slog.Int64("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}

	return "", fmt.Errorf("referrals: user_id=%d after %d attempts: %w", userID, s.opts.MaxAttempts, ErrCodeExhausted)
}

// Resolve maps a referral code to its owner. Unknown codes return
// storage.ErrNotFound.
func (s *Referrals) Resolve(ctx context.Context, code string) (*storage.User, error) {
	if code == "" {
		return nil, storage.ErrNotFound
	}
	return s.store.GetUserByReferralCode(ctx, code)
}

// Record stores a referral event. A repeated (referrer, referred) pair
// is surfaced as storage.ErrConflict for the caller to ignore.
func (s *Referrals) Record(ctx context.Context, referrerID, referredID int64) error {
	if referrerID == referredID {
		return fmt.Errorf("referrals: self-referral user_id=%d: %w", referrerID, storage.ErrConflict)
	}
	if _, err := s.store.CreateReferral(ctx, referrerID, referredID); err != nil {
		return err
	}
	logger.Info(ctx, componentReferrals, "referral_recorded",
		slog.Int64("referrer_id", referrerID),
		slog.Int64("referred_id", referredID),
	)
	return nil
}

// Count reports how many referrals a user has brought in.
func (s *Referrals) Count(ctx context.Context, referrerID int64) (int64, error) {
	return s.store.CountReferrals(ctx, referrerID)
}

// List returns the user's referral records, newest first.
func (s *Referrals) List(ctx context.Context, referrerID int64) ([]*storage.Referral, error) {
	return s.store.ListReferrals(ctx, referrerID)
}

func (s *Referrals) cachedFor(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[userID]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(s.cache, userID)
		return "", false
	}
	return entry.code, true
}

func (s *Referrals) remember(userID int64, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[userID] = cachedCode{code: code, expires: time.Now().Add(s.opts.CacheTTL)}
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
