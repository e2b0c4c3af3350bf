// Package service holds the domain services sitting between the bot
// handlers and the storage layer. Services own validation, logging and
// the race handling around concurrent first contact.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dripbot/core/logger"
	"dripbot/storage"
	"dripbot/validate"
)

const componentUsers = "service.users"

// Profile carries the identity fields Telegram attaches to an update.
// Username is optional; when present it must look like a real handle.
type Profile struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	Username   string `json:"username" validate:"omitempty,tg_username"`
	FirstName  string `json:"first_name" validate:"omitempty,max=128"`
	LastName   string `json:"last_name" validate:"omitempty,max=128"`
}

// Users manages user records.
type Users struct {
	store *storage.Store
}

// NewUsers builds the user service over the given store.
func NewUsers(store *storage.Store) *Users {
	return &Users{store: store}
}

// GetOrCreate returns the user for the profile, creating it on first
// contact. The boolean reports whether the record was newly created.
// A concurrent create on the same telegram id is resolved by re-reading.
func (s *Users) GetOrCreate(ctx context.Context, p Profile, referredBy int64) (*storage.User, bool, error) {
	if ferrs := validate.Struct(p); ferrs != nil {
		return nil, false, fmt.Errorf("users: invalid profile: %w", ferrs)
	}

	user, err := s.store.GetUserByTelegramID(ctx, p.TelegramID)
	if err == nil {
		if user.Username != p.Username || user.FirstName != p.FirstName || user.LastName != p.LastName {
			if upErr := s.store.UpdateProfile(ctx, user.ID, p.Username, p.FirstName, p.LastName); upErr != nil {
				// Stale display names are tolerable; the record itself is intact.
				logger.Warn(ctx, componentUsers, "profile_refresh_failed",
					slog.Int64("telegram_id", p.TelegramID),
					slog.String("err", upErr.Error()),
				)
			} else {
				user.Username = p.Username
				user.FirstName = p.FirstName
				user.LastName = p.LastName
			}
		}
		return user, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("users: lookup telegram_id=%d: %w", p.TelegramID, err)
	}

	user, err = s.store.CreateUser(ctx, storage.NewUser{
		TelegramID: p.TelegramID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		ReferredBy: referredBy,
	})
	if errors.Is(err, storage.ErrConflict) {
		// Lost the race to a concurrent first message; the row exists now.
		user, err = s.store.GetUserByTelegramID(ctx, p.TelegramID)
		if err != nil {
			return nil, false, fmt.Errorf("users: re-read after conflict telegram_id=%d: %w", p.TelegramID, err)
		}
		return user, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("users: create telegram_id=%d: %w", p.TelegramID, err)
	}

	logger.Info(ctx, componentUsers, "user_created",
		slog.Int64("telegram_id", user.TelegramID),
		slog.Int64("user_id", user.ID),
		slog.Int64("referrer_id", referredBy),
	)
	return user, true, nil
}

// GetByTelegramID resolves a Telegram id to a user record. Satisfies
// the lookup shape the transport helpers expect.
func (s *Users) GetUserByTelegramID(ctx context.Context, telegramID int64) (*storage.User, error) {
	return s.store.GetUserByTelegramID(ctx, telegramID)
}

// Deactivate soft-deletes a user, typically after the bot is blocked.
func (s *Users) Deactivate(ctx context.Context, userID int64) error {
	if err := s.store.DeactivateUser(ctx, userID); err != nil {
		return fmt.Errorf("users: deactivate id=%d: %w", userID, err)
	}
	logger.Info(ctx, componentUsers, "user_deactivated", slog.Int64("user_id", userID))
	return nil
}

// Count reports the total number of registered users.
func (s *Users) Count(ctx context.Context) (int64, error) {
	return s.store.CountUsers(ctx)
}
