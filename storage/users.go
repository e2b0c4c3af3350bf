package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is a persisted bot user. TelegramID is the external natural key;
// ID is the internal autoincrement identifier referenced by referrals.
type User struct {
	ID           int64
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	ReferralCode string // empty until assigned; immutable once set
	ReferredBy   int64  // internal id of the referrer, 0 when none
	IsActive     bool
	IsBlocked    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser carries the fields known at first contact.
type NewUser struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	ReferredBy int64
}

type userRow struct {
	ID           int64          `db:"id"`
	TelegramID   int64          `db:"telegram_id"`
	Username     sql.NullString `db:"username"`
	FirstName    sql.NullString `db:"first_name"`
	LastName     sql.NullString `db:"last_name"`
	ReferralCode sql.NullString `db:"referral_code"`
	ReferredBy   sql.NullInt64  `db:"referred_by"`
	IsActive     bool           `db:"is_active"`
	IsBlocked    bool           `db:"is_blocked"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

func (r userRow) toUser() *User {
	return &User{
		ID:           r.ID,
		TelegramID:   r.TelegramID,
		Username:     r.Username.String,
		FirstName:    r.FirstName.String,
		LastName:     r.LastName.String,
		ReferralCode: r.ReferralCode.String,
		ReferredBy:   r.ReferredBy.Int64,
		IsActive:     r.IsActive,
		IsBlocked:    r.IsBlocked,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

const selectUserColumns = `
	SELECT id, telegram_id, username, first_name, last_name,
	       referral_code, referred_by, is_active, is_blocked,
	       created_at, updated_at
	FROM users`

// CreateUser inserts a new user and returns the stored record. A
// duplicate telegram id yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	now := toMillis(time.Now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, referred_by, is_active, is_blocked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		nu.TelegramID,
		nullString(nu.Username),
		nullString(nu.FirstName),
		nullString(nu.LastName),
		nullInt64(nu.ReferredBy),
		now, now,
	)
	if err != nil {
		if isConstraintError(err) {
			return nil, fmt.Errorf("create user telegram_id=%d: %w", nu.TelegramID, ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID fetches a user by internal id.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, selectUserColumns+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user id=%d: %w", id, err)
	}
	return row.toUser(), nil
}

// GetUserByTelegramID fetches a user by the external Telegram id.
func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, selectUserColumns+` WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user telegram_id=%d: %w", telegramID, err)
	}
	return row.toUser(), nil
}

// GetUserByReferralCode resolves a referral code to its owner.
func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (*User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, selectUserColumns+` WHERE referral_code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by code: %w", err)
	}
	return row.toUser(), nil
}

// SetReferralCode assigns a code to a user that does not have one yet.
// A code collision returns ErrConflict; a user that already carries a
// code is left untouched and reported as ErrConflict as well, so the
// caller re-reads instead of overwriting.
func (s *Store) SetReferralCode(ctx context.Context, userID int64, code string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET referral_code = ?, updated_at = ?
		WHERE id = ? AND referral_code IS NULL`,
		code, toMillis(time.Now()), userID,
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("set referral code user_id=%d: %w", userID, ErrConflict)
		}
		return fmt.Errorf("set referral code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set referral code rows: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetUserByID(ctx, userID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("referral code already assigned user_id=%d: %w", userID, ErrConflict)
	}
	return nil
}

// UpdateProfile refreshes the display-name fields from the latest
// inbound message.
func (s *Store) UpdateProfile(ctx context.Context, userID int64, username, firstName, lastName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = ?, first_name = ?, last_name = ?, updated_at = ?
		WHERE id = ?`,
		nullString(username), nullString(firstName), nullString(lastName),
		toMillis(time.Now()), userID,
	)
	if err != nil {
		return fmt.Errorf("update profile user_id=%d: %w", userID, err)
	}
	return nil
}

// DeactivateUser soft-deletes a user; records are never hard-deleted in
// normal operation.
func (s *Store) DeactivateUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active = 0, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), userID,
	)
	if err != nil {
		return fmt.Errorf("deactivate user id=%d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate user rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers reports the total number of user records.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
