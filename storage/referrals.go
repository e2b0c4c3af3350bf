package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Referral records one use of a referral code. The (referrer, referred)
// pair is unique; rows are created once and never mutated.
type Referral struct {
	ID         int64
	ReferrerID int64
	ReferredID int64
	CreatedAt  time.Time
}

type referralRow struct {
	ID         int64 `db:"id"`
	ReferrerID int64 `db:"referrer_id"`
	ReferredID int64 `db:"referred_id"`
	CreatedAt  int64 `db:"created_at"`
}

func (r referralRow) toReferral() *Referral {
	return &Referral{
		ID:         r.ID,
		ReferrerID: r.ReferrerID,
		ReferredID: r.ReferredID,
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

// CreateReferral inserts a referral record. A duplicate pair yields
// ErrConflict and leaves the existing row in place.
func (s *Store) CreateReferral(ctx context.Context, referrerID, referredID int64) (*Referral, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, created_at)
		VALUES (?, ?, ?)`,
		referrerID, referredID, toMillis(time.Now()),
	)
	if err != nil {
		if isConstraintError(err) {
			return nil, fmt.Errorf("create referral %d->%d: %w", referrerID, referredID, ErrConflict)
		}
		return nil, fmt.Errorf("create referral: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create referral id: %w", err)
	}

	var row referralRow
	err = s.db.GetContext(ctx, &row, `
		SELECT id, referrer_id, referred_id, created_at FROM referrals WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get referral id=%d: %w", id, err)
	}
	return row.toReferral(), nil
}

// CountReferrals reports how many signups a referrer has brought in.
func (s *Store) CountReferrals(ctx context.Context, referrerID int64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM referrals WHERE referrer_id = ?`, referrerID)
	if err != nil {
		return 0, fmt.Errorf("count referrals referrer_id=%d: %w", referrerID, err)
	}
	return count, nil
}

// ListReferrals returns all referral records for a referrer, newest first.
func (s *Store) ListReferrals(ctx context.Context, referrerID int64) ([]*Referral, error) {
	var rows []referralRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, referrer_id, referred_id, created_at
		FROM referrals WHERE referrer_id = ?
		ORDER BY created_at DESC, id DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referrals referrer_id=%d: %w", referrerID, err)
	}
	out := make([]*Referral, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toReferral())
	}
	return out, nil
}
