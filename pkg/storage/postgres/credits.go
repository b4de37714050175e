package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/saju/pkg/pg"
	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

func (s *Store) ReserveCredit(ctx context.Context, res *quota.Reservation, now time.Time) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			tier      subscription.Tier
			periodEnd *time.Time
		)
		err := tx.QueryRow(ctx, `
			UPDATE accounts
			SET credits_remaining = credits_remaining - 1, version = version + 1, updated_at = $2
			WHERE id = $1
				AND credits_remaining >= 1
				AND (tier = 'free' OR period_ends_at > $2)
			RETURNING tier, period_ends_at`, res.UserID, now).Scan(&tier, &periodEnd)
		if pg.IsNotFoundError(err) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, res.UserID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return subscription.ErrAccountNotFound
			}
			return quota.ErrQuotaExhausted
		}
		if err != nil {
			return err
		}

		res.Tier = tier
		res.PeriodEndsAt = utcPtr(periodEnd)
		res.State = quota.ReservationPending
		_, err = tx.Exec(ctx, `
			INSERT INTO credit_reservations (id, account_id, tier, period_ends_at, state, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			res.ID, res.UserID, res.Tier, res.PeriodEndsAt, res.State, res.CreatedAt)
		return err
	})
}

// settle moves a pending reservation to state, reporting why it could not.
func settle(ctx context.Context, tx pgx.Tx, id uuid.UUID, state quota.ReservationState, now time.Time) (*quota.Reservation, error) {
	r := quota.Reservation{ID: id, State: state}
	err := tx.QueryRow(ctx, `
		UPDATE credit_reservations SET state = $2, settled_at = $3
		WHERE id = $1 AND state = 'pending'
		RETURNING account_id, tier, period_ends_at, created_at`, id, state, now).
		Scan(&r.UserID, &r.Tier, &r.PeriodEndsAt, &r.CreatedAt)
	if pg.IsNotFoundError(err) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credit_reservations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, quota.ErrReservationNotFound
		}
		return nil, quota.ErrReservationNotPending
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) CommitReservation(ctx context.Context, res *quota.Reservation, usage *quota.UsageRecord) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := settle(ctx, tx, res.ID, quota.ReservationCommitted, usage.CreatedAt); err != nil {
			return err
		}
		sub := usage.Subject
		_, err := tx.Exec(ctx, `
			INSERT INTO usage_records (id, account_id, reservation_id, name, birth_date, birth_time, is_lunar,
				gender, time_zone, note, result, tier, model, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			usage.ID, usage.UserID, usage.ReservationID, sub.Name, sub.BirthDate, sub.BirthTime, sub.IsLunar,
			sub.Gender, sub.TimeZone, sub.Note, usage.Result, usage.Tier, usage.Model, usage.CreatedAt)
		return err
	})
}

func (s *Store) ReleaseReservation(ctx context.Context, res *quota.Reservation, maxCredits int) (bool, error) {
	var restored bool
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		stored, err := settle(ctx, tx, res.ID, quota.ReservationReleased, time.Now().UTC())
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET credits_remaining = credits_remaining + 1, version = version + 1
			WHERE id = $1
				AND tier = $2
				AND period_ends_at IS NOT DISTINCT FROM $3
				AND credits_remaining < $4`,
			stored.UserID, stored.Tier, stored.PeriodEndsAt, maxCredits)
		if err != nil {
			return err
		}
		restored = tag.RowsAffected() == 1
		return nil
	})
	return restored, err
}

func (s *Store) ListStaleReservations(ctx context.Context, before time.Time, limit int) ([]*quota.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, tier, period_ends_at, state, created_at
		FROM credit_reservations
		WHERE state = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*quota.Reservation
	for rows.Next() {
		var r quota.Reservation
		if err := rows.Scan(&r.ID, &r.UserID, &r.Tier, &r.PeriodEndsAt, &r.State, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.PeriodEndsAt = utcPtr(r.PeriodEndsAt)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

const usageColumns = `id, account_id, reservation_id, name, birth_date, birth_time, is_lunar,
	gender, time_zone, note, result, tier, model, created_at`

func scanUsage(row pgx.Row) (*quota.UsageRecord, error) {
	var u quota.UsageRecord
	sub := &u.Subject
	err := row.Scan(&u.ID, &u.UserID, &u.ReservationID, &sub.Name, &sub.BirthDate, &sub.BirthTime, &sub.IsLunar,
		&sub.Gender, &sub.TimeZone, &sub.Note, &u.Result, &u.Tier, &u.Model, &u.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, quota.ErrUsageNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) ListUsage(ctx context.Context, userID uuid.UUID, opts quota.ListOptions) ([]*quota.UsageRecord, error) {
	limit := any(nil)
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+usageColumns+`
		FROM usage_records
		WHERE account_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, userID, escapeLike(opts.Search), limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*quota.UsageRecord
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUsage(ctx context.Context, userID, usageID uuid.UUID) (*quota.UsageRecord, error) {
	return scanUsage(s.pool.QueryRow(ctx, `
		SELECT `+usageColumns+` FROM usage_records WHERE id = $1 AND account_id = $2`, usageID, userID))
}
