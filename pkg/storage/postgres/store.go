package postgres

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/saju/pkg/pg"
	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", cfg, log)
}

// Store implements subscription.Store and quota.Store on PostgreSQL. Every
// guard is part of the SQL statement, so correctness does not depend on
// in-process locking and holds across replicas.
type Store struct {
	pool    *pgxpool.Pool
	catalog subscription.Catalog
}

// Option configures a Store.
type Option func(*Store)

// WithCatalog sets the tier quotas accounts are validated against before
// writes. Defaults to subscription.DefaultCatalog.
func WithCatalog(c subscription.Catalog) Option {
	return func(s *Store) { s.catalog = c }
}

var (
	_ subscription.Store = (*Store)(nil)
	_ quota.Store        = (*Store)(nil)
)

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	if pool == nil {
		panic("postgres: pool is required")
	}
	s := &Store{pool: pool, catalog: subscription.DefaultCatalog()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const accountColumns = `id, identity_ref, email, display_name, tier, period_ends_at, cancelled_at,
	credits_remaining, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*subscription.Account, error) {
	var a subscription.Account
	err := row.Scan(&a.ID, &a.IdentityRef, &a.Email, &a.DisplayName, &a.Tier, &a.PeriodEndsAt, &a.CancelledAt,
		&a.CreditsRemaining, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrAccountNotFound
		}
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.PeriodEndsAt = utcPtr(a.PeriodEndsAt)
	a.CancelledAt = utcPtr(a.CancelledAt)
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*subscription.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Store) GetAccountByIdentity(ctx context.Context, identityRef string) (*subscription.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE identity_ref = $1`, identityRef))
}

func (s *Store) CreateAccount(ctx context.Context, acc *subscription.Account) error {
	if err := acc.Validate(s.catalog); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		acc.ID, acc.IdentityRef, acc.Email, acc.DisplayName, acc.Tier, acc.PeriodEndsAt, acc.CancelledAt,
		acc.CreditsRemaining, acc.Version, acc.CreatedAt, acc.UpdatedAt,
	)
	switch {
	case pg.IsDuplicateKeyError(err):
		return subscription.ErrAccountAlreadyExists
	case pg.IsCheckViolationError(err):
		return errors.Join(subscription.ErrInvalidAccount, err)
	}
	return err
}

func (s *Store) DeleteAccountByIdentity(ctx context.Context, identityRef string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE identity_ref = $1`, identityRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrAccountNotFound
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, acc *subscription.Account, expectedVersion int64) error {
	if err := acc.Validate(s.catalog); err != nil {
		return err
	}
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return updateAccount(ctx, tx, acc, expectedVersion)
	})
}

func updateAccount(ctx context.Context, tx pgx.Tx, acc *subscription.Account, expectedVersion int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET email = $2, display_name = $3, tier = $4, period_ends_at = $5, cancelled_at = $6,
			credits_remaining = $7, updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $9`,
		acc.ID, acc.Email, acc.DisplayName, acc.Tier, acc.PeriodEndsAt, acc.CancelledAt,
		acc.CreditsRemaining, acc.UpdatedAt, expectedVersion,
	)
	if err != nil {
		if pg.IsCheckViolationError(err) {
			return errors.Join(subscription.ErrInvalidAccount, err)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, acc.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return subscription.ErrAccountNotFound
		}
		return subscription.ErrConflict
	}
	acc.Version = expectedVersion + 1
	return nil
}

func (s *Store) ListDueForRenewal(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]*subscription.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE tier = 'paid' AND period_ends_at <= $1 AND id > $2
		ORDER BY id
		LIMIT $3`, now, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*subscription.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *Store) CommitPayment(ctx context.Context, c subscription.PaymentCommit) error {
	if c.Account != nil {
		if err := c.Account.Validate(s.catalog); err != nil {
			return err
		}
	}
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		p := c.Payment
		_, err := tx.Exec(ctx, `
			INSERT INTO payments (id, account_id, order_id, payment_ref, kind, amount, currency, outcome, refund_due, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.UserID, p.OrderID, p.PaymentRef, p.Kind, p.Amount.Amount, p.Amount.Currency, p.Outcome, p.RefundDue, p.CreatedAt,
		)
		switch {
		case pg.IsDuplicateKeyError(err, "payments_order_id_key"):
			return subscription.ErrDuplicatePayment
		case pg.IsForeignKeyViolationError(err):
			return subscription.ErrAccountNotFound
		case err != nil:
			return err
		}

		if c.Account != nil {
			if err := updateAccount(ctx, tx, c.Account, c.ExpectedVersion); err != nil {
				return err
			}
		}
		if c.Token != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO billing_tokens (account_id, token, updated_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (account_id) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at`,
				c.Token.UserID, c.Token.Token, c.Token.UpdatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const paymentColumns = `id, account_id, order_id, payment_ref, kind, amount, currency, outcome, refund_due, created_at`

func scanPayment(row pgx.Row) (*subscription.Payment, error) {
	var p subscription.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.PaymentRef, &p.Kind, &p.Amount.Amount, &p.Amount.Currency, &p.Outcome, &p.RefundDue, &p.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrPaymentNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) GetPayment(ctx context.Context, orderID string) (*subscription.Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
}

func (s *Store) ListPayments(ctx context.Context, userID uuid.UUID) ([]*subscription.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE account_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*subscription.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetBillingToken(ctx context.Context, userID uuid.UUID) (*subscription.BillingToken, error) {
	t := subscription.BillingToken{UserID: userID}
	err := s.pool.QueryRow(ctx, `SELECT token, updated_at FROM billing_tokens WHERE account_id = $1`, userID).
		Scan(&t.Token, &t.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrBillingTokenNotFound
		}
		return nil, err
	}
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
