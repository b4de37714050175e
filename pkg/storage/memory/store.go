package memory

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

// Store keeps everything in process memory behind one mutex. It implements
// subscription.Store and quota.Store with the same semantics as the
// Postgres store and is used in tests and local development.
type Store struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*subscription.Account
	byIdentity   map[string]uuid.UUID
	payments     map[string]*subscription.Payment
	tokens       map[uuid.UUID]*subscription.BillingToken
	reservations map[uuid.UUID]*quota.Reservation
	usage        map[uuid.UUID]*quota.UsageRecord
	catalog      subscription.Catalog
}

// Option configures a Store.
type Option func(*Store)

// WithCatalog sets the tier quotas accounts are validated against. Defaults
// to subscription.DefaultCatalog.
func WithCatalog(c subscription.Catalog) Option {
	return func(s *Store) { s.catalog = c }
}

var (
	_ subscription.Store = (*Store)(nil)
	_ quota.Store        = (*Store)(nil)
)

func New(opts ...Option) *Store {
	s := &Store{
		accounts:     make(map[uuid.UUID]*subscription.Account),
		byIdentity:   make(map[string]uuid.UUID),
		payments:     make(map[string]*subscription.Payment),
		tokens:       make(map[uuid.UUID]*subscription.BillingToken),
		reservations: make(map[uuid.UUID]*quota.Reservation),
		usage:        make(map[uuid.UUID]*quota.UsageRecord),
		catalog:      subscription.DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*subscription.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, subscription.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *Store) GetAccountByIdentity(_ context.Context, identityRef string) (*subscription.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIdentity[identityRef]
	if !ok {
		return nil, subscription.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Store) CreateAccount(_ context.Context, acc *subscription.Account) error {
	if err := acc.Validate(s.catalog); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIdentity[acc.IdentityRef]; ok {
		return subscription.ErrAccountAlreadyExists
	}
	if _, ok := s.accounts[acc.ID]; ok {
		return subscription.ErrAccountAlreadyExists
	}
	s.accounts[acc.ID] = acc.Clone()
	s.byIdentity[acc.IdentityRef] = acc.ID
	return nil
}

func (s *Store) DeleteAccountByIdentity(_ context.Context, identityRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIdentity[identityRef]
	if !ok {
		return subscription.ErrAccountNotFound
	}
	delete(s.byIdentity, identityRef)
	delete(s.accounts, id)
	delete(s.tokens, id)
	for k, p := range s.payments {
		if p.UserID == id {
			delete(s.payments, k)
		}
	}
	for k, r := range s.reservations {
		if r.UserID == id {
			delete(s.reservations, k)
		}
	}
	for k, u := range s.usage {
		if u.UserID == id {
			delete(s.usage, k)
		}
	}
	return nil
}

func (s *Store) UpdateAccount(_ context.Context, acc *subscription.Account, expectedVersion int64) error {
	if err := acc.Validate(s.catalog); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(acc, expectedVersion)
}

func (s *Store) updateLocked(acc *subscription.Account, expectedVersion int64) error {
	cur, ok := s.accounts[acc.ID]
	if !ok {
		return subscription.ErrAccountNotFound
	}
	if cur.Version != expectedVersion {
		return subscription.ErrConflict
	}
	acc.Version = expectedVersion + 1
	s.accounts[acc.ID] = acc.Clone()
	return nil
}

func (s *Store) ListDueForRenewal(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]*subscription.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*subscription.Account
	for _, acc := range s.accounts {
		if acc.Tier != subscription.TierPaid || acc.PeriodEndsAt == nil || acc.PeriodEndsAt.After(now) {
			continue
		}
		if bytes.Compare(acc.ID[:], after[:]) <= 0 {
			continue
		}
		due = append(due, acc.Clone())
	}
	slices.SortFunc(due, func(a, b *subscription.Account) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) CommitPayment(_ context.Context, c subscription.PaymentCommit) error {
	if c.Account != nil {
		if err := c.Account.Validate(s.catalog); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[c.Payment.OrderID]; ok {
		return subscription.ErrDuplicatePayment
	}
	if _, ok := s.accounts[c.Payment.UserID]; !ok {
		return subscription.ErrAccountNotFound
	}
	if c.Account != nil {
		if err := s.updateLocked(c.Account, c.ExpectedVersion); err != nil {
			return err
		}
	}
	p := c.Payment
	s.payments[p.OrderID] = &p
	if c.Token != nil {
		t := *c.Token
		s.tokens[t.UserID] = &t
	}
	return nil
}

func (s *Store) GetPayment(_ context.Context, orderID string) (*subscription.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil, subscription.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetBillingToken(_ context.Context, userID uuid.UUID) (*subscription.BillingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[userID]
	if !ok {
		return nil, subscription.ErrBillingTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListPayments(_ context.Context, userID uuid.UUID) ([]*subscription.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*subscription.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *subscription.Payment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) ReserveCredit(_ context.Context, res *quota.Reservation, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[res.UserID]
	if !ok {
		return subscription.ErrAccountNotFound
	}
	active := acc.Tier == subscription.TierFree || (acc.PeriodEndsAt != nil && acc.PeriodEndsAt.After(now))
	if acc.CreditsRemaining < 1 || !active {
		return quota.ErrQuotaExhausted
	}
	acc.CreditsRemaining--
	acc.Version++
	acc.UpdatedAt = now

	res.Tier = acc.Tier
	res.PeriodEndsAt = nil
	if acc.PeriodEndsAt != nil {
		t := *acc.PeriodEndsAt
		res.PeriodEndsAt = &t
	}
	res.State = quota.ReservationPending
	cp := *res
	s.reservations[res.ID] = &cp
	return nil
}

func (s *Store) CommitReservation(_ context.Context, res *quota.Reservation, usage *quota.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.reservations[res.ID]
	if !ok {
		return quota.ErrReservationNotFound
	}
	if stored.State != quota.ReservationPending {
		return quota.ErrReservationNotPending
	}
	stored.State = quota.ReservationCommitted
	u := *usage
	s.usage[u.ID] = &u
	return nil
}

func (s *Store) ReleaseReservation(_ context.Context, res *quota.Reservation, maxCredits int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.reservations[res.ID]
	if !ok {
		return false, quota.ErrReservationNotFound
	}
	if stored.State != quota.ReservationPending {
		return false, quota.ErrReservationNotPending
	}
	stored.State = quota.ReservationReleased

	acc, ok := s.accounts[stored.UserID]
	if !ok || acc.Tier != stored.Tier || !samePeriod(acc.PeriodEndsAt, stored.PeriodEndsAt) {
		return false, nil
	}
	if acc.CreditsRemaining >= maxCredits {
		return false, nil
	}
	acc.CreditsRemaining++
	acc.Version++
	return true, nil
}

func (s *Store) ListStaleReservations(_ context.Context, before time.Time, limit int) ([]*quota.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*quota.Reservation
	for _, r := range s.reservations {
		if r.State == quota.ReservationPending && r.CreatedAt.Before(before) {
			cp := *r
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *quota.Reservation) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListUsage(_ context.Context, userID uuid.UUID, opts quota.ListOptions) ([]*quota.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(opts.Search)
	var out []*quota.UsageRecord
	for _, u := range s.usage {
		if u.UserID != userID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Subject.Name), search) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *quota.UsageRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) GetUsage(_ context.Context, userID, usageID uuid.UUID) (*quota.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[usageID]
	if !ok || u.UserID != userID {
		return nil, quota.ErrUsageNotFound
	}
	cp := *u
	return &cp, nil
}

func samePeriod(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
