package subscription

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier is the entitlement class of an account.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

func (t Tier) Valid() bool { return t == TierFree || t == TierPaid }

func (t Tier) String() string { return string(t) }

// Money is an amount in the smallest currency unit.
type Money struct {
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"` // ISO 4217
}

func (m Money) String() string { return fmt.Sprintf("%d %s", m.Amount, m.Currency) }

// Plan holds the entitlements and pricing of a tier.
type Plan struct {
	Tier   Tier
	Name   string
	Model  string // generation model identifier
	Quota  int    // credits granted per period; for free, granted once
	Price  Money
	Period time.Duration // zero for free
}

// Catalog maps each tier to its plan. It is an immutable value and safe to
// share between goroutines.
type Catalog struct {
	free Plan
	paid Plan
}

// Default production values.
const (
	DefaultFreeQuota  = 3
	DefaultPaidQuota  = 10
	DefaultPaidPrice  = 3900
	DefaultCurrency   = "KRW"
	DefaultPaidPeriod = 30 * 24 * time.Hour
	DefaultFreeModel  = "gemini-2.5-flash"
	DefaultPaidModel  = "gemini-2.5-pro"
)

// DefaultCatalog returns the built-in tier configuration.
func DefaultCatalog() Catalog {
	c, err := NewCatalog(
		Plan{Tier: TierFree, Name: "Free", Model: DefaultFreeModel, Quota: DefaultFreeQuota},
		Plan{
			Tier:   TierPaid,
			Name:   "Premium",
			Model:  DefaultPaidModel,
			Quota:  DefaultPaidQuota,
			Price:  Money{Amount: DefaultPaidPrice, Currency: DefaultCurrency},
			Period: DefaultPaidPeriod,
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog validates plans and returns a Catalog. Exactly one free and one
// paid plan are required.
func NewCatalog(plans ...Plan) (Catalog, error) {
	var c Catalog
	var haveFree, havePaid bool
	for _, p := range plans {
		if err := p.validate(); err != nil {
			return Catalog{}, err
		}
		switch p.Tier {
		case TierFree:
			if haveFree {
				return Catalog{}, errors.Join(ErrInvalidCatalog, errors.New("duplicate free plan"))
			}
			c.free, haveFree = p, true
		case TierPaid:
			if havePaid {
				return Catalog{}, errors.Join(ErrInvalidCatalog, errors.New("duplicate paid plan"))
			}
			c.paid, havePaid = p, true
		}
	}
	if !haveFree || !havePaid {
		return Catalog{}, errors.Join(ErrInvalidCatalog, errors.New("both free and paid plans are required"))
	}
	return c, nil
}

func (p Plan) validate() error {
	fail := func(msg string) error {
		return errors.Join(ErrInvalidCatalog, fmt.Errorf("%s plan: %s", p.Tier, msg))
	}
	switch {
	case !p.Tier.Valid():
		return fail("unknown tier")
	case p.Model == "":
		return fail("model is required")
	case p.Quota < 0:
		return fail("quota must not be negative")
	}
	if p.Tier == TierFree {
		if p.Price.Amount != 0 || p.Period != 0 {
			return fail("free plan has no price or period")
		}
		return nil
	}
	switch {
	case p.Period <= 0:
		return fail("period must be positive")
	case p.Price.Amount <= 0:
		return fail("price must be positive")
	case p.Price.Currency == "":
		return fail("currency is required")
	}
	return nil
}

// Plan returns the plan for t. Unknown tiers resolve to the free plan.
func (c Catalog) Plan(t Tier) Plan {
	if t == TierPaid {
		return c.paid
	}
	return c.free
}

func (c Catalog) Free() Plan { return c.free }

func (c Catalog) Paid() Plan { return c.paid }

// Quota returns the credit allowance of t.
func (c Catalog) Quota(t Tier) int { return c.Plan(t).Quota }

// Model returns the generation model of t.
func (c Catalog) Model(t Tier) string { return c.Plan(t).Model }

type catalogFile struct {
	Plans []struct {
		Tier       Tier   `yaml:"tier"`
		Name       string `yaml:"name"`
		Model      string `yaml:"model"`
		Quota      int    `yaml:"quota"`
		Price      Money  `yaml:"price"`
		PeriodDays int    `yaml:"period_days"`
	} `yaml:"plans"`
}

// LoadCatalog decodes a YAML catalog:
//
//	plans:
//	  - tier: free
//	    model: gemini-2.5-flash
//	    quota: 3
//	  - tier: paid
//	    model: gemini-2.5-pro
//	    quota: 10
//	    price: {amount: 3900, currency: KRW}
//	    period_days: 30
func LoadCatalog(r io.Reader) (Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Catalog{}, errors.Join(ErrInvalidCatalog, err)
	}
	plans := make([]Plan, 0, len(f.Plans))
	for _, p := range f.Plans {
		plans = append(plans, Plan{
			Tier:   p.Tier,
			Name:   p.Name,
			Model:  p.Model,
			Quota:  p.Quota,
			Price:  p.Price,
			Period: time.Duration(p.PeriodDays) * 24 * time.Hour,
		})
	}
	return NewCatalog(plans...)
}
