package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey string `env:"STRIPE_SECRET_KEY,required"`
	// APIURL overrides the API endpoint, e.g. for stripe-mock.
	APIURL            string `env:"STRIPE_API_URL"`
	MaxNetworkRetries int64  `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
}

// StripeGateway charges through Stripe PaymentIntents. The billing token it
// issues is "<customer id>/<payment method id>".
type StripeGateway struct {
	sc *client.API
}

// NewStripeGateway builds a Stripe client from cfg.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.Join(ErrInvalidPayment, errors.New("stripe secret key is required"))
	}
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	sc := &client.API{}
	sc.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeGateway{sc: sc}, nil
}

// NewStripeGatewayWithClient wraps an initialised client.
func NewStripeGatewayWithClient(sc *client.API) *StripeGateway {
	if sc == nil {
		panic("subscription: stripe client is required")
	}
	return &StripeGateway{sc: sc}
}

// ChargeNewMethod creates a customer for the method, charges it and keeps it
// on file for off-session renewals.
func (g *StripeGateway) ChargeNewMethod(ctx context.Context, method PaymentMethod, amount Money, idempotencyKey string) (*Charge, error) {
	cparams := &stripe.CustomerParams{
		PaymentMethod: stripe.String(method.Ref),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(method.Ref),
		},
	}
	if method.Email != "" {
		cparams.Email = stripe.String(method.Email)
	}
	if method.Name != "" {
		cparams.Name = stripe.String(method.Name)
	}
	cparams.Context = ctx
	cparams.SetIdempotencyKey(idempotencyKey + ":customer")

	cus, err := g.sc.Customers.New(cparams)
	if err != nil {
		return nil, stripeError(err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:           stripe.Int64(amount.Amount),
		Currency:         stripe.String(strings.ToLower(amount.Currency)),
		Customer:         stripe.String(cus.ID),
		PaymentMethod:    stripe.String(method.Ref),
		Confirm:          stripe.Bool(true),
		SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	pi, err := g.confirm(ctx, params, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return &Charge{PaymentRef: pi.ID, Token: cus.ID + "/" + method.Ref}, nil
}

// ChargeWithToken charges a stored method off-session.
func (g *StripeGateway) ChargeWithToken(ctx context.Context, token string, amount Money, idempotencyKey string) (*Charge, error) {
	customerID, methodID, ok := strings.Cut(token, "/")
	if !ok || customerID == "" || methodID == "" {
		return nil, errors.Join(ErrInvalidPayment, fmt.Errorf("malformed billing token %q", token))
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount.Amount),
		Currency:      stripe.String(strings.ToLower(amount.Currency)),
		Customer:      stripe.String(customerID),
		PaymentMethod: stripe.String(methodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	pi, err := g.confirm(ctx, params, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return &Charge{PaymentRef: pi.ID}, nil
}

func (g *StripeGateway) confirm(ctx context.Context, params *stripe.PaymentIntentParams, idempotencyKey string) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, stripeError(err)
	}
	// Anything short of succeeded (e.g. requires_action for 3-D Secure) cannot
	// complete without the customer and counts as declined.
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, errors.Join(ErrPaymentDeclined, fmt.Errorf("payment intent %s is %s", pi.ID, pi.Status))
	}
	return pi, nil
}

// stripeError maps card errors to ErrPaymentDeclined and reused idempotency
// keys to ErrConflict. Everything else is an unknown outcome.
func stripeError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch serr.Type {
		case stripe.ErrorTypeCard:
			return errors.Join(ErrPaymentDeclined, err)
		case stripe.ErrorTypeIdempotency:
			return errors.Join(ErrConflict, err)
		}
	}
	return err
}
