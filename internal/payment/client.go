// AngelaMos | 2026
// client.go

package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/fertilityflow/portal/internal/config"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type SessionMode string

const (
	ModePayment      SessionMode = "payment"
	ModeSubscription SessionMode = "subscription"
)

type CheckoutParams struct {
	PriceID           string
	Mode              SessionMode
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
}

type Price struct {
	ID         string
	Active     bool
	Recurring  bool
	UnitAmount int64
	Currency   string
}

// Client is the Stripe-backed payment gateway. The secret key and webhook
// secret are chosen by mode once at construction.
type Client struct {
	api           *client.API
	webhookSecret string
	mode          config.Mode
}

func NewClient(cfg config.PaymentsConfig) *Client {
	return &Client{
		api:           client.New(cfg.SecretKey(), nil),
		webhookSecret: cfg.WebhookSecret(),
		mode:          cfg.Mode,
	}
}

// NewClientWithBackend points the client at a custom API backend.
func NewClientWithBackend(
	cfg config.PaymentsConfig,
	backend stripe.Backend,
) *Client {
	return &Client{
		api: client.New(cfg.SecretKey(), &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		webhookSecret: cfg.WebhookSecret(),
		mode:          cfg.Mode,
	}
}

func (c *Client) Mode() config.Mode {
	return c.mode
}

func (c *Client) CreateCheckoutSession(
	ctx context.Context,
	p CheckoutParams,
) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(p.Mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx

	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(p.ClientReferenceID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	if p.Mode == ModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: copyMetadata(p.Metadata),
		}
	}

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return sessionFromStripe(s), nil
}

func (c *Client) RetrieveSession(
	ctx context.Context,
	sessionID string,
) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}

	return sessionFromStripe(s), nil
}

// ConstructEvent verifies the signature header against the raw payload
// before anything is decoded.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	e := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil {
		e.Data = evt.Data.Raw
	}
	return e, nil
}

func (c *Client) CountPaidInvoices(
	ctx context.Context,
	subscriptionID string,
) (int, error) {
	params := &stripe.InvoiceListParams{
		Subscription: stripe.String(subscriptionID),
		Status:       stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	count := 0
	it := c.api.Invoices.List(params)
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		return 0, fmt.Errorf("list paid invoices: %w", err)
	}

	return count, nil
}

// SubscriptionStatus returns Stripe's lifecycle status for a subscription
// (active, past_due, canceled, ...).
func (c *Client) SubscriptionStatus(ctx context.Context, subscriptionID string) (string, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return "", fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err)
	}
	return string(sub.Status), nil
}

func (c *Client) LookupPrice(ctx context.Context, priceID string) (*Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx

	p, err := c.api.Prices.Get(priceID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve price %s: %w", priceID, err)
	}

	return &Price{
		ID:         p.ID,
		Active:     p.Active,
		Recurring:  p.Recurring != nil,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
	}, nil
}

func sessionFromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Mode:          string(s.Mode),
		PaymentStatus: string(s.PaymentStatus),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}

	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if s.AmountTotal != 0 {
		amount := s.AmountTotal
		out.AmountTotal = &amount
	}

	return out
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
