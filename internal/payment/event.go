// AngelaMos | 2026
// event.go

package payment

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventInvoicePaymentSucceeded       = "invoice.payment_succeeded"
	EventInvoicePaid                   = "invoice.paid"
)

const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Checkout metadata keys. They are the only link from a Stripe session
// back to the portal's user and product.
const (
	MetadataUserID    = "userId"
	MetadataProductID = "productId"
	MetadataPriceType = "priceType"
)

var ErrMalformedObject = errors.New("malformed event object")

type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// Session is the subset of a checkout session the portal acts on. It is
// decoded locally so API version drift in unrelated fields never breaks
// reconciliation.
type Session struct {
	ID             string
	URL            string
	Mode           string
	PaymentStatus  string
	CustomerEmail  string
	CustomerID     string
	SubscriptionID string
	AmountTotal    *int64
	Metadata       map[string]string
}

type Invoice struct {
	ID             string
	SubscriptionID string
	Status         string
}

type expandable struct {
	ID string
}

func (e *expandable) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type sessionWire struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Mode            string `json:"mode"`
	PaymentStatus   string `json:"payment_status"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Customer     expandable        `json:"customer"`
	Subscription expandable        `json:"subscription"`
	AmountTotal  *int64            `json:"amount_total"`
	Metadata     map[string]string `json:"metadata"`
}

type invoiceWire struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Subscription expandable `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func DecodeSession(raw json.RawMessage) (*Session, error) {
	var w sessionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %w", ErrMalformedObject, err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("%w: checkout session without id", ErrMalformedObject)
	}

	s := &Session{
		ID:             w.ID,
		URL:            w.URL,
		Mode:           w.Mode,
		PaymentStatus:  w.PaymentStatus,
		CustomerEmail:  w.CustomerEmail,
		CustomerID:     w.Customer.ID,
		SubscriptionID: w.Subscription.ID,
		AmountTotal:    w.AmountTotal,
		Metadata:       w.Metadata,
	}
	if s.CustomerEmail == "" && w.CustomerDetails != nil {
		s.CustomerEmail = w.CustomerDetails.Email
	}
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}

	return s, nil
}

// DecodeInvoice reads the subscription reference from either the legacy
// top-level field or the newer parent.subscription_details block.
func DecodeInvoice(raw json.RawMessage) (*Invoice, error) {
	var w invoiceWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: invoice: %w", ErrMalformedObject, err)
	}

	inv := &Invoice{
		ID:             w.ID,
		Status:         w.Status,
		SubscriptionID: w.Subscription.ID,
	}
	if inv.SubscriptionID == "" && w.Parent != nil &&
		w.Parent.SubscriptionDetails != nil {
		inv.SubscriptionID = w.Parent.SubscriptionDetails.Subscription.ID
	}

	return inv, nil
}
