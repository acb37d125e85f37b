// AngelaMos | 2026
// event_test.go

package payment

import (
	"errors"
	"testing"
)

func TestDecodeSession(t *testing.T) {
	raw := []byte(`{
		"id": "cs_test_1",
		"object": "checkout.session",
		"mode": "subscription",
		"payment_status": "paid",
		"customer_email": null,
		"customer_details": {"email": "Buyer@Example.com"},
		"customer": "cus_1",
		"subscription": {"id": "sub_1", "object": "subscription"},
		"amount_total": null,
		"metadata": {"userId": "u1", "productId": "p1", "priceType": "payment-plan"},
		"some_future_field": {"nested": [1, 2, 3]}
	}`)

	s, err := DecodeSession(raw)
	if err != nil {
		t.Fatalf("DecodeSession() error = %v", err)
	}

	if s.CustomerEmail != "Buyer@Example.com" {
		t.Errorf("CustomerEmail = %q, want customer_details fallback", s.CustomerEmail)
	}
	if s.CustomerID != "cus_1" || s.SubscriptionID != "sub_1" {
		t.Errorf("ids = %q/%q", s.CustomerID, s.SubscriptionID)
	}
	if s.AmountTotal != nil {
		t.Errorf("AmountTotal = %v, want nil", *s.AmountTotal)
	}
	if s.Metadata["priceType"] != "payment-plan" {
		t.Errorf("metadata = %v", s.Metadata)
	}
}

func TestDecodeSessionRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`} {
		_, err := DecodeSession([]byte(raw))
		if !errors.Is(err, ErrMalformedObject) {
			t.Errorf("DecodeSession(%s) error = %v, want ErrMalformedObject", raw, err)
		}
	}
}

func TestDecodeInvoiceSubscriptionReference(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "legacy field",
			raw:  `{"id":"in_1","subscription":"sub_legacy"}`,
			want: "sub_legacy",
		},
		{
			name: "parent details",
			raw:  `{"id":"in_2","parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_new"}}}`,
			want: "sub_new",
		},
		{
			name: "one-time invoice",
			raw:  `{"id":"in_3","subscription":null,"parent":null}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := DecodeInvoice([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeInvoice() error = %v", err)
			}
			if inv.SubscriptionID != tt.want {
				t.Errorf("SubscriptionID = %q, want %q", inv.SubscriptionID, tt.want)
			}
		})
	}
}
