// AngelaMos | 2026
// reconciler_test.go

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/fertilityflow/portal/internal/auth"
	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/config"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/payment"
	"github.com/fertilityflow/portal/internal/purchase"
	"github.com/fertilityflow/portal/internal/purchase/purchasetest"
)

type scriptedInvoices struct {
	mu     sync.Mutex
	counts []int
	calls  int
	err    error
}

func (s *scriptedInvoices) CountPaidInvoices(context.Context, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return 0, s.err
	}
	n := s.counts[min(s.calls, len(s.counts)-1)]
	s.calls++
	return n, nil
}

func (s *scriptedInvoices) SubscriptionStatus(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}
	return "active", nil
}

type productMap map[string]*catalog.Product

func (m productMap) GetProductByID(_ context.Context, id string) (*catalog.Product, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, core.ErrNotFound
}

type userMap map[string]*auth.UserInfo

func (m userMap) GetByID(_ context.Context, id string) (*auth.UserInfo, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, core.ErrNotFound
}

type recordingNotifier struct {
	mu            sync.Mutex
	confirmations []string
	bonuses       []string
}

func (n *recordingNotifier) PurchaseConfirmation(email, _, productName string, amount int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, fmt.Sprintf("%s:%s:%d", email, productName, amount))
}

func (n *recordingNotifier) BonusUnlocked(email, _, _, slug string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bonuses = append(n.bonuses, email+":"+slug)
}

type fixture struct {
	rec      *Reconciler
	store    *purchasetest.Store
	invoices *scriptedInvoices
	notifier *recordingNotifier
}

func newFixture(counts ...int) *fixture {
	if len(counts) == 0 {
		counts = []int{0}
	}
	f := &fixture{
		store:    purchasetest.NewStore(),
		invoices: &scriptedInvoices{counts: counts},
		notifier: &recordingNotifier{},
	}
	f.rec = NewReconciler(
		f.invoices,
		f.store,
		productMap{"p1": {ID: "p1", Slug: "ofb", Name: "Optimal Fertility Blueprint", Price: 14900}},
		userMap{"u1": {ID: "u1", Email: "ada@example.com", Name: "Ada"}},
		f.notifier,
		3,
	)
	return f
}

func sessionEvent(t *testing.T, eventType string, session map[string]any) *payment.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatal(err)
	}
	return &payment.Event{ID: "evt_" + eventType, Type: eventType, Data: raw}
}

func paidSession(id string, extra map[string]any) map[string]any {
	s := map[string]any{
		"id":             id,
		"object":         "checkout.session",
		"mode":           "payment",
		"payment_status": "paid",
		"customer":       "cus_1",
		"amount_total":   14900,
		"metadata":       map[string]string{"userId": "u1", "productId": "p1", "priceType": "one-time"},
	}
	for k, v := range extra {
		s[k] = v
	}
	return s
}

func invoiceEvent(subscriptionID string) *payment.Event {
	raw := fmt.Sprintf(`{"id":"in_1","object":"invoice","status":"paid",
		"parent":{"subscription_details":{"subscription":%q}}}`, subscriptionID)
	return &payment.Event{ID: "evt_inv", Type: payment.EventInvoicePaymentSucceeded, Data: json.RawMessage(raw)}
}

func TestCheckoutCompletedIsIdempotent(t *testing.T) {
	f := newFixture()
	evt := sessionEvent(t, payment.EventCheckoutCompleted, paidSession("cs_test_1", nil))

	for range 2 {
		if err := f.rec.Handle(context.Background(), evt); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	rows := f.store.Rows()
	if len(rows) != 1 {
		t.Fatalf("purchases = %d, want exactly 1", len(rows))
	}
	p := rows[0]
	if p.Status != purchase.StatusCompleted || p.Type() != purchase.PaymentFull || !p.PlanComplete {
		t.Errorf("purchase = %+v", p)
	}
	if p.Amount != 14900 || *p.StripeSessionID != "cs_test_1" || *p.StripeCustomerID != "cus_1" {
		t.Errorf("purchase refs = %+v", p)
	}
	if len(f.notifier.confirmations) != 1 ||
		f.notifier.confirmations[0] != "ada@example.com:Optimal Fertility Blueprint:14900" {
		t.Errorf("confirmations = %v", f.notifier.confirmations)
	}
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	f := newFixture()
	evt := sessionEvent(t, payment.EventCheckoutCompleted, paidSession("cs_race", nil))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.rec.Handle(context.Background(), evt); err != nil {
				t.Errorf("Handle() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(f.store.Rows()); n != 1 {
		t.Fatalf("purchases = %d, want 1", n)
	}
}

func TestCheckoutPaymentTypeDerivation(t *testing.T) {
	tests := []struct {
		name         string
		extra        map[string]any
		wantType     purchase.PaymentType
		wantComplete bool
		wantAmount   int64
	}{
		{
			name:         "subscription mode is a plan",
			extra:        map[string]any{"mode": "subscription", "subscription": "sub_1", "amount_total": 4967},
			wantType:     purchase.PaymentPlan,
			wantAmount:   4967,
			wantComplete: false,
		},
		{
			name: "payment mode flagged as plan",
			extra: map[string]any{"metadata": map[string]string{
				"userId": "u1", "productId": "p1", "priceType": "payment-plan",
			}},
			wantType:   purchase.PaymentPlan,
			wantAmount: 14900,
		},
		{
			name:         "missing amount falls back to product price",
			extra:        map[string]any{"amount_total": nil},
			wantType:     purchase.PaymentFull,
			wantAmount:   14900,
			wantComplete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			evt := sessionEvent(t, payment.EventCheckoutAsyncPaymentSucceeded, paidSession("cs_x", tt.extra))

			if err := f.rec.Handle(context.Background(), evt); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			p := f.store.Rows()[0]
			if p.Type() != tt.wantType || p.PlanComplete != tt.wantComplete || p.Amount != tt.wantAmount {
				t.Errorf("purchase = type %s complete %v amount %d", p.Type(), p.PlanComplete, p.Amount)
			}
		})
	}
}

func TestCheckoutCompletedUnpaidWaitsForAsyncEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	unpaid := sessionEvent(t, payment.EventCheckoutCompleted,
		paidSession("cs_bank", map[string]any{"payment_status": "unpaid"}))
	if err := f.rec.Handle(ctx, unpaid); err != nil {
		t.Fatal(err)
	}
	if len(f.store.Rows()) != 0 {
		t.Fatal("unpaid checkout granted a purchase")
	}

	failed := sessionEvent(t, payment.EventCheckoutAsyncPaymentFailed, paidSession("cs_bank", nil))
	if err := f.rec.Handle(ctx, failed); err != nil {
		t.Fatal(err)
	}

	rows := f.store.Rows()
	if len(rows) != 1 || rows[0].Status != purchase.StatusFailed {
		t.Fatalf("rows = %+v, want one FAILED row", rows)
	}
	if len(f.notifier.confirmations) != 0 {
		t.Error("failed payment sent a confirmation")
	}
}

func TestFailedRowDoesNotBlockLaterPurchase(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.rec.Handle(ctx, sessionEvent(t, payment.EventCheckoutAsyncPaymentFailed, paidSession("cs_a", nil))); err != nil {
		t.Fatal(err)
	}
	if err := f.rec.Handle(ctx, sessionEvent(t, payment.EventCheckoutCompleted, paidSession("cs_b", nil))); err != nil {
		t.Fatal(err)
	}

	if _, err := f.store.FindLatestCompleted(ctx, "u1", "p1"); err != nil {
		t.Fatalf("retry checkout did not entitle: %v", err)
	}
}

func TestMalformedEventsAreAcknowledged(t *testing.T) {
	tests := []struct {
		name string
		evt  *payment.Event
	}{
		{
			name: "missing metadata",
			evt: sessionEvent(t, payment.EventCheckoutCompleted,
				paidSession("cs_1", map[string]any{"metadata": map[string]string{"userId": "u1"}})),
		},
		{
			name: "unknown product",
			evt: sessionEvent(t, payment.EventCheckoutCompleted,
				paidSession("cs_1", map[string]any{"metadata": map[string]string{"userId": "u1", "productId": "gone"}})),
		},
		{
			name: "not json",
			evt:  &payment.Event{ID: "evt_bad", Type: payment.EventCheckoutCompleted, Data: json.RawMessage(`[`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			err := f.rec.Handle(context.Background(), tt.evt)
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("Handle() error = %v, want ErrMalformedEvent", err)
			}
			if len(f.store.Rows()) != 0 {
				t.Fatal("malformed event changed state")
			}
		})
	}
}

func TestStoreFailureIsRetryable(t *testing.T) {
	f := newFixture()
	f.store.CreateErr = errors.New("connection reset")

	err := f.rec.Handle(context.Background(), sessionEvent(t, payment.EventCheckoutCompleted, paidSession("cs_1", nil)))
	if err == nil || errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("Handle() error = %v, want retryable error", err)
	}
}

func seedPlan(f *fixture) {
	plan := purchase.PaymentPlan
	sub := "sub_1"
	f.store.Add(purchase.Purchase{
		ID: "pu1", UserID: "u1", ProductID: "p1",
		StripeSubscriptionID: &sub,
		Status:               purchase.StatusCompleted,
		PaymentType:          &plan,
	})
}

func TestPlanCompletionOutOfOrder(t *testing.T) {
	f := newFixture(1, 3, 2, 2)
	seedPlan(f)
	ctx := context.Background()

	for range 4 {
		if err := f.rec.Handle(ctx, invoiceEvent("sub_1")); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	p, err := f.store.FindBySubscriptionID(ctx, "sub_1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.PlanComplete {
		t.Fatal("plan not complete after the third paid invoice")
	}
	if f.invoices.calls != 2 {
		t.Errorf("invoice counts fetched = %d, want 2 (later deliveries short-circuit)", f.invoices.calls)
	}
	if len(f.notifier.bonuses) != 1 || f.notifier.bonuses[0] != "ada@example.com:ofb" {
		t.Errorf("bonus emails = %v, want exactly one", f.notifier.bonuses)
	}
}

func TestInvoiceIgnoredCases(t *testing.T) {
	f := newFixture(5)
	ctx := context.Background()

	noSub := &payment.Event{Type: payment.EventInvoicePaid, Data: json.RawMessage(`{"id":"in_1"}`)}
	if err := f.rec.Handle(ctx, noSub); err != nil {
		t.Fatal(err)
	}
	if err := f.rec.Handle(ctx, invoiceEvent("sub_unknown")); err != nil {
		t.Fatal(err)
	}
	if f.invoices.calls != 0 {
		t.Errorf("Stripe queried %d times for untracked invoices", f.invoices.calls)
	}
}

func TestInvoiceCountFailureIsRetryable(t *testing.T) {
	f := newFixture()
	seedPlan(f)
	f.invoices.err = errors.New("stripe timeout")

	if err := f.rec.Handle(context.Background(), invoiceEvent("sub_1")); err == nil {
		t.Fatal("Handle() swallowed a Stripe failure")
	}
}

func TestRecheckPlan(t *testing.T) {
	f := newFixture(2, 3, 3)
	seedPlan(f)
	ctx := context.Background()

	state, err := f.rec.RecheckPlan(ctx, "sub_1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Complete || state.PaidInvoices != 2 || state.Required != 3 || state.GatewayStatus != "active" {
		t.Fatalf("state = %+v", state)
	}

	state, err = f.rec.RecheckPlan(ctx, "sub_1")
	if err != nil {
		t.Fatal(err)
	}
	if !state.Complete || !state.Changed {
		t.Fatalf("state = %+v, want newly complete", state)
	}

	if _, err := f.rec.RecheckPlan(ctx, "sub_missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("RecheckPlan(missing) error = %v", err)
	}
}

func TestUnsupportedEventIsIgnored(t *testing.T) {
	f := newFixture()
	evt := &payment.Event{ID: "evt_1", Type: "customer.created", Data: json.RawMessage(`{}`)}

	if err := f.rec.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

const testWebhookSecret = "whsec_test_secret"

func newHTTPFixture(t *testing.T) (*fixture, *Handler) {
	t.Helper()

	f := newFixture()
	client := payment.NewClient(config.PaymentsConfig{
		Mode:              config.ModeTest,
		TestSecretKey:     "sk_test_123",
		TestWebhookSecret: testWebhookSecret,
	})
	return f, NewHandler(client, f.rec)
}

func stripePayload(t *testing.T, sessionID string) []byte {
	t.Helper()
	obj := paidSession(sessionID, nil)
	body, err := json.Marshal(map[string]any{
		"id":          "evt_http",
		"object":      "event",
		"api_version": "2020-08-27",
		"type":        payment.EventCheckoutCompleted,
		"data":        map[string]any{"object": obj},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestHTTPSignatureRejection(t *testing.T) {
	f, h := newHTTPFixture(t)
	body := stripePayload(t, "cs_http")

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_attacker",
		Timestamp: time.Now(),
	})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "Missing stripe-signature header"},
		{"wrong secret", forged.Header, "Invalid signature"},
		{"garbage header", "t=1,v1=deadbeef", "Invalid signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(body)))
			if tt.header != "" {
				req.Header.Set("Stripe-Signature", tt.header)
			}
			rec := httptest.NewRecorder()
			h.Stripe(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", rec.Body, tt.want)
			}
		})
	}

	if n := len(f.store.Rows()); n != 0 {
		t.Fatalf("rejected deliveries wrote %d purchases", n)
	}
}

func TestHTTPSignedDelivery(t *testing.T) {
	f, h := newHTTPFixture(t)
	body := stripePayload(t, "cs_http")
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	h.Stripe(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if n := len(f.store.Rows()); n != 1 {
		t.Fatalf("purchases = %d, want 1", n)
	}
}

func TestHTTPOversizedBody(t *testing.T) {
	_, h := newHTTPFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe",
		strings.NewReader(strings.Repeat("x", maxBodyBytes+1)))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	h.Stripe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
