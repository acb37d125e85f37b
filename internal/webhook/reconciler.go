// AngelaMos | 2026
// reconciler.go

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fertilityflow/portal/internal/auth"
	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/metrics"
	"github.com/fertilityflow/portal/internal/payment"
	"github.com/fertilityflow/portal/internal/purchase"
)

// ErrMalformedEvent marks an event that can never be processed. It is
// acknowledged so Stripe stops redelivering it.
var ErrMalformedEvent = errors.New("malformed webhook event")

type PlanGateway interface {
	CountPaidInvoices(ctx context.Context, subscriptionID string) (int, error)
	SubscriptionStatus(ctx context.Context, subscriptionID string) (string, error)
}

type PurchaseStore interface {
	Create(ctx context.Context, p *purchase.Purchase) error
	FindBySessionID(ctx context.Context, sessionID string) (*purchase.Purchase, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*purchase.Purchase, error)
	MarkPlanComplete(ctx context.Context, id string) (bool, error)
}

type ProductFinder interface {
	GetProductByID(ctx context.Context, id string) (*catalog.Product, error)
}

type UserFinder interface {
	GetByID(ctx context.Context, id string) (*auth.UserInfo, error)
}

// Notifier sends must not block; failures are the notifier's to log.
type Notifier interface {
	PurchaseConfirmation(email, name, productName string, amountCents int64)
	BonusUnlocked(email, name, productName, productSlug string)
}

const (
	outcomeCreated         = "created"
	outcomeDuplicate       = "duplicate"
	outcomeIgnored         = "ignored"
	outcomeMalformed       = "malformed"
	outcomeFailed          = "error"
	outcomeAwaitingPayment = "awaiting_payment"
	outcomePlanPending     = "plan_pending"
	outcomePlanCompleted   = "plan_completed"
)

// Reconciler turns at-least-once, unordered Stripe events into purchase
// state. Every mutation is guarded so a redelivery is a no-op.
type Reconciler struct {
	invoices     PlanGateway
	purchases    PurchaseStore
	products     ProductFinder
	users        UserFinder
	notifier     Notifier
	installments int
	logger       *slog.Logger
}

func NewReconciler(
	invoices PlanGateway,
	purchases PurchaseStore,
	products ProductFinder,
	users UserFinder,
	notifier Notifier,
	installments int,
) *Reconciler {
	return &Reconciler{
		invoices:     invoices,
		purchases:    purchases,
		products:     products,
		users:        users,
		notifier:     notifier,
		installments: installments,
		logger:       slog.Default(),
	}
}

// Handle applies one verified event. A nil error or ErrMalformedEvent
// means acknowledge; anything else should make Stripe retry.
func (r *Reconciler) Handle(ctx context.Context, evt *payment.Event) error {
	start := time.Now()
	ctx, span := core.StartSpan(ctx, "webhook.reconcile",
		attribute.String("stripe.event_id", evt.ID),
		attribute.String("stripe.event_type", evt.Type),
	)
	defer span.End()

	var (
		outcome string
		err     error
	)

	switch evt.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncPaymentSucceeded:
		outcome, err = r.checkoutCompleted(ctx, evt)
	case payment.EventCheckoutAsyncPaymentFailed:
		outcome, err = r.checkoutFailed(ctx, evt)
	case payment.EventInvoicePaymentSucceeded, payment.EventInvoicePaid:
		outcome, err = r.invoicePaid(ctx, evt)
	default:
		outcome = outcomeIgnored
	}

	log := r.logger.With("event_id", evt.ID, "event_type", evt.Type)
	switch {
	case errors.Is(err, ErrMalformedEvent):
		outcome = outcomeMalformed
		log.Warn("webhook event dropped", "error", err)
	case err != nil:
		outcome = outcomeFailed
		core.SetSpanError(ctx, err)
		log.Error("webhook event failed", "error", err)
	default:
		log.Info("webhook event processed", "outcome", outcome)
	}

	span.SetAttributes(attribute.String("webhook.outcome", outcome))
	metrics.WebhookEvents.WithLabelValues(evt.Type, outcome).Inc()
	metrics.WebhookDuration.WithLabelValues(evt.Type).Observe(time.Since(start).Seconds())

	return err
}

type checkoutRefs struct {
	session   *payment.Session
	userID    string
	productID string
}

func decodeCheckout(evt *payment.Event) (*checkoutRefs, error) {
	session, err := payment.DecodeSession(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	refs := &checkoutRefs{
		session:   session,
		userID:    session.Metadata[payment.MetadataUserID],
		productID: session.Metadata[payment.MetadataProductID],
	}
	if refs.userID == "" || refs.productID == "" {
		return nil, fmt.Errorf(
			"%w: session %s has no user or product metadata",
			ErrMalformedEvent, session.ID,
		)
	}
	return refs, nil
}

// paymentTypeFor derives FULL or PLAN from the session. A subscription is
// always a plan; a payment-mode session is a plan only when the checkout
// said so.
func paymentTypeFor(s *payment.Session) purchase.PaymentType {
	if s.Mode == string(payment.ModeSubscription) {
		return purchase.PaymentPlan
	}
	if s.Metadata[payment.MetadataPriceType] == string(catalog.PricePaymentPlan) {
		return purchase.PaymentPlan
	}
	return purchase.PaymentFull
}

// alreadyRecorded reports whether a purchase exists for the session.
func (r *Reconciler) alreadyRecorded(ctx context.Context, sessionID string) (bool, error) {
	_, err := r.purchases.FindBySessionID(ctx, sessionID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (r *Reconciler) product(ctx context.Context, id string) (*catalog.Product, error) {
	product, err := r.products.GetProductByID(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: product %s does not exist", ErrMalformedEvent, id)
	}
	return product, err
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, evt *payment.Event) (string, error) {
	refs, err := decodeCheckout(evt)
	if err != nil {
		return "", err
	}
	s := refs.session

	// Delayed payment methods complete checkout before the money moves;
	// async_payment_succeeded follows and records the purchase.
	if evt.Type == payment.EventCheckoutCompleted &&
		s.PaymentStatus == payment.PaymentStatusUnpaid {
		return outcomeAwaitingPayment, nil
	}

	done, err := r.alreadyRecorded(ctx, s.ID)
	if err != nil {
		return "", err
	}
	if done {
		return outcomeDuplicate, nil
	}

	product, err := r.product(ctx, refs.productID)
	if err != nil {
		return "", err
	}

	paymentType := paymentTypeFor(s)
	amount := product.Price
	if s.AmountTotal != nil {
		amount = *s.AmountTotal
	}

	p := &purchase.Purchase{
		ID:                   uuid.New().String(),
		UserID:               refs.userID,
		ProductID:            product.ID,
		StripeSessionID:      optional(s.ID),
		StripeCustomerID:     optional(s.CustomerID),
		StripeSubscriptionID: optional(s.SubscriptionID),
		Amount:               amount,
		Status:               purchase.StatusCompleted,
		PaymentType:          &paymentType,
		PlanComplete:         paymentType == purchase.PaymentFull,
	}

	err = r.purchases.Create(ctx, p)
	if errors.Is(err, core.ErrDuplicateKey) {
		return outcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	metrics.PurchasesRecorded.WithLabelValues(string(p.Status), string(paymentType)).Inc()
	core.AddSpanEvent(ctx, "purchase.created",
		attribute.String("purchase.id", p.ID),
		attribute.String("purchase.payment_type", string(paymentType)),
	)
	r.logger.Info("purchase recorded",
		"purchase_id", p.ID,
		"session_id", s.ID,
		"user_id", p.UserID,
		"product", product.Slug,
		"payment_type", paymentType,
		"amount", amount,
	)

	if user := r.recipient(ctx, p.UserID); user != nil {
		email := user.Email
		if email == "" {
			email = s.CustomerEmail
		}
		r.notifier.PurchaseConfirmation(email, user.Name, product.Name, amount)
	}

	return outcomeCreated, nil
}

func (r *Reconciler) checkoutFailed(ctx context.Context, evt *payment.Event) (string, error) {
	refs, err := decodeCheckout(evt)
	if err != nil {
		return "", err
	}
	s := refs.session

	done, err := r.alreadyRecorded(ctx, s.ID)
	if err != nil {
		return "", err
	}
	if done {
		return outcomeDuplicate, nil
	}

	product, err := r.product(ctx, refs.productID)
	if err != nil {
		return "", err
	}

	paymentType := paymentTypeFor(s)
	var amount int64
	if s.AmountTotal != nil {
		amount = *s.AmountTotal
	}

	p := &purchase.Purchase{
		ID:               uuid.New().String(),
		UserID:           refs.userID,
		ProductID:        product.ID,
		StripeSessionID:  optional(s.ID),
		StripeCustomerID: optional(s.CustomerID),
		Amount:           amount,
		Status:           purchase.StatusFailed,
		PaymentType:      &paymentType,
	}

	err = r.purchases.Create(ctx, p)
	if errors.Is(err, core.ErrDuplicateKey) {
		return outcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	metrics.PurchasesRecorded.WithLabelValues(string(p.Status), string(paymentType)).Inc()
	r.logger.Warn("checkout payment failed",
		"purchase_id", p.ID,
		"session_id", s.ID,
		"user_id", p.UserID,
		"product", product.Slug,
	)

	return outcomeCreated, nil
}

func (r *Reconciler) invoicePaid(ctx context.Context, evt *payment.Event) (string, error) {
	inv, err := payment.DecodeInvoice(evt.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if inv.SubscriptionID == "" {
		return outcomeIgnored, nil
	}

	p, err := r.purchases.FindBySubscriptionID(ctx, inv.SubscriptionID)
	if errors.Is(err, core.ErrNotFound) {
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if p.PlanComplete {
		return outcomeIgnored, nil
	}

	state, err := r.evaluatePlan(ctx, p, inv.SubscriptionID)
	if err != nil {
		return "", err
	}
	if state.Complete {
		return outcomePlanCompleted, nil
	}
	return outcomePlanPending, nil
}

// PlanState is the result of deriving plan completion from Stripe.
type PlanState struct {
	PurchaseID     string `json:"purchase_id"`
	SubscriptionID string `json:"subscription_id"`
	PaidInvoices   int    `json:"paid_invoices"`
	Required       int    `json:"required"`
	// GatewayStatus is filled only by RecheckPlan.
	GatewayStatus string `json:"gateway_status,omitempty"`
	Complete      bool   `json:"complete"`
	// Changed is true only for the call that flipped the plan to complete.
	Changed bool `json:"changed"`
}

// evaluatePlan recounts paid invoices instead of incrementing a local
// counter, so duplicate or reordered deliveries converge on the same state.
func (r *Reconciler) evaluatePlan(
	ctx context.Context,
	p *purchase.Purchase,
	subscriptionID string,
) (*PlanState, error) {
	paid, err := r.invoices.CountPaidInvoices(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("count paid invoices: %w", err)
	}

	state := &PlanState{
		PurchaseID:     p.ID,
		SubscriptionID: subscriptionID,
		PaidInvoices:   paid,
		Required:       r.installments,
		Complete:       p.PlanComplete,
	}

	if p.PlanComplete || paid < r.installments {
		return state, nil
	}

	changed, err := r.purchases.MarkPlanComplete(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	state.Complete = true
	state.Changed = changed

	if !changed {
		return state, nil
	}

	metrics.PlansCompleted.Inc()
	r.logger.Info("payment plan complete",
		"purchase_id", p.ID,
		"subscription_id", subscriptionID,
		"paid_invoices", paid,
	)

	product, err := r.products.GetProductByID(ctx, p.ProductID)
	if err != nil {
		r.logger.Warn("bonus unlock email skipped", "purchase_id", p.ID, "error", err)
		return state, nil
	}
	if user := r.recipient(ctx, p.UserID); user != nil {
		r.notifier.BonusUnlocked(user.Email, user.Name, product.Name, product.Slug)
	}

	return state, nil
}

// RecheckPlan re-derives plan completion for a subscription on demand,
// for recovering from webhooks that never arrived.
func (r *Reconciler) RecheckPlan(ctx context.Context, subscriptionID string) (*PlanState, error) {
	ctx, span := core.StartSpan(ctx, "webhook.recheck_plan",
		attribute.String("stripe.subscription_id", subscriptionID),
	)
	defer span.End()

	p, err := r.purchases.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	state, err := r.evaluatePlan(ctx, p, subscriptionID)
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	status, err := r.invoices.SubscriptionStatus(ctx, subscriptionID)
	if err != nil {
		r.logger.Warn("subscription status unavailable",
			"subscription_id", subscriptionID,
			"error", err,
		)
		return state, nil
	}
	state.GatewayStatus = status
	return state, nil
}

func (r *Reconciler) recipient(ctx context.Context, userID string) *auth.UserInfo {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		r.logger.Warn("notification skipped, user lookup failed",
			"user_id", userID,
			"error", err,
		)
		return nil
	}
	return user
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
