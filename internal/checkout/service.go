// AngelaMos | 2026
// service.go

package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/fertilityflow/portal/internal/auth"
	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/config"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/metrics"
	"github.com/fertilityflow/portal/internal/payment"
	"github.com/fertilityflow/portal/internal/purchase"
)

type Gateway interface {
	Mode() config.Mode
	CreateCheckoutSession(ctx context.Context, p payment.CheckoutParams) (*payment.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*payment.Session, error)
}

type UserFinder interface {
	GetByID(ctx context.Context, id string) (*auth.UserInfo, error)
}

type ProductFinder interface {
	GetProductByID(ctx context.Context, id string) (*catalog.Product, error)
}

type PurchaseFinder interface {
	FindLatestCompleted(ctx context.Context, userID, productID string) (*purchase.Purchase, error)
}

type Input struct {
	UserID    string
	ProductID string
	PriceType string
	// Origin is the scheme://host the browser used; callback URLs hang off it.
	Origin string
}

type Result struct {
	SessionID string
	URL       string
}

type Service struct {
	gateway   Gateway
	users     UserFinder
	products  ProductFinder
	purchases PurchaseFinder
	apiPrefix string
	logger    *slog.Logger
}

func NewService(
	gateway Gateway,
	users UserFinder,
	products ProductFinder,
	purchases PurchaseFinder,
	apiPrefix string,
) *Service {
	return &Service{
		gateway:   gateway,
		users:     users,
		products:  products,
		purchases: purchases,
		apiPrefix: strings.TrimRight(apiPrefix, "/"),
		logger:    slog.Default(),
	}
}

// successURL is where Stripe returns the browser. It must hit this service's
// success route, which is mounted under apiPrefix.
func (s *Service) successURL(origin string) string {
	return origin + s.apiPrefix + checkoutRoute + successRoute +
		"?session_id={CHECKOUT_SESSION_ID}"
}

// Initiate opens a Stripe checkout session. Checks run in a fixed order
// and the first failure wins. Every failure is a *core.AppError.
func (s *Service) Initiate(ctx context.Context, in Input) (*Result, error) {
	if in.UserID == "" {
		return nil, core.UnauthorizedError("")
	}

	if strings.TrimSpace(in.ProductID) == "" {
		return nil, core.ValidationError("Product ID required")
	}

	priceType, ok := catalog.ParsePriceType(in.PriceType)
	if !ok {
		return nil, core.ValidationError("Invalid price type")
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError("User")
		}
		return nil, err
	}

	product, err := s.products.GetProductByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError("Product")
		}
		return nil, err
	}

	_, err = s.purchases.FindLatestCompleted(ctx, user.ID, product.ID)
	if err == nil {
		s.record(priceType, "already_owned")
		return nil, core.ConflictError("You already own this product", "/dashboard")
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	mode := s.gateway.Mode()
	priceID := product.StripePriceID(mode, priceType)
	if priceID == "" {
		s.logger.Error("stripe price not configured",
			"product", product.Slug,
			"price_type", priceType,
			"mode", mode,
		)
		s.record(priceType, "not_configured")
		return nil, core.ConfigurationError(fmt.Errorf(
			"product %s has no %s price in %s mode",
			product.Slug, priceType, mode,
		))
	}

	sessionMode := payment.ModePayment
	if priceType == catalog.PricePaymentPlan {
		sessionMode = payment.ModeSubscription
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutParams{
		PriceID:           priceID,
		Mode:              sessionMode,
		CustomerEmail:     user.Email,
		ClientReferenceID: user.ID,
		Metadata: map[string]string{
			payment.MetadataUserID:    user.ID,
			payment.MetadataProductID: product.ID,
			payment.MetadataPriceType: string(priceType),
		},
		SuccessURL: s.successURL(in.Origin),
		CancelURL:  in.Origin + "/programs/" + product.Slug + "?canceled=true",
	})
	if err != nil {
		s.record(priceType, "gateway_error")
		return nil, core.UpstreamError(err)
	}

	s.record(priceType, "created")
	s.logger.Info("checkout session created",
		"session_id", session.ID,
		"user_id", user.ID,
		"product", product.Slug,
		"price_type", priceType,
	)

	return &Result{SessionID: session.ID, URL: session.URL}, nil
}

func (s *Service) record(priceType catalog.PriceType, outcome string) {
	metrics.CheckoutSessions.WithLabelValues(string(priceType), outcome).Inc()
}

// VerifySuccess inspects the session Stripe redirected back with and
// returns the dashboard query flags to show. Entitlement itself comes
// from the webhook, never from this redirect.
func (s *Service) VerifySuccess(ctx context.Context, userID, sessionID string) url.Values {
	q := url.Values{}

	if sessionID == "" {
		q.Set("error", "missing-session")
		return q
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("checkout success: user lookup failed", "user_id", userID, "error", err)
		q.Set("error", "unauthorized")
		return q
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		s.logger.Error("checkout success: session lookup failed",
			"session_id", sessionID,
			"error", err,
		)
		q.Set("error", "verification-failed")
		return q
	}

	if !strings.EqualFold(session.CustomerEmail, user.Email) {
		s.logger.Warn("checkout success: session belongs to another customer",
			"session_id", sessionID,
			"user_id", userID,
		)
		q.Set("error", "unauthorized")
		return q
	}

	switch session.PaymentStatus {
	case payment.PaymentStatusPaid, payment.PaymentStatusNoPaymentRequired:
		q.Set("success", "true")
	case payment.PaymentStatusUnpaid:
		q.Set("pending", "true")
	default:
		q.Set("error", "payment-failed")
	}
	return q
}
