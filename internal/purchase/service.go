// AngelaMos | 2026
// service.go

package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/metrics"
)

var ErrNotClaimable = errors.New("product is not free")

type ProductFinder interface {
	GetProductBySlug(ctx context.Context, slug string) (*catalog.Product, error)
}

type Service struct {
	repo     Repository
	products ProductFinder
	logger   *slog.Logger
}

func NewService(repo Repository, products ProductFinder) *Service {
	return &Service{
		repo:     repo,
		products: products,
		logger:   slog.Default(),
	}
}

// ClaimFree materialises the FREE purchase that entitles a user to a free
// product. Claiming twice is a no-op.
func (s *Service) ClaimFree(
	ctx context.Context,
	userID, slug string,
) (*catalog.Product, error) {
	product, err := s.products.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if !product.IsFree() {
		return product, fmt.Errorf("claim %s: %w", slug, ErrNotClaimable)
	}

	_, err = s.repo.FindLatestCompleted(ctx, userID, product.ID)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	free := PaymentFree
	err = s.repo.Create(ctx, &Purchase{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProductID:    product.ID,
		Amount:       0,
		Status:       StatusCompleted,
		PaymentType:  &free,
		PlanComplete: true,
	})
	if errors.Is(err, core.ErrDuplicateKey) {
		return product, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.PurchasesRecorded.WithLabelValues(string(StatusCompleted), string(PaymentFree)).Inc()
	s.logger.Info("free product claimed", "user_id", userID, "product", slug)

	return product, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]UserPurchase, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}
