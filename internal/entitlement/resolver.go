// AngelaMos | 2026
// resolver.go

package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/purchase"
)

type Tier string

const (
	TierNone    Tier = "none"
	TierPartial Tier = "partial"
	TierFull    Tier = "full"
)

var (
	ErrNotEntitled = fmt.Errorf("%w: purchase required", core.ErrForbidden)
	ErrBonusLocked = fmt.Errorf(
		"%w: bonus content requires full payment or a completed plan",
		core.ErrForbidden,
	)
)

type Access struct {
	Entitled bool
	Tier     Tier
}

type PurchaseFinder interface {
	FindLatestCompleted(ctx context.Context, userID, productID string) (*purchase.Purchase, error)
}

// Resolver is the only place that turns purchase records into access.
// Product price is never consulted.
type Resolver struct {
	purchases PurchaseFinder
}

func NewResolver(purchases PurchaseFinder) *Resolver {
	return &Resolver{purchases: purchases}
}

func (r *Resolver) HasAccess(ctx context.Context, userID, productID string) (Access, error) {
	if userID == "" {
		return Access{Tier: TierNone}, nil
	}

	p, err := r.purchases.FindLatestCompleted(ctx, userID, productID)
	if errors.Is(err, core.ErrNotFound) {
		return Access{Tier: TierNone}, nil
	}
	if err != nil {
		return Access{}, fmt.Errorf("resolve access: %w", err)
	}

	if p.FullyPaid() {
		return Access{Entitled: true, Tier: TierFull}, nil
	}
	return Access{Entitled: true, Tier: TierPartial}, nil
}

// Require returns nil when the user may see the content. bonus content
// additionally needs the full tier.
func (r *Resolver) Require(ctx context.Context, userID, productID string, bonus bool) error {
	access, err := r.HasAccess(ctx, userID, productID)
	if err != nil {
		return err
	}

	if !access.Entitled {
		return ErrNotEntitled
	}
	if bonus && access.Tier != TierFull {
		return ErrBonusLocked
	}
	return nil
}

func (r *Resolver) Tier(ctx context.Context, userID, productID string) (string, error) {
	access, err := r.HasAccess(ctx, userID, productID)
	if err != nil {
		return "", err
	}
	return string(access.Tier), nil
}
