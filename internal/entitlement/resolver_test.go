// AngelaMos | 2026
// resolver_test.go

package entitlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/entitlement"
	"github.com/fertilityflow/portal/internal/purchase"
	"github.com/fertilityflow/portal/internal/purchase/purchasetest"
)

func paymentType(t purchase.PaymentType) *purchase.PaymentType { return &t }

func TestHasAccess(t *testing.T) {
	tests := []struct {
		name string
		rows []purchase.Purchase
		want entitlement.Access
	}{
		{
			name: "no purchase",
			want: entitlement.Access{Tier: entitlement.TierNone},
		},
		{
			name: "failed purchase does not entitle",
			rows: []purchase.Purchase{{UserID: "u1", ProductID: "p1", Status: purchase.StatusFailed}},
			want: entitlement.Access{Tier: entitlement.TierNone},
		},
		{
			name: "full payment",
			rows: []purchase.Purchase{{
				UserID: "u1", ProductID: "p1", Status: purchase.StatusCompleted,
				PaymentType: paymentType(purchase.PaymentFull), PlanComplete: true,
			}},
			want: entitlement.Access{Entitled: true, Tier: entitlement.TierFull},
		},
		{
			name: "plan in progress",
			rows: []purchase.Purchase{{
				UserID: "u1", ProductID: "p1", Status: purchase.StatusCompleted,
				PaymentType: paymentType(purchase.PaymentPlan),
			}},
			want: entitlement.Access{Entitled: true, Tier: entitlement.TierPartial},
		},
		{
			name: "free claim",
			rows: []purchase.Purchase{{
				UserID: "u1", ProductID: "p1", Status: purchase.StatusCompleted,
				PaymentType: paymentType(purchase.PaymentFree),
			}},
			want: entitlement.Access{Entitled: true, Tier: entitlement.TierFull},
		},
		{
			name: "other user's purchase",
			rows: []purchase.Purchase{{
				UserID: "u2", ProductID: "p1", Status: purchase.StatusCompleted,
				PaymentType: paymentType(purchase.PaymentFull),
			}},
			want: entitlement.Access{Tier: entitlement.TierNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := purchasetest.NewStore()
			for _, row := range tt.rows {
				store.Add(row)
			}

			got, err := entitlement.NewResolver(store).HasAccess(context.Background(), "u1", "p1")
			if err != nil {
				t.Fatalf("HasAccess() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasAccess() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBonusUnlocksWhenPlanCompletes(t *testing.T) {
	store := purchasetest.NewStore()
	store.Add(purchase.Purchase{
		ID: "pu1", UserID: "u1", ProductID: "p1", Status: purchase.StatusCompleted,
		PaymentType: paymentType(purchase.PaymentPlan),
	})
	resolver := entitlement.NewResolver(store)
	ctx := context.Background()

	if err := resolver.Require(ctx, "u1", "p1", false); err != nil {
		t.Fatalf("regular content denied on a partial plan: %v", err)
	}

	err := resolver.Require(ctx, "u1", "p1", true)
	if !errors.Is(err, entitlement.ErrBonusLocked) || !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("Require(bonus) error = %v, want ErrBonusLocked", err)
	}

	if _, err := store.MarkPlanComplete(ctx, "pu1"); err != nil {
		t.Fatal(err)
	}

	if err := resolver.Require(ctx, "u1", "p1", true); err != nil {
		t.Fatalf("Require(bonus) after plan completion error = %v", err)
	}
}

func TestRequireWithoutPurchase(t *testing.T) {
	resolver := entitlement.NewResolver(purchasetest.NewStore())

	err := resolver.Require(context.Background(), "u1", "free-product", false)
	if !errors.Is(err, entitlement.ErrNotEntitled) {
		t.Fatalf("Require() error = %v, want ErrNotEntitled", err)
	}
}

type failingFinder struct{}

func (failingFinder) FindLatestCompleted(context.Context, string, string) (*purchase.Purchase, error) {
	return nil, errors.New("connection refused")
}

func TestRequireSurfacesStoreErrors(t *testing.T) {
	err := entitlement.NewResolver(failingFinder{}).Require(context.Background(), "u1", "p1", false)
	if err == nil || errors.Is(err, core.ErrForbidden) {
		t.Fatalf("Require() error = %v, want a non-forbidden failure", err)
	}
}
