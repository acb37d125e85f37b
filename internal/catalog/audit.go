// AngelaMos | 2026
// audit.go

package catalog

import (
	"context"
	"fmt"

	"github.com/fertilityflow/portal/internal/config"
	"github.com/fertilityflow/portal/internal/payment"
)

type PriceLookup interface {
	LookupPrice(ctx context.Context, priceID string) (*payment.Price, error)
}

// PriceIssue is one misconfiguration found by AuditPrices.
type PriceIssue struct {
	Product   string
	PriceType PriceType
	PriceID   string
	Problem   string
}

func (i PriceIssue) String() string {
	if i.PriceID == "" {
		return fmt.Sprintf("%s (%s): %s", i.Product, i.PriceType, i.Problem)
	}
	return fmt.Sprintf("%s (%s, %s): %s", i.Product, i.PriceType, i.PriceID, i.Problem)
}

// AuditPrices checks that every paid product has usable Stripe prices for
// mode. One-time prices must match the product amount; plan prices must be
// recurring.
func AuditPrices(
	ctx context.Context,
	products []Product,
	mode config.Mode,
	prices PriceLookup,
) ([]PriceIssue, error) {
	var issues []PriceIssue

	for i := range products {
		p := &products[i]
		if p.IsFree() {
			continue
		}

		wanted := []PriceType{PriceOneTime}
		if p.Type == TypePaidPlanProgram {
			wanted = append(wanted, PricePaymentPlan)
		}

		for _, pt := range wanted {
			issue := PriceIssue{Product: p.Slug, PriceType: pt}

			id := p.StripePriceID(mode, pt)
			if id == "" {
				issue.Problem = fmt.Sprintf("no %s price configured", mode)
				issues = append(issues, issue)
				continue
			}
			issue.PriceID = id

			price, err := prices.LookupPrice(ctx, id)
			if err != nil {
				issue.Problem = "lookup failed: " + err.Error()
				issues = append(issues, issue)
				continue
			}

			switch {
			case !price.Active:
				issue.Problem = "price is archived"
			case pt == PricePaymentPlan && !price.Recurring:
				issue.Problem = "plan price is not recurring"
			case pt == PriceOneTime && price.Recurring:
				issue.Problem = "one-time price is recurring"
			case pt == PriceOneTime && price.UnitAmount != p.Price:
				issue.Problem = fmt.Sprintf("amount %d does not match product price %d",
					price.UnitAmount, p.Price)
			default:
				continue
			}
			issues = append(issues, issue)
		}
	}

	if err := ctx.Err(); err != nil {
		return issues, err
	}
	return issues, nil
}
