// AngelaMos | 2026
// dto.go

package purchase

import (
	"time"
)

type PurchaseResponse struct {
	ID           string      `json:"id"`
	ProductID    string      `json:"product_id"`
	ProductSlug  string      `json:"product_slug"`
	ProductName  string      `json:"product_name"`
	Amount       int64       `json:"amount"`
	Status       Status      `json:"status"`
	PaymentType  PaymentType `json:"payment_type,omitempty"`
	PlanComplete bool        `json:"plan_complete"`
	FullyPaid    bool        `json:"fully_paid"`
	CreatedAt    time.Time   `json:"created_at"`
}

func ToPurchaseResponse(p *UserPurchase) PurchaseResponse {
	return PurchaseResponse{
		ID:           p.ID,
		ProductID:    p.ProductID,
		ProductSlug:  p.ProductSlug,
		ProductName:  p.ProductName,
		Amount:       p.Amount,
		Status:       p.Status,
		PaymentType:  p.Type(),
		PlanComplete: p.PlanComplete,
		FullyPaid:    p.Status == StatusCompleted && p.FullyPaid(),
		CreatedAt:    p.CreatedAt,
	}
}

func ToPurchaseResponses(purchases []UserPurchase) []PurchaseResponse {
	out := make([]PurchaseResponse, 0, len(purchases))
	for i := range purchases {
		out = append(out, ToPurchaseResponse(&purchases[i]))
	}
	return out
}
