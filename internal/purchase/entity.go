// AngelaMos | 2026
// entity.go

package purchase

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type PaymentType string

const (
	PaymentFull PaymentType = "FULL"
	PaymentPlan PaymentType = "PLAN"
	PaymentFree PaymentType = "FREE"
)

// Purchase is the entitlement record. Rows are never moved between
// products or users; the only mutation is PlanComplete going true.
type Purchase struct {
	ID                   string       `db:"id"`
	UserID               string       `db:"user_id"`
	ProductID            string       `db:"product_id"`
	StripeSessionID      *string      `db:"stripe_session_id"`
	StripeCustomerID     *string      `db:"stripe_customer_id"`
	StripeSubscriptionID *string      `db:"stripe_subscription_id"`
	Amount               int64        `db:"amount"`
	Status               Status       `db:"status"`
	PaymentType          *PaymentType `db:"payment_type"`
	PlanComplete         bool         `db:"plan_complete"`
	CreatedAt            time.Time    `db:"created_at"`
	UpdatedAt            time.Time    `db:"updated_at"`
}

func (p *Purchase) IsCompleted() bool {
	return p.Status == StatusCompleted
}

func (p *Purchase) Type() PaymentType {
	if p.PaymentType == nil {
		return ""
	}
	return *p.PaymentType
}

// FullyPaid reports whether nothing is left to pay. Rows with no payment
// type predate type tracking and are treated as not fully paid.
func (p *Purchase) FullyPaid() bool {
	switch p.Type() {
	case PaymentFull, PaymentFree:
		return true
	case PaymentPlan:
		return p.PlanComplete
	}
	return false
}

// UserPurchase is a purchase joined with the product it entitles.
type UserPurchase struct {
	Purchase
	ProductSlug string `db:"product_slug"`
	ProductName string `db:"product_name"`
}
