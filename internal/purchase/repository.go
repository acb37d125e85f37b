// AngelaMos | 2026
// repository.go

package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fertilityflow/portal/internal/core"
)

type Repository interface {
	Create(ctx context.Context, p *Purchase) error
	FindLatestCompleted(ctx context.Context, userID, productID string) (*Purchase, error)
	FindBySessionID(ctx context.Context, sessionID string) (*Purchase, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Purchase, error)
	// MarkPlanComplete reports whether this call flipped the flag.
	MarkPlanComplete(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]UserPurchase, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const purchaseColumns = `
	id, user_id, product_id, stripe_session_id, stripe_customer_id,
	stripe_subscription_id, amount, status, payment_type, plan_complete,
	created_at, updated_at`

// Create inserts p. A second row for the same Stripe session, or a second
// free claim for the same product, returns ErrDuplicateKey.
func (r *repository) Create(ctx context.Context, p *Purchase) error {
	query := `
		INSERT INTO purchases (
			id, user_id, product_id, stripe_session_id, stripe_customer_id,
			stripe_subscription_id, amount, status, payment_type, plan_complete
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.GetContext(ctx, p, query,
		p.ID,
		p.UserID,
		p.ProductID,
		p.StripeSessionID,
		p.StripeCustomerID,
		p.StripeSubscriptionID,
		p.Amount,
		p.Status,
		p.PaymentType,
		p.PlanComplete,
	)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create purchase: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create purchase: %w", err)
	}

	return nil
}

func (r *repository) FindLatestCompleted(
	ctx context.Context,
	userID, productID string,
) (*Purchase, error) {
	query := `SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE user_id = $1 AND product_id = $2 AND status = 'COMPLETED'
		ORDER BY created_at DESC
		LIMIT 1`

	return r.findOne(ctx, query, userID, productID)
}

func (r *repository) FindBySessionID(
	ctx context.Context,
	sessionID string,
) (*Purchase, error) {
	query := `SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE stripe_session_id = $1`

	return r.findOne(ctx, query, sessionID)
}

// FindBySubscriptionID returns the completed plan purchase for a
// subscription. FAILED audit rows never carry a subscription.
func (r *repository) FindBySubscriptionID(
	ctx context.Context,
	subscriptionID string,
) (*Purchase, error) {
	query := `SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE stripe_subscription_id = $1 AND status = 'COMPLETED'
		ORDER BY created_at DESC
		LIMIT 1`

	return r.findOne(ctx, query, subscriptionID)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*Purchase, error) {
	var p Purchase
	err := r.db.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find purchase: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find purchase: %w", err)
	}
	return &p, nil
}

func (r *repository) MarkPlanComplete(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE purchases
		SET plan_complete = true, updated_at = NOW()
		WHERE id = $1 AND plan_complete = false`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark plan complete: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark plan complete: %w", err)
	}

	return rows > 0, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]UserPurchase, error) {
	query := `
		SELECT p.id, p.user_id, p.product_id, p.stripe_session_id,
		       p.stripe_customer_id, p.stripe_subscription_id, p.amount,
		       p.status, p.payment_type, p.plan_complete,
		       p.created_at, p.updated_at,
		       pr.slug AS product_slug, pr.name AS product_name
		FROM purchases p
		JOIN products pr ON pr.id = p.product_id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC`

	var purchases []UserPurchase
	if err := r.db.SelectContext(ctx, &purchases, query, userID); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

func (r *repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM purchases GROUP BY status`

	var rows []struct {
		Status Status `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count purchases: %w", err)
	}

	counts := make(map[Status]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
