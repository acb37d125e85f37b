// AngelaMos | 2026
// store.go

// Package purchasetest provides an in-memory purchase repository that
// enforces the same uniqueness rules as the Postgres schema.
package purchasetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/purchase"
)

type Store struct {
	mu        sync.Mutex
	rows      []purchase.Purchase
	now       time.Time
	CreateErr error
}

func NewStore() *Store {
	return &Store{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *Store) Create(_ context.Context, p *purchase.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return s.CreateErr
	}

	for _, row := range s.rows {
		if p.StripeSessionID != nil && row.StripeSessionID != nil &&
			*row.StripeSessionID == *p.StripeSessionID {
			return core.ErrDuplicateKey
		}
		if p.Type() == purchase.PaymentFree && row.Type() == purchase.PaymentFree &&
			row.UserID == p.UserID && row.ProductID == p.ProductID {
			return core.ErrDuplicateKey
		}
	}

	s.now = s.now.Add(time.Second)
	p.CreatedAt = s.now
	p.UpdatedAt = s.now
	s.rows = append(s.rows, *p)
	return nil
}

func (s *Store) FindLatestCompleted(_ context.Context, userID, productID string) (*purchase.Purchase, error) {
	return s.latest(func(p *purchase.Purchase) bool {
		return p.UserID == userID && p.ProductID == productID && p.IsCompleted()
	})
}

func (s *Store) FindBySessionID(_ context.Context, sessionID string) (*purchase.Purchase, error) {
	return s.latest(func(p *purchase.Purchase) bool {
		return p.StripeSessionID != nil && *p.StripeSessionID == sessionID
	})
}

func (s *Store) FindBySubscriptionID(_ context.Context, subscriptionID string) (*purchase.Purchase, error) {
	return s.latest(func(p *purchase.Purchase) bool {
		return p.StripeSubscriptionID != nil &&
			*p.StripeSubscriptionID == subscriptionID && p.IsCompleted()
	})
}

func (s *Store) latest(match func(*purchase.Purchase) bool) (*purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.rows) - 1; i >= 0; i-- {
		if match(&s.rows[i]) {
			p := s.rows[i]
			return &p, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) MarkPlanComplete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		if s.rows[i].ID == id && !s.rows[i].PlanComplete {
			s.rows[i].PlanComplete = true
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]purchase.UserPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []purchase.UserPurchase
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, purchase.UserPurchase{Purchase: row})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CountByStatus(context.Context) (map[purchase.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[purchase.Status]int{}
	for _, row := range s.rows {
		counts[row.Status]++
	}
	return counts, nil
}

// Rows returns a copy of every stored purchase in insertion order.
func (s *Store) Rows() []purchase.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]purchase.Purchase(nil), s.rows...)
}

// Add stores p without uniqueness checks, for seeding fixtures.
func (s *Store) Add(p purchase.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = s.now.Add(time.Second)
	p.CreatedAt = s.now
	s.rows = append(s.rows, p)
}
