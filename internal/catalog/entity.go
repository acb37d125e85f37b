// AngelaMos | 2026
// entity.go

package catalog

import (
	"time"

	"github.com/fertilityflow/portal/internal/config"
)

type ProductType string

const (
	TypeFreeWorkshop    ProductType = "FREE_WORKSHOP"
	TypeFreeResource    ProductType = "FREE_RESOURCE"
	TypePaidProgram     ProductType = "PAID_PROGRAM"
	TypePaidPlanProgram ProductType = "PAID_PLAN_PROGRAM"
)

func (t ProductType) Valid() bool {
	switch t {
	case TypeFreeWorkshop, TypeFreeResource, TypePaidProgram, TypePaidPlanProgram:
		return true
	}
	return false
}

// PriceType is the checkout option a buyer picked.
type PriceType string

const (
	PriceOneTime     PriceType = "one-time"
	PricePaymentPlan PriceType = "payment-plan"
)

func ParsePriceType(s string) (PriceType, bool) {
	switch PriceType(s) {
	case "", PriceOneTime:
		return PriceOneTime, true
	case PricePaymentPlan:
		return PricePaymentPlan, true
	}
	return "", false
}

type Product struct {
	ID                     string      `db:"id"`
	Slug                   string      `db:"slug"`
	Name                   string      `db:"name"`
	Description            string      `db:"description"`
	Price                  int64       `db:"price"`
	Type                   ProductType `db:"type"`
	Featured               bool        `db:"featured"`
	SortOrder              int         `db:"sort_order"`
	PriceID                *string     `db:"price_id"`
	PaymentPlanPriceID     *string     `db:"payment_plan_price_id"`
	TestPriceID            *string     `db:"test_price_id"`
	TestPaymentPlanPriceID *string     `db:"test_payment_plan_price_id"`
	CreatedAt              time.Time   `db:"created_at"`
	UpdatedAt              time.Time   `db:"updated_at"`
}

// IsFree reports whether the product is claimed rather than bought. It
// never grants access by itself; a FREE purchase must still exist.
func (p *Product) IsFree() bool {
	return p.Price == 0 &&
		(p.Type == TypeFreeWorkshop || p.Type == TypeFreeResource)
}

// StripePriceID returns the configured price for mode and price type, or
// "" when that combination has not been set up.
func (p *Product) StripePriceID(mode config.Mode, priceType PriceType) string {
	var id *string
	switch {
	case mode.IsTest() && priceType == PricePaymentPlan:
		id = p.TestPaymentPlanPriceID
	case mode.IsTest():
		id = p.TestPriceID
	case priceType == PricePaymentPlan:
		id = p.PaymentPlanPriceID
	default:
		id = p.PriceID
	}
	if id == nil {
		return ""
	}
	return *id
}

type Video struct {
	ID          string `db:"id"`
	ProductID   string `db:"product_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Key         string `db:"s3_key"`
	Duration    int    `db:"duration"`
	SortOrder   int    `db:"sort_order"`
}

// Workbook content is either a single PDF (FileKey) or a folder of page
// images (FolderPath with TotalPages).
type Workbook struct {
	ID          string  `db:"id"`
	ProductID   string  `db:"product_id"`
	Slug        string  `db:"slug"`
	Title       string  `db:"title"`
	Description string  `db:"description"`
	BonusOnly   bool    `db:"bonus_only"`
	FileKey     *string `db:"file_key"`
	FolderPath  *string `db:"folder_path"`
	TotalPages  *int    `db:"total_pages"`
	SortOrder   int     `db:"sort_order"`
}

func (w *Workbook) HasPDF() bool {
	return w.FileKey != nil && *w.FileKey != ""
}

func (w *Workbook) HasPages() bool {
	return w.FolderPath != nil && *w.FolderPath != "" &&
		w.TotalPages != nil && *w.TotalPages > 0
}

// Pages is the page count, or 0 when the workbook has no page images.
func (w *Workbook) Pages() int {
	if w.TotalPages == nil {
		return 0
	}
	return *w.TotalPages
}

// WorkbookVideo is a video attached to a workbook. ProductID and BonusOnly
// are joined from the parent workbook.
type WorkbookVideo struct {
	ID         string `db:"id"`
	WorkbookID string `db:"workbook_id"`
	Title      string `db:"title"`
	Key        string `db:"s3_key"`
	SortOrder  int    `db:"sort_order"`
	ProductID  string `db:"product_id"`
	BonusOnly  bool   `db:"bonus_only"`
}

type Printable struct {
	ID          string `db:"id"`
	ProductID   string `db:"product_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Key         string `db:"s3_key"`
	SortOrder   int    `db:"sort_order"`
}
