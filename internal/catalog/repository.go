// AngelaMos | 2026
// repository.go

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fertilityflow/portal/internal/core"
)

type Repository interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProductByID(ctx context.Context, id string) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	ListVideos(ctx context.Context, productID string) ([]Video, error)
	ListWorkbooks(ctx context.Context, productID string) ([]Workbook, error)
	ListPrintables(ctx context.Context, productID string) ([]Printable, error)
	GetVideo(ctx context.Context, id string) (*Video, error)
	GetWorkbook(ctx context.Context, id string) (*Workbook, error)
	GetWorkbookVideo(ctx context.Context, id string) (*WorkbookVideo, error)
	GetPrintable(ctx context.Context, id string) (*Printable, error)

	UpsertProduct(ctx context.Context, p *Product) error
	UpsertVideo(ctx context.Context, v *Video) error
	UpsertWorkbook(ctx context.Context, w *Workbook) error
	UpsertWorkbookVideo(ctx context.Context, v *WorkbookVideo) error
	UpsertPrintable(ctx context.Context, p *Printable) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const productColumns = `
	id, slug, name, description, price, type, featured, sort_order,
	price_id, payment_plan_price_id, test_price_id, test_payment_plan_price_id,
	created_at, updated_at`

func (r *repository) ListProducts(ctx context.Context) ([]Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		ORDER BY sort_order, name`

	var products []Product
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *repository) GetProductByID(ctx context.Context, id string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.getProduct(ctx, query, id)
}

func (r *repository) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	return r.getProduct(ctx, query, slug)
}

func (r *repository) getProduct(ctx context.Context, query, arg string) (*Product, error) {
	var p Product
	err := r.db.GetContext(ctx, &p, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get product: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *repository) ListVideos(ctx context.Context, productID string) ([]Video, error) {
	query := `
		SELECT id, product_id, title, description, s3_key, duration, sort_order
		FROM videos
		WHERE product_id = $1
		ORDER BY sort_order`

	var videos []Video
	if err := r.db.SelectContext(ctx, &videos, query, productID); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

const workbookColumns = `
	id, product_id, slug, title, description, bonus_only,
	file_key, folder_path, total_pages, sort_order`

func (r *repository) ListWorkbooks(ctx context.Context, productID string) ([]Workbook, error) {
	query := `SELECT ` + workbookColumns + `
		FROM workbooks
		WHERE product_id = $1
		ORDER BY sort_order`

	var workbooks []Workbook
	if err := r.db.SelectContext(ctx, &workbooks, query, productID); err != nil {
		return nil, fmt.Errorf("list workbooks: %w", err)
	}
	return workbooks, nil
}

func (r *repository) ListPrintables(ctx context.Context, productID string) ([]Printable, error) {
	query := `
		SELECT id, product_id, title, description, s3_key, sort_order
		FROM printables
		WHERE product_id = $1
		ORDER BY sort_order`

	var printables []Printable
	if err := r.db.SelectContext(ctx, &printables, query, productID); err != nil {
		return nil, fmt.Errorf("list printables: %w", err)
	}
	return printables, nil
}

func (r *repository) GetVideo(ctx context.Context, id string) (*Video, error) {
	query := `
		SELECT id, product_id, title, description, s3_key, duration, sort_order
		FROM videos
		WHERE id = $1`

	var v Video
	err := r.db.GetContext(ctx, &v, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get video: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return &v, nil
}

func (r *repository) GetWorkbook(ctx context.Context, id string) (*Workbook, error) {
	query := `SELECT ` + workbookColumns + ` FROM workbooks WHERE id = $1`

	var w Workbook
	err := r.db.GetContext(ctx, &w, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get workbook: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workbook: %w", err)
	}
	return &w, nil
}

func (r *repository) GetWorkbookVideo(ctx context.Context, id string) (*WorkbookVideo, error) {
	query := `
		SELECT wv.id, wv.workbook_id, wv.title, wv.s3_key, wv.sort_order,
		       w.product_id, w.bonus_only
		FROM workbook_videos wv
		JOIN workbooks w ON w.id = wv.workbook_id
		WHERE wv.id = $1`

	var v WorkbookVideo
	err := r.db.GetContext(ctx, &v, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get workbook video: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workbook video: %w", err)
	}
	return &v, nil
}

func (r *repository) GetPrintable(ctx context.Context, id string) (*Printable, error) {
	query := `
		SELECT id, product_id, title, description, s3_key, sort_order
		FROM printables
		WHERE id = $1`

	var p Printable
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get printable: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get printable: %w", err)
	}
	return &p, nil
}

// UpsertProduct is keyed by slug. Price IDs left nil keep their stored
// value so a seed without Stripe env does not wipe configured prices.
func (r *repository) UpsertProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (
			id, slug, name, description, price, type, featured, sort_order,
			price_id, payment_plan_price_id, test_price_id, test_payment_plan_price_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			type = EXCLUDED.type,
			featured = EXCLUDED.featured,
			sort_order = EXCLUDED.sort_order,
			price_id = COALESCE(EXCLUDED.price_id, products.price_id),
			payment_plan_price_id = COALESCE(EXCLUDED.payment_plan_price_id, products.payment_plan_price_id),
			test_price_id = COALESCE(EXCLUDED.test_price_id, products.test_price_id),
			test_payment_plan_price_id = COALESCE(EXCLUDED.test_payment_plan_price_id, products.test_payment_plan_price_id),
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.GetContext(ctx, p, query,
		p.ID, p.Slug, p.Name, p.Description, p.Price, p.Type, p.Featured, p.SortOrder,
		p.PriceID, p.PaymentPlanPriceID, p.TestPriceID, p.TestPaymentPlanPriceID,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.Slug, err)
	}
	return nil
}

func (r *repository) UpsertVideo(ctx context.Context, v *Video) error {
	query := `
		INSERT INTO videos (id, product_id, title, description, s3_key, duration, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			s3_key = EXCLUDED.s3_key,
			duration = EXCLUDED.duration,
			sort_order = EXCLUDED.sort_order`

	if _, err := r.db.ExecContext(ctx, query,
		v.ID, v.ProductID, v.Title, v.Description, v.Key, v.Duration, v.SortOrder,
	); err != nil {
		return fmt.Errorf("upsert video %s: %w", v.ID, err)
	}
	return nil
}

func (r *repository) UpsertWorkbook(ctx context.Context, w *Workbook) error {
	query := `
		INSERT INTO workbooks (
			id, product_id, slug, title, description, bonus_only,
			file_key, folder_path, total_pages, sort_order
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			slug = EXCLUDED.slug,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			bonus_only = EXCLUDED.bonus_only,
			file_key = EXCLUDED.file_key,
			folder_path = EXCLUDED.folder_path,
			total_pages = EXCLUDED.total_pages,
			sort_order = EXCLUDED.sort_order`

	if _, err := r.db.ExecContext(ctx, query,
		w.ID, w.ProductID, w.Slug, w.Title, w.Description, w.BonusOnly,
		w.FileKey, w.FolderPath, w.TotalPages, w.SortOrder,
	); err != nil {
		return fmt.Errorf("upsert workbook %s: %w", w.ID, err)
	}
	return nil
}

func (r *repository) UpsertWorkbookVideo(ctx context.Context, v *WorkbookVideo) error {
	query := `
		INSERT INTO workbook_videos (id, workbook_id, title, s3_key, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			workbook_id = EXCLUDED.workbook_id,
			title = EXCLUDED.title,
			s3_key = EXCLUDED.s3_key,
			sort_order = EXCLUDED.sort_order`

	if _, err := r.db.ExecContext(ctx, query,
		v.ID, v.WorkbookID, v.Title, v.Key, v.SortOrder,
	); err != nil {
		return fmt.Errorf("upsert workbook video %s: %w", v.ID, err)
	}
	return nil
}

func (r *repository) UpsertPrintable(ctx context.Context, p *Printable) error {
	query := `
		INSERT INTO printables (id, product_id, title, description, s3_key, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			s3_key = EXCLUDED.s3_key,
			sort_order = EXCLUDED.sort_order`

	if _, err := r.db.ExecContext(ctx, query,
		p.ID, p.ProductID, p.Title, p.Description, p.Key, p.SortOrder,
	); err != nil {
		return fmt.Errorf("upsert printable %s: %w", p.ID, err)
	}
	return nil
}
