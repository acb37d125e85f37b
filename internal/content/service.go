// AngelaMos | 2026
// service.go

package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/metrics"
)

var (
	ErrNoPages = fmt.Errorf("%w: workbook has no page images", core.ErrNotFound)
	ErrNoPDF   = fmt.Errorf("%w: workbook has no pdf", core.ErrNotFound)
	ErrNoGuide = fmt.Errorf("%w: no guide for program", core.ErrNotFound)
)

const pageSignConcurrency = 8

type Catalog interface {
	GetProductByID(ctx context.Context, id string) (*catalog.Product, error)
	GetVideo(ctx context.Context, id string) (*catalog.Video, error)
	GetWorkbook(ctx context.Context, id string) (*catalog.Workbook, error)
	GetWorkbookVideo(ctx context.Context, id string) (*catalog.WorkbookVideo, error)
	GetPrintable(ctx context.Context, id string) (*catalog.Printable, error)
}

type Gate interface {
	Require(ctx context.Context, userID, productID string, bonus bool) error
}

type Signer interface {
	SignedURL(ctx context.Context, key string) (string, error)
	GuideKey(slug string) (string, bool)
}

type PageKeyFunc func(folder string, totalPages int) []string

// Service hands out signed object URLs. Every protected item goes through
// the Gate before a URL is produced.
type Service struct {
	catalog  Catalog
	gate     Gate
	signer   Signer
	pageKeys PageKeyFunc
}

func NewService(cat Catalog, gate Gate, signer Signer, pageKeys PageKeyFunc) *Service {
	return &Service{
		catalog:  cat,
		gate:     gate,
		signer:   signer,
		pageKeys: pageKeys,
	}
}

func (s *Service) VideoURL(ctx context.Context, userID, videoID string) (string, error) {
	v, err := s.catalog.GetVideo(ctx, videoID)
	if err != nil {
		return "", err
	}
	if err := s.require(ctx, "video", userID, v.ProductID, false); err != nil {
		return "", err
	}
	return s.signer.SignedURL(ctx, v.Key)
}

// WorkbookVideoURL inherits the bonus flag of the parent workbook.
func (s *Service) WorkbookVideoURL(ctx context.Context, userID, id string) (string, error) {
	v, err := s.catalog.GetWorkbookVideo(ctx, id)
	if err != nil {
		return "", err
	}
	if err := s.require(ctx, "workbook_video", userID, v.ProductID, v.BonusOnly); err != nil {
		return "", err
	}
	return s.signer.SignedURL(ctx, v.Key)
}

func (s *Service) WorkbookPages(
	ctx context.Context,
	userID, workbookID string,
) (*catalog.Workbook, []string, error) {
	wb, err := s.catalog.GetWorkbook(ctx, workbookID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.require(ctx, "workbook_pages", userID, wb.ProductID, wb.BonusOnly); err != nil {
		return nil, nil, err
	}
	if !wb.HasPages() {
		return nil, nil, ErrNoPages
	}

	keys := s.pageKeys(*wb.FolderPath, wb.Pages())
	urls := make([]string, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageSignConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			u, err := s.signer.SignedURL(gctx, key)
			if err != nil {
				return err
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("sign workbook pages: %w", err)
	}

	return wb, urls, nil
}

func (s *Service) WorkbookPDF(
	ctx context.Context,
	userID, workbookID string,
) (*catalog.Workbook, string, error) {
	wb, err := s.catalog.GetWorkbook(ctx, workbookID)
	if err != nil {
		return nil, "", err
	}
	if err := s.require(ctx, "workbook_pdf", userID, wb.ProductID, wb.BonusOnly); err != nil {
		return nil, "", err
	}
	if !wb.HasPDF() {
		return nil, "", ErrNoPDF
	}

	u, err := s.signer.SignedURL(ctx, *wb.FileKey)
	if err != nil {
		return nil, "", err
	}
	return wb, u, nil
}

// PrintableURL also returns the owning product so a refused caller can be
// sent to its sales page.
func (s *Service) PrintableURL(
	ctx context.Context,
	userID, printableID string,
) (string, *catalog.Product, error) {
	p, err := s.catalog.GetPrintable(ctx, printableID)
	if err != nil {
		return "", nil, err
	}
	product, err := s.catalog.GetProductByID(ctx, p.ProductID)
	if err != nil {
		return "", nil, fmt.Errorf("printable %s product: %w", printableID, err)
	}
	if err := s.require(ctx, "printable", userID, p.ProductID, false); err != nil {
		return "", product, err
	}

	u, err := s.signer.SignedURL(ctx, p.Key)
	if err != nil {
		return "", product, err
	}
	return u, product, nil
}

// GuideURL serves the public lead-magnet PDF for a program slug.
func (s *Service) GuideURL(ctx context.Context, slug string) (string, error) {
	key, ok := s.signer.GuideKey(slug)
	if !ok {
		return "", ErrNoGuide
	}
	return s.signer.SignedURL(ctx, key)
}

func (s *Service) require(ctx context.Context, resource, userID, productID string, bonus bool) error {
	err := s.gate.Require(ctx, userID, productID, bonus)
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrForbidden) {
		metrics.EntitlementDenials.WithLabelValues(resource).Inc()
		slog.DebugContext(ctx, "content access refused",
			"resource", resource,
			"user_id", userID,
			"product_id", productID,
			"bonus", bonus,
		)
	}
	return err
}
