// AngelaMos | 2026
// service.go

package catalog

import (
	"context"
	"fmt"
)

type Program struct {
	Product    *Product
	Videos     []Video
	Workbooks  []Workbook
	Printables []Printable
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListPrograms(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProgram(ctx context.Context, slug string) (*Program, error) {
	product, err := s.repo.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	videos, err := s.repo.ListVideos(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", slug, err)
	}

	workbooks, err := s.repo.ListWorkbooks(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", slug, err)
	}

	printables, err := s.repo.ListPrintables(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", slug, err)
	}

	return &Program{
		Product:    product,
		Videos:     videos,
		Workbooks:  workbooks,
		Printables: printables,
	}, nil
}

func (s *Service) GetProductByID(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

func (s *Service) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	return s.repo.GetProductBySlug(ctx, slug)
}

func (s *Service) GetVideo(ctx context.Context, id string) (*Video, error) {
	return s.repo.GetVideo(ctx, id)
}

func (s *Service) GetWorkbook(ctx context.Context, id string) (*Workbook, error) {
	return s.repo.GetWorkbook(ctx, id)
}

func (s *Service) GetWorkbookVideo(ctx context.Context, id string) (*WorkbookVideo, error) {
	return s.repo.GetWorkbookVideo(ctx, id)
}

func (s *Service) GetPrintable(ctx context.Context, id string) (*Printable, error) {
	return s.repo.GetPrintable(ctx, id)
}
