// AngelaMos | 2026
// seed.go

package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML catalog consumed by `portalctl catalog seed`.
// Price IDs may reference environment variables as ${NAME}.
type SeedFile struct {
	Products []SeedProduct `yaml:"products"`
}

type SeedProduct struct {
	Slug        string          `yaml:"slug"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Price       int64           `yaml:"price"`
	Type        ProductType     `yaml:"type"`
	Featured    bool            `yaml:"featured"`
	Prices      SeedPrices      `yaml:"prices"`
	Videos      []SeedVideo     `yaml:"videos"`
	Workbooks   []SeedWorkbook  `yaml:"workbooks"`
	Printables  []SeedPrintable `yaml:"printables"`
}

type SeedPrices struct {
	LiveOneTime string `yaml:"live_one_time"`
	LivePlan    string `yaml:"live_plan"`
	TestOneTime string `yaml:"test_one_time"`
	TestPlan    string `yaml:"test_plan"`
}

type SeedVideo struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Key         string `yaml:"key"`
	Duration    int    `yaml:"duration"`
}

type SeedWorkbook struct {
	ID          string      `yaml:"id"`
	Slug        string      `yaml:"slug"`
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	BonusOnly   bool        `yaml:"bonus_only"`
	FileKey     string      `yaml:"file_key"`
	FolderPath  string      `yaml:"folder_path"`
	TotalPages  int         `yaml:"total_pages"`
	Videos      []SeedVideo `yaml:"videos"`
}

type SeedPrintable struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Key         string `yaml:"key"`
}

type SeedResult struct {
	Products       int
	Videos         int
	Workbooks      int
	WorkbookVideos int
	Printables     int
}

func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}

	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *SeedFile) validate() error {
	slugs := make(map[string]bool, len(s.Products))
	for i, p := range s.Products {
		if p.Slug == "" || p.Name == "" {
			return fmt.Errorf("product %d: slug and name are required", i+1)
		}
		if slugs[p.Slug] {
			return fmt.Errorf("product %s: duplicate slug", p.Slug)
		}
		slugs[p.Slug] = true

		if !p.Type.Valid() {
			return fmt.Errorf("product %s: unknown type %q", p.Slug, p.Type)
		}
		if p.Price < 0 {
			return fmt.Errorf("product %s: negative price", p.Slug)
		}

		for _, w := range p.Workbooks {
			if w.ID == "" {
				return fmt.Errorf("product %s: workbook id is required", p.Slug)
			}
			if w.FileKey != "" && w.FolderPath != "" {
				return fmt.Errorf("workbook %s: file_key and folder_path are exclusive", w.ID)
			}
			if w.FolderPath != "" && w.TotalPages < 1 {
				return fmt.Errorf("workbook %s: folder_path needs total_pages", w.ID)
			}
		}
	}
	return nil
}

// Seed upserts every product and its content. Run it inside a transaction
// so a bad row leaves the catalog untouched.
func Seed(ctx context.Context, repo Repository, seed *SeedFile) (SeedResult, error) {
	var res SeedResult

	for i, sp := range seed.Products {
		product := &Product{
			ID:                     uuid.New().String(),
			Slug:                   sp.Slug,
			Name:                   sp.Name,
			Description:            sp.Description,
			Price:                  sp.Price,
			Type:                   sp.Type,
			Featured:               sp.Featured,
			SortOrder:              i + 1,
			PriceID:                envString(sp.Prices.LiveOneTime),
			PaymentPlanPriceID:     envString(sp.Prices.LivePlan),
			TestPriceID:            envString(sp.Prices.TestOneTime),
			TestPaymentPlanPriceID: envString(sp.Prices.TestPlan),
		}
		if err := repo.UpsertProduct(ctx, product); err != nil {
			return res, err
		}
		res.Products++

		for j, sv := range sp.Videos {
			if err := repo.UpsertVideo(ctx, &Video{
				ID:          sv.ID,
				ProductID:   product.ID,
				Title:       sv.Title,
				Description: sv.Description,
				Key:         sv.Key,
				Duration:    sv.Duration,
				SortOrder:   j + 1,
			}); err != nil {
				return res, err
			}
			res.Videos++
		}

		for j, sw := range sp.Workbooks {
			wb := &Workbook{
				ID:          sw.ID,
				ProductID:   product.ID,
				Slug:        sw.Slug,
				Title:       sw.Title,
				Description: sw.Description,
				BonusOnly:   sw.BonusOnly,
				FileKey:     optional(sw.FileKey),
				FolderPath:  optional(sw.FolderPath),
				SortOrder:   j + 1,
			}
			if sw.TotalPages > 0 {
				pages := sw.TotalPages
				wb.TotalPages = &pages
			}
			if err := repo.UpsertWorkbook(ctx, wb); err != nil {
				return res, err
			}
			res.Workbooks++

			for k, sv := range sw.Videos {
				if err := repo.UpsertWorkbookVideo(ctx, &WorkbookVideo{
					ID:         sv.ID,
					WorkbookID: wb.ID,
					Title:      sv.Title,
					Key:        sv.Key,
					SortOrder:  k + 1,
				}); err != nil {
					return res, err
				}
				res.WorkbookVideos++
			}
		}

		for j, spr := range sp.Printables {
			if err := repo.UpsertPrintable(ctx, &Printable{
				ID:          spr.ID,
				ProductID:   product.ID,
				Title:       spr.Title,
				Description: spr.Description,
				Key:         spr.Key,
				SortOrder:   j + 1,
			}); err != nil {
				return res, err
			}
			res.Printables++
		}
	}

	return res, nil
}

func envString(v string) *string {
	return optional(os.ExpandEnv(v))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
