// AngelaMos | 2026
// dto.go

package catalog

type ProgramResponse struct {
	ID          string      `json:"id"`
	Slug        string      `json:"slug"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       int64       `json:"price"`
	Type        ProductType `json:"type"`
	Featured    bool        `json:"featured"`
	HasPlan     bool        `json:"has_plan"`
	Access      string      `json:"access,omitempty"`
}

type VideoResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

type WorkbookResponse struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	BonusOnly   bool   `json:"bonus_only"`
	Format      string `json:"format"`
	TotalPages  int    `json:"total_pages,omitempty"`
}

type PrintableResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ProgramDetailResponse struct {
	ProgramResponse
	Videos     []VideoResponse     `json:"videos"`
	Workbooks  []WorkbookResponse  `json:"workbooks"`
	Printables []PrintableResponse `json:"printables"`
}

// ToProgramResponse never exposes object-store keys or price IDs.
func ToProgramResponse(p *Product) ProgramResponse {
	return ProgramResponse{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Type:        p.Type,
		Featured:    p.Featured,
		HasPlan:     p.PaymentPlanPriceID != nil || p.TestPaymentPlanPriceID != nil,
	}
}

func ToProgramDetailResponse(p *Program) ProgramDetailResponse {
	resp := ProgramDetailResponse{
		ProgramResponse: ToProgramResponse(p.Product),
		Videos:          make([]VideoResponse, 0, len(p.Videos)),
		Workbooks:       make([]WorkbookResponse, 0, len(p.Workbooks)),
		Printables:      make([]PrintableResponse, 0, len(p.Printables)),
	}

	for _, v := range p.Videos {
		resp.Videos = append(resp.Videos, VideoResponse{
			ID:          v.ID,
			Title:       v.Title,
			Description: v.Description,
			Duration:    v.Duration,
		})
	}

	for _, w := range p.Workbooks {
		format := "pages"
		if w.HasPDF() {
			format = "pdf"
		}
		resp.Workbooks = append(resp.Workbooks, WorkbookResponse{
			ID:          w.ID,
			Slug:        w.Slug,
			Title:       w.Title,
			Description: w.Description,
			BonusOnly:   w.BonusOnly,
			Format:      format,
			TotalPages:  w.Pages(),
		})
	}

	for _, pr := range p.Printables {
		resp.Printables = append(resp.Printables, PrintableResponse{
			ID:          pr.ID,
			Title:       pr.Title,
			Description: pr.Description,
		})
	}

	return resp
}
