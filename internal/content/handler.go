// AngelaMos | 2026
// handler.go

package content

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/entitlement"
	"github.com/fertilityflow/portal/internal/middleware"
)

type URLResponse struct {
	URL string `json:"url"`
}

type WorkbookSummary struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	TotalPages int    `json:"total_pages"`
	BonusOnly  bool   `json:"bonus_only"`
}

type PagesResponse struct {
	Workbook WorkbookSummary `json:"workbook"`
	Pages    []string        `json:"pages"`
}

type PDFResponse struct {
	URL      string          `json:"url"`
	Workbook WorkbookSummary `json:"workbook"`
}

type Handler struct {
	service   *Service
	publicURL string
}

func NewHandler(service *Service, publicURL string) *Handler {
	return &Handler{service: service, publicURL: publicURL}
}

// RegisterRoutes mounts the JSON endpoints behind auth. Printable downloads
// and guides are plain browser links so they answer with redirects.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, optionalAuth func(http.Handler) http.Handler,
) {
	r.Route("/content", func(r chi.Router) {
		r.Get("/guides/{slug}", h.Guide)
		r.With(optionalAuth).Get("/printables/{id}/download", h.Printable)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)

			r.Get("/videos/{id}/url", h.VideoURL)
			r.Get("/workbook-videos/{id}/url", h.WorkbookVideoURL)
			r.Get("/workbooks/{id}/pages", h.WorkbookPages)
			r.Get("/workbooks/{id}/pdf", h.WorkbookPDF)
		})
	})
}

func (h *Handler) VideoURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.VideoURL(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "video")
		return
	}
	core.OK(w, URLResponse{URL: u})
}

func (h *Handler) WorkbookVideoURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.WorkbookVideoURL(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "workbook video")
		return
	}
	core.OK(w, URLResponse{URL: u})
}

func (h *Handler) WorkbookPages(w http.ResponseWriter, r *http.Request) {
	wb, pages, err := h.service.WorkbookPages(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "workbook")
		return
	}
	core.OK(w, PagesResponse{
		Workbook: WorkbookSummary{
			ID:         wb.ID,
			Slug:       wb.Slug,
			Title:      wb.Title,
			TotalPages: wb.Pages(),
			BonusOnly:  wb.BonusOnly,
		},
		Pages: pages,
	})
}

func (h *Handler) WorkbookPDF(w http.ResponseWriter, r *http.Request) {
	wb, u, err := h.service.WorkbookPDF(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "workbook")
		return
	}
	core.OK(w, PDFResponse{
		URL: u,
		Workbook: WorkbookSummary{
			ID:         wb.ID,
			Slug:       wb.Slug,
			Title:      wb.Title,
			TotalPages: wb.Pages(),
			BonusOnly:  wb.BonusOnly,
		},
	})
}

func (h *Handler) Printable(w http.ResponseWriter, r *http.Request) {
	origin := core.RequestOrigin(r, h.publicURL)
	userID := middleware.GetUserID(r.Context())

	u, product, err := h.service.PrintableURL(r.Context(), userID, chi.URLParam(r, "id"))
	switch {
	case err == nil:
		http.Redirect(w, r, u, http.StatusFound)
	case errors.Is(err, core.ErrForbidden) && userID == "":
		target := origin + "/auth/login?redirect=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusSeeOther)
	case errors.Is(err, core.ErrForbidden) && product != nil:
		http.Redirect(w, r, origin+"/programs/"+product.Slug, http.StatusSeeOther)
	default:
		writeError(w, err, "printable")
	}
}

func (h *Handler) Guide(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GuideURL(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err, "guide")
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func writeError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, entitlement.ErrBonusLocked):
		core.JSONError(w, core.NewAppError(err,
			"Bonus content unlocks once your plan is paid in full",
			http.StatusForbidden, "BONUS_LOCKED"))
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "Purchase required to access this content")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, resource)
	default:
		core.InternalServerError(w, err)
	}
}
