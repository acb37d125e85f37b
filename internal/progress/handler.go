// AngelaMos | 2026
// handler.go

package progress

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

type VideoProgressRequest struct {
	ProgressPercent *float64 `json:"progressPercent"`
}

// WorkbookProgressRequest.Completed only counts for PDF workbooks; page-image
// workbooks derive completion from the page.
type WorkbookProgressRequest struct {
	LastViewedPage *int  `json:"lastViewedPage"`
	Completed      *bool `json:"completed,omitempty"`
}

type SavedResponse struct {
	Success   bool `json:"success"`
	Progress  int  `json:"progress"`
	Completed bool `json:"completed"`
}

type VideoProgressResponse struct {
	VideoID         string    `json:"video_id"`
	ProgressPercent int       `json:"progress_percent"`
	Completed       bool      `json:"completed"`
	LastWatchedAt   time.Time `json:"last_watched_at"`
}

type WorkbookProgressResponse struct {
	WorkbookID     string    `json:"workbook_id"`
	LastViewedPage int       `json:"last_viewed_page"`
	Completed      bool      `json:"completed"`
	LastViewedAt   time.Time `json:"last_viewed_at"`
}

type MyProgressResponse struct {
	Videos    []VideoProgressResponse    `json:"videos"`
	Workbooks []WorkbookProgressResponse `json:"workbooks"`
}

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Group(func(r chi.Router) {
		r.Use(authenticator)

		r.Post("/content/videos/{id}/progress", h.RecordVideo)
		r.Post("/content/workbooks/{id}/progress", h.RecordWorkbook)
		r.Get("/progress/me", h.ListMine)
	})
}

func (h *Handler) RecordVideo(w http.ResponseWriter, r *http.Request) {
	var req VideoProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProgressPercent == nil {
		core.BadRequest(w, "progressPercent must be a number")
		return
	}

	userID := middleware.GetUserID(r.Context())
	videoID := chi.URLParam(r, "id")

	p, err := h.tracker.RecordVideoProgress(r.Context(), userID, videoID, *req.ProgressPercent)
	if err != nil {
		h.fail(w, err, "video", videoID, userID)
		return
	}

	core.JSON(w, http.StatusOK, SavedResponse{
		Success:   true,
		Progress:  p.ProgressPercent,
		Completed: p.Completed,
	})
}

func (h *Handler) RecordWorkbook(w http.ResponseWriter, r *http.Request) {
	var req WorkbookProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LastViewedPage == nil {
		core.BadRequest(w, "lastViewedPage must be a whole number")
		return
	}

	userID := middleware.GetUserID(r.Context())
	workbookID := chi.URLParam(r, "id")

	viewerCompleted := req.Completed != nil && *req.Completed
	p, err := h.tracker.RecordWorkbookProgress(r.Context(), userID, workbookID, *req.LastViewedPage, viewerCompleted)
	if err != nil {
		h.fail(w, err, "workbook", workbookID, userID)
		return
	}

	core.JSON(w, http.StatusOK, SavedResponse{
		Success:   true,
		Progress:  p.LastViewedPage,
		Completed: p.Completed,
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error, kind, itemID, userID string) {
	if errors.Is(err, core.ErrNotFound) {
		core.NotFound(w, kind)
		return
	}
	slog.Warn("progress not saved",
		"kind", kind,
		"item_id", itemID,
		"user_id", userID,
		"error", err,
	)
	core.InternalServerError(w, err)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	videos, workbooks, err := h.tracker.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	resp := MyProgressResponse{
		Videos:    make([]VideoProgressResponse, 0, len(videos)),
		Workbooks: make([]WorkbookProgressResponse, 0, len(workbooks)),
	}
	for _, v := range videos {
		resp.Videos = append(resp.Videos, VideoProgressResponse{
			VideoID:         v.VideoID,
			ProgressPercent: v.ProgressPercent,
			Completed:       v.Completed,
			LastWatchedAt:   v.LastWatchedAt,
		})
	}
	for _, wb := range workbooks {
		resp.Workbooks = append(resp.Workbooks, WorkbookProgressResponse{
			WorkbookID:     wb.WorkbookID,
			LastViewedPage: wb.LastViewedPage,
			Completed:      wb.Completed,
			LastViewedAt:   wb.LastViewedAt,
		})
	}

	core.OK(w, resp)
}
