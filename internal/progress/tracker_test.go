// AngelaMos | 2026
// tracker_test.go

package progress

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

type fakeItems struct {
	videos    map[string]*catalog.Video
	workbooks map[string]*catalog.Workbook
}

func (f *fakeItems) GetVideo(_ context.Context, id string) (*catalog.Video, error) {
	if v, ok := f.videos[id]; ok {
		return v, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakeItems) GetWorkbook(_ context.Context, id string) (*catalog.Workbook, error) {
	if w, ok := f.workbooks[id]; ok {
		return w, nil
	}
	return nil, core.ErrNotFound
}

type memRepo struct {
	videos    map[string]VideoProgress
	workbooks map[string]WorkbookProgress
}

func newMemRepo() *memRepo {
	return &memRepo{
		videos:    map[string]VideoProgress{},
		workbooks: map[string]WorkbookProgress{},
	}
}

func (m *memRepo) UpsertVideo(_ context.Context, p *VideoProgress) error {
	m.videos[p.UserID+"/"+p.VideoID] = *p
	return nil
}

func (m *memRepo) UpsertWorkbook(_ context.Context, p *WorkbookProgress) error {
	m.workbooks[p.UserID+"/"+p.WorkbookID] = *p
	return nil
}

func (m *memRepo) ListVideos(_ context.Context, userID string) ([]VideoProgress, error) {
	var out []VideoProgress
	for _, v := range m.videos {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memRepo) ListWorkbooks(_ context.Context, userID string) ([]WorkbookProgress, error) {
	var out []WorkbookProgress
	for _, w := range m.workbooks {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func newTracker() (*Tracker, *memRepo) {
	pages := 12
	folder := "workbooks/intro"
	pdf := "workbooks/guide.pdf"
	items := &fakeItems{
		videos: map[string]*catalog.Video{"vid-1": {ID: "vid-1", ProductID: "prod-1"}},
		workbooks: map[string]*catalog.Workbook{
			"wb-1":   {ID: "wb-1", ProductID: "prod-1", FolderPath: &folder, TotalPages: &pages},
			"wb-pdf": {ID: "wb-pdf", ProductID: "prod-1", FileKey: &pdf},
		},
	}
	repo := newMemRepo()
	return NewTracker(repo, items, 90), repo
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-5, 0},
		{0, 0},
		{42.4, 42},
		{42.5, 43},
		{89.6, 90},
		{100, 100},
		{150, 100},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ClampPercent(tt.in); got != tt.want {
			t.Errorf("ClampPercent(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, total, want int
	}{
		{0, 12, 1},
		{-3, 12, 1},
		{5, 12, 5},
		{40, 12, 12},
		{40, 0, 40},
	}
	for _, tt := range tests {
		if got := ClampPage(tt.page, tt.total); got != tt.want {
			t.Errorf("ClampPage(%d, %d) = %d, want %d", tt.page, tt.total, got, tt.want)
		}
	}
}

func TestRecordVideoProgress(t *testing.T) {
	tr, repo := newTracker()
	ctx := context.Background()

	p, err := tr.RecordVideoProgress(ctx, "user-1", "vid-1", 89.4)
	if err != nil {
		t.Fatalf("RecordVideoProgress() error = %v", err)
	}
	if p.ProgressPercent != 89 || p.Completed {
		t.Errorf("89.4%% = (%d, %v), want (89, false)", p.ProgressPercent, p.Completed)
	}

	p, err = tr.RecordVideoProgress(ctx, "user-1", "vid-1", 150)
	if err != nil {
		t.Fatalf("RecordVideoProgress() error = %v", err)
	}
	if p.ProgressPercent != 100 || !p.Completed {
		t.Errorf("150%% = (%d, %v), want (100, true)", p.ProgressPercent, p.Completed)
	}

	// Rewinding reopens the video; completion follows the latest position.
	if _, err := tr.RecordVideoProgress(ctx, "user-1", "vid-1", 10); err != nil {
		t.Fatalf("RecordVideoProgress() error = %v", err)
	}
	if got := repo.videos["user-1/vid-1"]; got.ProgressPercent != 10 || got.Completed {
		t.Errorf("stored = %+v, want 10%% not completed", got)
	}
}

func TestRecordVideoProgressUnknownVideo(t *testing.T) {
	tr, repo := newTracker()

	_, err := tr.RecordVideoProgress(context.Background(), "user-1", "missing", 50)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if len(repo.videos) != 0 {
		t.Error("progress stored for unknown video")
	}
}

func TestRecordWorkbookProgress(t *testing.T) {
	tr, _ := newTracker()
	ctx := context.Background()

	tests := []struct {
		name          string
		workbook      string
		page          int
		viewerDone    bool
		wantPage      int
		wantCompleted bool
	}{
		{"middle page", "wb-1", 5, false, 5, false},
		{"last page completes", "wb-1", 12, false, 12, true},
		{"past the end clamps and completes", "wb-1", 99, false, 12, true},
		{"below one clamps", "wb-1", 0, false, 1, false},
		{"viewer flag cannot complete page images", "wb-1", 3, true, 3, false},
		{"pdf first page", "wb-pdf", 1, false, 1, false},
		{"pdf middle page", "wb-pdf", 12, false, 12, false},
		{"pdf completes when viewer reports last page", "wb-pdf", 40, true, 40, true},
		{"pdf page has no upper bound", "wb-pdf", 1000, true, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tr.RecordWorkbookProgress(ctx, "user-1", tt.workbook, tt.page, tt.viewerDone)
			if err != nil {
				t.Fatalf("RecordWorkbookProgress() error = %v", err)
			}
			if p.LastViewedPage != tt.wantPage || p.Completed != tt.wantCompleted {
				t.Errorf("got (%d, %v), want (%d, %v)",
					p.LastViewedPage, p.Completed, tt.wantPage, tt.wantCompleted)
			}
		})
	}
}

func TestRecordWorkbookProgressUnknownWorkbook(t *testing.T) {
	tr, _ := newTracker()

	_, err := tr.RecordWorkbookProgress(context.Background(), "user-1", "missing", 1, false)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func serve(t *testing.T, tr *Tracker, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	NewHandler(tr).RegisterRoutes(r, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), "user-1", "user")))
		})
	})

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerVideoProgress(t *testing.T) {
	tr, _ := newTracker()

	rec := serve(t, tr, http.MethodPost, "/content/videos/vid-1/progress", `{"progressPercent":95.2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp SavedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Progress != 95 || !resp.Completed {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandlerVideoProgressRejectsBadBody(t *testing.T) {
	tr, _ := newTracker()

	for _, body := range []string{`{}`, `{"progressPercent":"ninety"}`, `not json`} {
		rec := serve(t, tr, http.MethodPost, "/content/videos/vid-1/progress", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHandlerWorkbookProgressIgnoresClientCompleted(t *testing.T) {
	tr, repo := newTracker()

	rec := serve(t, tr, http.MethodPost, "/content/workbooks/wb-1/progress",
		`{"lastViewedPage":3,"completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if repo.workbooks["user-1/wb-1"].Completed {
		t.Error("client completed flag was trusted")
	}
}

func TestHandlerPDFWorkbookTakesViewerCompleted(t *testing.T) {
	tr, repo := newTracker()

	rec := serve(t, tr, http.MethodPost, "/content/workbooks/wb-pdf/progress",
		`{"lastViewedPage":40,"completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp SavedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Completed || !repo.workbooks["user-1/wb-pdf"].Completed {
		t.Errorf("pdf workbook not completed: response %+v", resp)
	}
}

func TestHandlerUnknownItemIs404(t *testing.T) {
	tr, _ := newTracker()

	rec := serve(t, tr, http.MethodPost, "/content/videos/nope/progress", `{"progressPercent":10}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandlerListMine(t *testing.T) {
	tr, _ := newTracker()
	ctx := context.Background()
	if _, err := tr.RecordVideoProgress(ctx, "user-1", "vid-1", 40); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.RecordVideoProgress(ctx, "user-2", "vid-1", 70); err != nil {
		t.Fatal(err)
	}

	rec := serve(t, tr, http.MethodGet, "/progress/me", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var env struct {
		Data MyProgressResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Videos) != 1 || env.Data.Videos[0].ProgressPercent != 40 {
		t.Errorf("videos = %+v, want only user-1's 40%%", env.Data.Videos)
	}
}
