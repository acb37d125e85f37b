// AngelaMos | 2026
// tracker.go

package progress

import (
	"context"
	"math"

	"github.com/fertilityflow/portal/internal/catalog"
)

type ItemFinder interface {
	GetVideo(ctx context.Context, id string) (*catalog.Video, error)
	GetWorkbook(ctx context.Context, id string) (*catalog.Workbook, error)
}

// Tracker records playback and reading positions. Completion is always
// derived from the position.
type Tracker struct {
	repo      Repository
	items     ItemFinder
	threshold int
}

func NewTracker(repo Repository, items ItemFinder, completeThreshold int) *Tracker {
	return &Tracker{repo: repo, items: items, threshold: completeThreshold}
}

func (t *Tracker) RecordVideoProgress(
	ctx context.Context,
	userID, videoID string,
	percent float64,
) (*VideoProgress, error) {
	if _, err := t.items.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}

	pct := ClampPercent(percent)
	p := &VideoProgress{
		UserID:          userID,
		VideoID:         videoID,
		ProgressPercent: pct,
		Completed:       pct >= t.threshold,
	}
	if err := t.repo.UpsertVideo(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordWorkbookProgress derives completion from the page count when the
// workbook has page images. PDF workbooks have no stored page count, so the
// viewer's own completed flag is taken as reported.
func (t *Tracker) RecordWorkbookProgress(
	ctx context.Context,
	userID, workbookID string,
	page int,
	viewerCompleted bool,
) (*WorkbookProgress, error) {
	wb, err := t.items.GetWorkbook(ctx, workbookID)
	if err != nil {
		return nil, err
	}

	total := wb.Pages()
	page = ClampPage(page, total)
	completed := viewerCompleted
	if total > 0 {
		completed = page == total
	}
	p := &WorkbookProgress{
		UserID:         userID,
		WorkbookID:     workbookID,
		LastViewedPage: page,
		Completed:      completed,
	}
	if err := t.repo.UpsertWorkbook(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Tracker) ListForUser(ctx context.Context, userID string) ([]VideoProgress, []WorkbookProgress, error) {
	videos, err := t.repo.ListVideos(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	workbooks, err := t.repo.ListWorkbooks(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return videos, workbooks, nil
}

// ClampPercent rounds to the nearest whole percent within [0, 100].
func ClampPercent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// ClampPage bounds page to [1, total]. An unknown total (0) only applies
// the lower bound.
func ClampPage(page, total int) int {
	if page < 1 {
		page = 1
	}
	if total > 0 && page > total {
		page = total
	}
	return page
}
