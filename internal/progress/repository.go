// AngelaMos | 2026
// repository.go

package progress

import (
	"context"
	"fmt"

	"github.com/fertilityflow/portal/internal/core"
)

// Repository upserts keyed by (user, item). The last write wins; there is
// no version column.
type Repository interface {
	UpsertVideo(ctx context.Context, p *VideoProgress) error
	UpsertWorkbook(ctx context.Context, p *WorkbookProgress) error
	ListVideos(ctx context.Context, userID string) ([]VideoProgress, error)
	ListWorkbooks(ctx context.Context, userID string) ([]WorkbookProgress, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) UpsertVideo(ctx context.Context, p *VideoProgress) error {
	query := `
		INSERT INTO user_progress (user_id, video_id, progress_percent, completed, last_watched_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, video_id) DO UPDATE SET
			progress_percent = EXCLUDED.progress_percent,
			completed = EXCLUDED.completed,
			last_watched_at = EXCLUDED.last_watched_at
		RETURNING last_watched_at`

	err := r.db.GetContext(ctx, &p.LastWatchedAt, query,
		p.UserID,
		p.VideoID,
		p.ProgressPercent,
		p.Completed,
	)
	if err != nil {
		return fmt.Errorf("upsert video progress: %w", err)
	}
	return nil
}

func (r *repository) UpsertWorkbook(ctx context.Context, p *WorkbookProgress) error {
	query := `
		INSERT INTO workbook_progress (user_id, workbook_id, last_viewed_page, completed, last_viewed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, workbook_id) DO UPDATE SET
			last_viewed_page = EXCLUDED.last_viewed_page,
			completed = EXCLUDED.completed,
			last_viewed_at = EXCLUDED.last_viewed_at
		RETURNING last_viewed_at`

	err := r.db.GetContext(ctx, &p.LastViewedAt, query,
		p.UserID,
		p.WorkbookID,
		p.LastViewedPage,
		p.Completed,
	)
	if err != nil {
		return fmt.Errorf("upsert workbook progress: %w", err)
	}
	return nil
}

func (r *repository) ListVideos(ctx context.Context, userID string) ([]VideoProgress, error) {
	query := `
		SELECT user_id, video_id, progress_percent, completed, last_watched_at
		FROM user_progress
		WHERE user_id = $1
		ORDER BY last_watched_at DESC`

	var out []VideoProgress
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, fmt.Errorf("list video progress: %w", err)
	}
	return out, nil
}

func (r *repository) ListWorkbooks(ctx context.Context, userID string) ([]WorkbookProgress, error) {
	query := `
		SELECT user_id, workbook_id, last_viewed_page, completed, last_viewed_at
		FROM workbook_progress
		WHERE user_id = $1
		ORDER BY last_viewed_at DESC`

	var out []WorkbookProgress
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, fmt.Errorf("list workbook progress: %w", err)
	}
	return out, nil
}
