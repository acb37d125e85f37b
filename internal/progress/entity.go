// AngelaMos | 2026
// entity.go

package progress

import (
	"time"
)

type VideoProgress struct {
	UserID          string    `db:"user_id"`
	VideoID         string    `db:"video_id"`
	ProgressPercent int       `db:"progress_percent"`
	Completed       bool      `db:"completed"`
	LastWatchedAt   time.Time `db:"last_watched_at"`
}

type WorkbookProgress struct {
	UserID         string    `db:"user_id"`
	WorkbookID     string    `db:"workbook_id"`
	LastViewedPage int       `db:"last_viewed_page"`
	Completed      bool      `db:"completed"`
	LastViewedAt   time.Time `db:"last_viewed_at"`
}
