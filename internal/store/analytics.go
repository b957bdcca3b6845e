package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/tonearm/royaltyd/internal/domain"
)

// InsertEvent appends one analytics event. The primary key on the event ID
// gives apply-once semantics: replaying an already-ingested event is a
// no-op and returns false.
func (db *DB) InsertEvent(ctx context.Context, event *domain.AnalyticsEvent) (bool, error) {
	query := `INSERT OR IGNORE INTO analytics_events
		(id, type, user_id, track_id, country, device, os, browser, value, extra, occurred_at)
		VALUES (:id, :type, :user_id, :track_id, :country, :device, :os, :browser, :value, :extra, :occurred_at)`

	res, err := db.NamedExecContext(ctx, query, event)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListEventsForDay returns every event on one UTC calendar day.
func (db *DB) ListEventsForDay(ctx context.Context, date string) ([]*domain.AnalyticsEvent, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, domain.ValidationErrors{{Field: "date", Message: "must be YYYY-MM-DD"}}
	}
	next := day.AddDate(0, 0, 1)

	var events []*domain.AnalyticsEvent
	err = db.SelectContext(ctx, &events, `SELECT * FROM analytics_events
		WHERE occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC`, day, next)
	return events, err
}

// UpsertSummary replaces the rollup for one day.
func (db *DB) UpsertSummary(ctx context.Context, summary *domain.AnalyticsSummary) error {
	query := `INSERT INTO analytics_summaries
		(date, total_events, total_plays, total_downloads, total_likes, total_shares,
		total_signups, total_logins, total_uploads, total_payout_requests, total_other,
		unique_users, by_country, by_device, by_os, by_browser, by_hour, updated_at)
		VALUES (:date, :total_events, :total_plays, :total_downloads, :total_likes, :total_shares,
		:total_signups, :total_logins, :total_uploads, :total_payout_requests, :total_other,
		:unique_users, :by_country, :by_device, :by_os, :by_browser, :by_hour, :updated_at)
		ON CONFLICT(date) DO UPDATE SET
			total_events = excluded.total_events,
			total_plays = excluded.total_plays,
			total_downloads = excluded.total_downloads,
			total_likes = excluded.total_likes,
			total_shares = excluded.total_shares,
			total_signups = excluded.total_signups,
			total_logins = excluded.total_logins,
			total_uploads = excluded.total_uploads,
			total_payout_requests = excluded.total_payout_requests,
			total_other = excluded.total_other,
			unique_users = excluded.unique_users,
			by_country = excluded.by_country,
			by_device = excluded.by_device,
			by_os = excluded.by_os,
			by_browser = excluded.by_browser,
			by_hour = excluded.by_hour,
			updated_at = excluded.updated_at`

	_, err := db.NamedExecContext(ctx, query, summary)
	return err
}

func (db *DB) GetSummary(ctx context.Context, date string) (*domain.AnalyticsSummary, error) {
	summary := &domain.AnalyticsSummary{}
	err := db.GetContext(ctx, summary, `SELECT * FROM analytics_summaries WHERE date = ?`, date)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ListEventDays returns the distinct UTC days with events in [since, until),
// the days whose summaries need rebuilding. Day keys are derived in Go:
// SQLite's date() cannot parse the text format the driver stores time.Time
// values in, while range comparisons work because both operands use that
// same encoding.
func (db *DB) ListEventDays(ctx context.Context, since, until time.Time) ([]string, error) {
	var stamps []time.Time
	err := db.SelectContext(ctx, &stamps, `SELECT occurred_at FROM analytics_events
		WHERE occurred_at >= ? AND occurred_at < ? ORDER BY occurred_at ASC`, since, until)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(stamps))
	days := make([]string, 0, len(stamps))
	for _, ts := range stamps {
		day := ts.UTC().Format("2006-01-02")
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	return days, nil
}
