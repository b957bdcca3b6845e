package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonearm/royaltyd/internal/domain"
)

func playEvent(id, userID string, at time.Time) *domain.AnalyticsEvent {
	return &domain.AnalyticsEvent{
		ID:         id,
		Type:       domain.EventTypePlay,
		UserID:     userID,
		TrackID:    "track-1",
		Country:    "DE",
		Device:     "mobile",
		OS:         "android",
		Browser:    "chrome",
		OccurredAt: at,
	}
}

func TestAnalyticsIngest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 14, 10, 30, 0, 0, time.UTC)

	report, err := env.Analytics.Ingest(ctx, []*domain.AnalyticsEvent{
		playEvent("ev-1", "user-1", day),
		playEvent("ev-2", "user-1", day.Add(time.Hour)),
		playEvent("ev-3", "user-2", day),
		{ID: "ev-4", Type: "download", UserID: "user-2", OccurredAt: day},
		{ID: "ev-5", Type: "page_resize", UserID: "user-3", OccurredAt: day},
		{ID: "", Type: "play", OccurredAt: day},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Accepted)
	assert.Equal(t, 0, report.Duplicates)
	assert.Equal(t, 1, report.Malformed)
	assert.Equal(t, []string{"2026-07-14"}, report.Days)

	summary, err := env.Analytics.GetSummary(ctx, "2026-07-14")
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.TotalEvents)
	assert.Equal(t, int64(3), summary.TotalPlays)
	assert.Equal(t, int64(1), summary.TotalDownloads)
	// Unknown event types count under other, never abort the batch.
	assert.Equal(t, int64(1), summary.TotalOther)
	assert.Equal(t, int64(3), summary.UniqueUsers)
	assert.Equal(t, int64(4), summary.ByHour[10])
	assert.Equal(t, int64(1), summary.ByHour[11])
	var hourTotal int64
	for _, n := range summary.ByHour {
		hourTotal += n
	}
	assert.Equal(t, summary.TotalEvents, hourTotal)
	require.Contains(t, summary.ByCountry, "DE")
	assert.Equal(t, int64(3), summary.ByCountry["DE"].Plays)
}

func TestAnalyticsIngest_ReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 14, 9, 0, 0, 0, time.UTC)

	batch := []*domain.AnalyticsEvent{
		playEvent("ev-1", "user-1", day),
		playEvent("ev-2", "user-2", day),
	}

	first, err := env.Analytics.Ingest(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 2, first.Accepted)

	before, err := env.Analytics.GetSummary(ctx, "2026-07-14")
	require.NoError(t, err)

	// The same batch again, plus one genuinely new event.
	second, err := env.Analytics.Ingest(ctx, append(batch, playEvent("ev-3", "user-1", day)))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Accepted)
	assert.Equal(t, 2, second.Duplicates)

	after, err := env.Analytics.GetSummary(ctx, "2026-07-14")
	require.NoError(t, err)
	assert.Equal(t, before.TotalEvents+1, after.TotalEvents)
	assert.Equal(t, int64(2), after.UniqueUsers)
}

func TestAnalyticsIngest_SpansDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 23:30 UTC and 00:30 UTC the next day land in different summaries.
	report, err := env.Analytics.Ingest(ctx, []*domain.AnalyticsEvent{
		playEvent("ev-1", "user-1", time.Date(2026, 7, 14, 23, 30, 0, 0, time.UTC)),
		playEvent("ev-2", "user-1", time.Date(2026, 7, 15, 0, 30, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-07-14", "2026-07-15"}, report.Days)

	for _, day := range report.Days {
		summary, err := env.Analytics.GetSummary(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, int64(1), summary.TotalEvents, "day %s", day)
	}
}

func TestAnalyticsRebuildRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.Analytics.Ingest(ctx, []*domain.AnalyticsEvent{
		playEvent("ev-1", "user-1", time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)),
		playEvent("ev-2", "user-1", time.Date(2026, 7, 12, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	days, err := env.Analytics.RebuildRange(ctx,
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, days)
}

func TestAnalyticsGetSummary_Missing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Analytics.GetSummary(context.Background(), "2026-01-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
