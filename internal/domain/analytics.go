package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypePlay          EventType = "play"
	EventTypeDownload      EventType = "download"
	EventTypeLike          EventType = "like"
	EventTypeShare         EventType = "share"
	EventTypeSignup        EventType = "signup"
	EventTypeLogin         EventType = "login"
	EventTypeUpload        EventType = "upload"
	EventTypePayoutRequest EventType = "payout_request"
	// EventTypeOther is the unclassified bucket. Events with unknown or
	// missing types land here instead of failing the batch.
	EventTypeOther EventType = "other"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypePlay, EventTypeDownload, EventTypeLike, EventTypeShare,
		EventTypeSignup, EventTypeLogin, EventTypeUpload, EventTypePayoutRequest,
		EventTypeOther:
		return true
	}
	return false
}

// Classify maps an arbitrary type string to a closed EventType, folding
// anything unknown into the other bucket.
func Classify(raw string) EventType {
	t := EventType(raw)
	if t.Valid() {
		return t
	}
	return EventTypeOther
}

// AnalyticsEvent is an immutable, append-only fact record of one user or
// system action. The ID is the idempotency key: ingesting the same event
// twice is a no-op.
type AnalyticsEvent struct {
	ID      string    `json:"id" db:"id"`
	Type    EventType `json:"type" db:"type"`
	UserID  string    `json:"user_id" db:"user_id"`
	TrackID string    `json:"track_id,omitempty" db:"track_id"`

	Country string `json:"country,omitempty" db:"country"`
	Device  string `json:"device,omitempty" db:"device"`
	OS      string `json:"os,omitempty" db:"os"`
	Browser string `json:"browser,omitempty" db:"browser"`

	Value      float64    `json:"value,omitempty" db:"value"`
	Extra      Attributes `json:"extra,omitempty" db:"extra"`
	OccurredAt time.Time  `json:"occurred_at" db:"occurred_at"`
}

// Validate rejects events that cannot be ingested at all. Unknown types are
// not an error (they classify as other); a missing ID or timestamp is,
// because without them apply-once semantics and day keying are impossible.
func (e *AnalyticsEvent) Validate() error {
	var errs ValidationErrors
	if e.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "cannot be empty"})
	}
	if e.OccurredAt.IsZero() {
		errs = append(errs, ValidationError{Field: "occurred_at", Message: "cannot be zero"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Day returns the event's UTC calendar day, the summary key.
func (e *AnalyticsEvent) Day() string {
	return e.OccurredAt.UTC().Format("2006-01-02")
}

// TypeCounts holds per-event-type totals for one breakdown bucket.
type TypeCounts struct {
	Total     int64 `json:"total"`
	Plays     int64 `json:"plays"`
	Downloads int64 `json:"downloads"`
	Likes     int64 `json:"likes"`
	Shares    int64 `json:"shares"`
	Signups   int64 `json:"signups"`
	Logins    int64 `json:"logins"`
	Uploads   int64 `json:"uploads"`
	Requests  int64 `json:"payout_requests"`
	Other     int64 `json:"other"`
}

func (c *TypeCounts) add(t EventType) {
	c.Total++
	switch t {
	case EventTypePlay:
		c.Plays++
	case EventTypeDownload:
		c.Downloads++
	case EventTypeLike:
		c.Likes++
	case EventTypeShare:
		c.Shares++
	case EventTypeSignup:
		c.Signups++
	case EventTypeLogin:
		c.Logins++
	case EventTypeUpload:
		c.Uploads++
	case EventTypePayoutRequest:
		c.Requests++
	default:
		c.Other++
	}
}

// Breakdown stores a dimension breakdown (country, device, os, browser) as
// a JSON TEXT column.
type Breakdown map[string]*TypeCounts

func (b Breakdown) Value() (driver.Value, error) {
	if len(b) == 0 {
		return "{}", nil
	}
	return json.Marshal(b)
}

func (b *Breakdown) Scan(value interface{}) error {
	if value == nil {
		*b = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		*b = nil
		return nil
	}

	return json.Unmarshal(data, b)
}

func (b Breakdown) add(key string, t EventType) {
	if key == "" {
		return
	}
	counts, ok := b[key]
	if !ok {
		counts = &TypeCounts{}
		b[key] = counts
	}
	counts.add(t)
}

// TotalEvents sums the bucket totals for reconciliation checks.
func (b Breakdown) TotalEvents() int64 {
	var total int64
	for _, counts := range b {
		total += counts.Total
	}
	return total
}

// HourCounts stores the 24-slot hour-of-day histogram as a JSON TEXT column.
type HourCounts [24]int64

func (h HourCounts) Value() (driver.Value, error) {
	return json.Marshal(h)
}

func (h *HourCounts) Scan(value interface{}) error {
	if value == nil {
		*h = HourCounts{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		*h = HourCounts{}
		return nil
	}

	return json.Unmarshal(data, h)
}

// AnalyticsSummary is the precomputed per-day rollup, keyed by UTC date.
// It is always rebuilt by full recomputation from the day's events, so
// replaying the same event set yields an identical summary.
type AnalyticsSummary struct {
	Date string `json:"date" db:"date"`

	TotalEvents    int64 `json:"total_events" db:"total_events"`
	TotalPlays     int64 `json:"total_plays" db:"total_plays"`
	TotalDownloads int64 `json:"total_downloads" db:"total_downloads"`
	TotalLikes     int64 `json:"total_likes" db:"total_likes"`
	TotalShares    int64 `json:"total_shares" db:"total_shares"`
	TotalSignups   int64 `json:"total_signups" db:"total_signups"`
	TotalLogins    int64 `json:"total_logins" db:"total_logins"`
	TotalUploads   int64 `json:"total_uploads" db:"total_uploads"`
	TotalRequests  int64 `json:"total_payout_requests" db:"total_payout_requests"`
	TotalOther     int64 `json:"total_other" db:"total_other"`
	UniqueUsers    int64 `json:"unique_users" db:"unique_users"`

	ByCountry Breakdown  `json:"by_country" db:"by_country"`
	ByDevice  Breakdown  `json:"by_device" db:"by_device"`
	ByOS      Breakdown  `json:"by_os" db:"by_os"`
	ByBrowser Breakdown  `json:"by_browser" db:"by_browser"`
	ByHour    HourCounts `json:"by_hour" db:"by_hour"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FoldEvents recomputes a day's summary from its raw events. The fold is
// pure counting, so it is associative and order-independent. Events from
// other days are skipped; duplicates must already be removed (the store
// keys events by ID).
func FoldEvents(date string, events []*AnalyticsEvent) *AnalyticsSummary {
	s := &AnalyticsSummary{
		Date:      date,
		ByCountry: Breakdown{},
		ByDevice:  Breakdown{},
		ByOS:      Breakdown{},
		ByBrowser: Breakdown{},
	}

	users := make(map[string]struct{})
	for _, e := range events {
		if e.Day() != date {
			continue
		}
		t := Classify(string(e.Type))

		s.TotalEvents++
		switch t {
		case EventTypePlay:
			s.TotalPlays++
		case EventTypeDownload:
			s.TotalDownloads++
		case EventTypeLike:
			s.TotalLikes++
		case EventTypeShare:
			s.TotalShares++
		case EventTypeSignup:
			s.TotalSignups++
		case EventTypeLogin:
			s.TotalLogins++
		case EventTypeUpload:
			s.TotalUploads++
		case EventTypePayoutRequest:
			s.TotalRequests++
		default:
			s.TotalOther++
		}

		s.ByCountry.add(e.Country, t)
		s.ByDevice.add(e.Device, t)
		s.ByOS.add(e.OS, t)
		s.ByBrowser.add(e.Browser, t)
		s.ByHour[e.OccurredAt.UTC().Hour()]++

		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}
	}
	s.UniqueUsers = int64(len(users))

	return s
}

// CheckTotals verifies the summary invariants: per-type totals sum to the
// event total, and every populated breakdown reconciles with it.
func (s *AnalyticsSummary) CheckTotals() error {
	var errs ValidationErrors

	byType := s.TotalPlays + s.TotalDownloads + s.TotalLikes + s.TotalShares +
		s.TotalSignups + s.TotalLogins + s.TotalUploads + s.TotalRequests + s.TotalOther
	if byType != s.TotalEvents {
		errs = append(errs, ValidationError{Field: "total_events", Message: "per-type totals do not sum to total_events"})
	}

	var byHour int64
	for _, n := range s.ByHour {
		byHour += n
	}
	if byHour != s.TotalEvents {
		errs = append(errs, ValidationError{Field: "by_hour", Message: "hour counts do not sum to total_events"})
	}

	// Dimension breakdowns only count events carrying that dimension, so
	// they can undershoot but never exceed the total.
	for field, b := range map[string]Breakdown{
		"by_country": s.ByCountry,
		"by_device":  s.ByDevice,
		"by_os":      s.ByOS,
		"by_browser": s.ByBrowser,
	} {
		if b.TotalEvents() > s.TotalEvents {
			errs = append(errs, ValidationError{Field: field, Message: "breakdown exceeds total_events"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
