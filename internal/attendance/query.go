package attendance

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	// MaxLimit caps the page size when Bounds does not set one.
	MaxLimit = 500
)

const dateLayout = "2006-01-02"

// QueryParams are the raw, optional attendance query parameters as received
// from the caller.
type QueryParams struct {
	UserID    string
	DeviceID  string
	StartDate string
	EndDate   string
	Page      string
	Limit     string
}

// Bounds controls how raw parameters are normalized.
type Bounds struct {
	DefaultLimit int
	MaxLimit     int
	// Location is the zone bare dates are interpreted in. Nil means UTC.
	Location *time.Location
}

func (b Bounds) withDefaults() Bounds {
	if b.DefaultLimit <= 0 {
		b.DefaultLimit = DefaultLimit
	}
	if b.MaxLimit <= 0 {
		b.MaxLimit = MaxLimit
	}
	if b.DefaultLimit > b.MaxLimit {
		b.DefaultLimit = b.MaxLimit
	}
	if b.Location == nil {
		b.Location = time.UTC
	}
	return b
}

// Query is a validated attendance query.
type Query struct {
	UserID   string
	DeviceID string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// Filter converts the query into the store predicate for its page.
func (q Query) Filter() Filter {
	return Filter{
		UserID:   q.UserID,
		DeviceID: q.DeviceID,
		From:     q.From,
		To:       q.To,
		Offset:   (q.Page - 1) * q.Limit,
		Limit:    q.Limit,
	}
}

// ParseQuery validates raw parameters. startDate bounds the creation time at
// the literal instant given; endDate bounds it at the end of that calendar
// day so a bare date covers the whole day.
func ParseQuery(p QueryParams, b Bounds) (Query, error) {
	b = b.withDefaults()

	page, limit, err := ParsePage(p.Page, p.Limit, b)
	if err != nil {
		return Query{}, err
	}
	q := Query{
		UserID:   strings.TrimSpace(p.UserID),
		DeviceID: strings.TrimSpace(p.DeviceID),
		Page:     page,
		Limit:    limit,
	}

	if s := strings.TrimSpace(p.StartDate); s != "" {
		t, ok := parseInstant(s, b.Location)
		if !ok {
			return Query{}, invalid("startDate must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		q.From = &t
	}
	if s := strings.TrimSpace(p.EndDate); s != "" {
		t, ok := parseInstant(s, b.Location)
		if !ok {
			return Query{}, invalid("endDate must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		end := EndOfDay(t, b.Location)
		q.To = &end
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return Query{}, invalid("startDate must not be after endDate")
	}
	return q, nil
}

// ParsePage parses 1-based page and page size. Empty values take the
// defaults; non-numeric or non-positive values are rejected; a limit above
// the maximum is clamped. A page whose offset would overflow int is rejected.
func ParsePage(rawPage, rawLimit string, b Bounds) (page, limit int, err error) {
	b = b.withDefaults()

	page, limit = DefaultPage, b.DefaultLimit
	if s := strings.TrimSpace(rawPage); s != "" {
		page, err = strconv.Atoi(s)
		if err != nil || page < 1 {
			return 0, 0, invalid("page must be a positive integer")
		}
	}
	if s := strings.TrimSpace(rawLimit); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			return 0, 0, invalid("limit must be a positive integer")
		}
	}
	if limit > b.MaxLimit {
		limit = b.MaxLimit
	}
	if page-1 > math.MaxInt/limit {
		return 0, 0, invalid("page is out of range")
	}
	return page, limit, nil
}

// EndOfDay returns the last millisecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

func parseInstant(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", dateLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
