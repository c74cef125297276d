package observations

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/models"
)

const (
	DateLatest = "latest"
	DateRange  = "range"
)

type policyKind int

const (
	kindLatest policyKind = iota
	kindRange
	kindSpecific
)

var periodLayouts = []string{"2006-01-02", "2006-01", "2006"}

// Policy selects which points of a series are returned.
type Policy struct {
	kind      policyKind
	date      string
	target    time.Time
	startYear int
	endYear   int
}

// ParsePolicy validates the date selector of a request. An empty date
// means latest.
func ParsePolicy(date, rangeStart, rangeEnd string) (Policy, error) {
	date = strings.TrimSpace(date)
	switch strings.ToLower(date) {
	case "", DateLatest:
		return Policy{kind: kindLatest}, nil
	case DateRange:
		return parseRange(strings.TrimSpace(rangeStart), strings.TrimSpace(rangeEnd))
	}

	target, err := PeriodStart(date)
	if err != nil {
		return Policy{}, catalog.InvalidArgument("date %q must be %q, %q or an ISO year or date", date, DateLatest, DateRange)
	}
	return Policy{kind: kindSpecific, date: date, target: target}, nil
}

func parseRange(start, end string) (Policy, error) {
	if start == "" || end == "" {
		return Policy{}, catalog.InvalidArgument("date_range_start and date_range_end are both required when date is %q", DateRange)
	}
	startYear, err := Year(start)
	if err != nil {
		return Policy{}, catalog.InvalidArgument("date_range_start: %v", err)
	}
	endYear, err := Year(end)
	if err != nil {
		return Policy{}, catalog.InvalidArgument("date_range_end: %v", err)
	}
	if startYear > endYear {
		return Policy{}, catalog.InvalidArgument("date_range_start %s is after date_range_end %s", start, end)
	}
	return Policy{kind: kindRange, startYear: startYear, endYear: endYear}, nil
}

// Year extracts the 4-digit year before the first '-' of an ISO date.
func Year(date string) (int, error) {
	prefix, _, _ := strings.Cut(date, "-")
	if len(prefix) != 4 {
		return 0, &yearError{date: date}
	}
	y, err := strconv.Atoi(prefix)
	if err != nil || y < 0 {
		return 0, &yearError{date: date}
	}
	return y, nil
}

type yearError struct{ date string }

func (e *yearError) Error() string {
	return "no 4-digit year in date " + strconv.Quote(e.date)
}

// PeriodStart returns the first instant of the period an ISO date names:
// "2020" is 2020-01-01, "2020-05" is 2020-05-01.
func PeriodStart(date string) (time.Time, error) {
	var lastErr error
	for _, layout := range periodLayouts {
		t, err := time.Parse(layout, date)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	if _, err := Year(date); err != nil {
		return time.Time{}, err
	}
	// longer forms such as timestamps: fall back to the date part
	if len(date) > len("2006-01-02") {
		return PeriodStart(date[:len("2006-01-02")])
	}
	return time.Time{}, lastErr
}

// Apply filters series, which may arrive in any order, and returns the
// selected points ascending by date.
func (p Policy) Apply(series []models.Observation) []models.Observation {
	sorted := slices.Clone(series)
	slices.SortStableFunc(sorted, func(a, b models.Observation) int {
		return strings.Compare(a.Date, b.Date)
	})

	switch p.kind {
	case kindLatest:
		if len(sorted) == 0 {
			return []models.Observation{}
		}
		return sorted[len(sorted)-1:]
	case kindRange:
		out := []models.Observation{}
		for _, o := range sorted {
			y, err := Year(o.Date)
			if err != nil {
				continue
			}
			if y >= p.startYear && y <= p.endYear {
				out = append(out, o)
			}
		}
		return out
	default:
		return p.specific(sorted)
	}
}

// specific returns exact matches, else points inside the requested period,
// else the single nearest point with the earlier date winning ties.
func (p Policy) specific(sorted []models.Observation) []models.Observation {
	var exact, within []models.Observation
	for _, o := range sorted {
		switch {
		case o.Date == p.date:
			exact = append(exact, o)
		case strings.HasPrefix(o.Date, p.date+"-"):
			within = append(within, o)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	if len(within) > 0 {
		return within
	}

	// distances are compared in seconds; time.Duration saturates after
	// about 292 years
	best := -1
	var bestDist int64
	var bestStart time.Time
	for i, o := range sorted {
		start, err := PeriodStart(o.Date)
		if err != nil {
			continue
		}
		dist := start.Unix() - p.target.Unix()
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist || (dist == bestDist && start.Before(bestStart)) {
			best, bestDist, bestStart = i, dist, start
		}
	}
	if best < 0 {
		return []models.Observation{}
	}
	return []models.Observation{sorted[best]}
}
