package enrollment

import (
	"sort"
	"time"
	_ "time/tzdata" // the institutional zone must resolve in scratch images

	"github.com/noah-isme/preenroll-api/internal/models"
)

// DefaultTimeZone is the zone the institution's calendar dates are expressed in.
const DefaultTimeZone = "America/Mexico_City"

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// LoadLocation resolves name, falling back to DefaultTimeZone when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimeZone
	}
	return time.LoadLocation(name)
}

// Today renders the calendar date of now in loc as YYYY-MM-DD.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(models.DateLayout)
}

// Classify splits periods into the active one, those still to come and those
// already over, relative to today (YYYY-MM-DD). A period ending today is upcoming.
// Upcoming periods are sorted by start date ascending, past periods by end date
// descending. The input slice is not modified.
func Classify(periods []models.Period, today string) models.PeriodClassification {
	out := models.PeriodClassification{
		UpcomingPeriods: []models.Period{},
		PastPeriods:     []models.Period{},
		Today:           today,
	}

	for i := range periods {
		p := periods[i]
		switch {
		case p.Active && out.ActivePeriod == nil:
			out.ActivePeriod = &p
		case p.Active:
			// A second active period is a data error; list it with the rest.
			fallthrough
		default:
			if p.EndDate.String() >= today {
				out.UpcomingPeriods = append(out.UpcomingPeriods, p)
			} else {
				out.PastPeriods = append(out.PastPeriods, p)
			}
		}
	}

	sort.SliceStable(out.UpcomingPeriods, func(i, j int) bool {
		return out.UpcomingPeriods[i].StartDate.String() < out.UpcomingPeriods[j].StartDate.String()
	})
	sort.SliceStable(out.PastPeriods, func(i, j int) bool {
		return out.PastPeriods[i].EndDate.String() > out.PastPeriods[j].EndDate.String()
	})

	return out
}

// WindowBounds returns the first and last instants of the period in loc. The end
// is the last millisecond of the end date.
func WindowBounds(p *models.Period, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := p.StartDate.Midnight(loc)
	end := p.EndDate.Midnight(loc).AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// IsWindowOpen reports whether now falls inside the period, both dates inclusive.
// A nil period is never open.
func IsWindowOpen(p *models.Period, now time.Time, loc *time.Location) bool {
	if p == nil || p.StartDate.IsZero() || p.EndDate.IsZero() {
		return false
	}
	start, end := WindowBounds(p, loc)
	return !now.Before(start) && !now.After(end)
}
