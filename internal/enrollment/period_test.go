package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/models"
)

func mustDate(t *testing.T, raw string) models.Date {
	t.Helper()
	d, err := models.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func period(t *testing.T, id, start, end string, active bool) models.Period {
	return models.Period{PeriodID: id, StartDate: mustDate(t, start), EndDate: mustDate(t, end), Active: active}
}

func mexicoCity(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation("")
	require.NoError(t, err)
	require.Equal(t, DefaultTimeZone, loc.String())
	return loc
}

func TestClassifyPartitionsAndOrders(t *testing.T) {
	periods := []models.Period{
		period(t, "2024-ENE-JUN", "2024-01-08", "2024-06-30", false),
		period(t, "2026-ENE-JUN", "2026-01-12", "2026-06-30", false),
		period(t, "2025-AGO-DIC", "2025-08-04", "2025-12-15", true),
		period(t, "2025-ENE-JUN", "2025-01-06", "2025-06-15", false),
		period(t, "2025-JUL-JUL", "2025-07-01", "2025-09-30", false),
		period(t, "2023-AGO-DIC", "2023-08-01", "2023-12-15", false),
	}
	input := append([]models.Period(nil), periods...)

	got := Classify(periods, "2025-06-15")

	require.NotNil(t, got.ActivePeriod)
	assert.Equal(t, "2025-AGO-DIC", got.ActivePeriod.PeriodID)

	upcoming := make([]string, 0, len(got.UpcomingPeriods))
	for _, p := range got.UpcomingPeriods {
		upcoming = append(upcoming, p.PeriodID)
	}
	// A period ending today counts as upcoming.
	assert.Equal(t, []string{"2025-ENE-JUN", "2025-JUL-JUL", "2026-ENE-JUN"}, upcoming)

	past := make([]string, 0, len(got.PastPeriods))
	for _, p := range got.PastPeriods {
		past = append(past, p.PeriodID)
	}
	assert.Equal(t, []string{"2024-ENE-JUN", "2023-AGO-DIC"}, past)

	assert.Equal(t, len(periods)-1, len(got.UpcomingPeriods)+len(got.PastPeriods))
	assert.Equal(t, input, periods, "input must not be reordered")
	assert.Equal(t, "2025-06-15", got.Today)
}

func TestClassifyWithoutActivePeriod(t *testing.T) {
	got := Classify(nil, "2025-01-01")

	assert.Nil(t, got.ActivePeriod)
	assert.NotNil(t, got.UpcomingPeriods)
	assert.NotNil(t, got.PastPeriods)
	assert.Empty(t, got.UpcomingPeriods)
}

func TestClassifyIsDeterministic(t *testing.T) {
	periods := []models.Period{
		period(t, "A", "2025-01-01", "2025-03-01", false),
		period(t, "B", "2025-01-01", "2025-04-01", false),
	}
	first := Classify(periods, "2024-12-01")
	second := Classify(periods, "2024-12-01")
	assert.Equal(t, first, second)
	assert.Equal(t, "A", first.UpcomingPeriods[0].PeriodID)
}

func TestTodayUsesInstitutionalZone(t *testing.T) {
	loc := mexicoCity(t)
	// 03:00 UTC on the 16th is still the 15th in Mexico City.
	now := time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC)

	assert.Equal(t, "2025-06-15", Today(now, loc))
	assert.Equal(t, "2025-06-16", Today(now, time.UTC))
}

func TestIsWindowOpenIncludesWholeEndDate(t *testing.T) {
	loc := mexicoCity(t)
	p := period(t, "2025-ENE-JUN", "2025-06-01", "2025-06-15", true)

	assert.True(t, IsWindowOpen(&p, time.Date(2025, 6, 15, 23, 59, 59, 0, loc), loc))
	assert.True(t, IsWindowOpen(&p, time.Date(2025, 6, 15, 23, 59, 59, 999_000_000, loc), loc))
	assert.False(t, IsWindowOpen(&p, time.Date(2025, 6, 16, 0, 0, 0, 1_000_000, loc), loc))

	assert.True(t, IsWindowOpen(&p, time.Date(2025, 6, 1, 0, 0, 0, 0, loc), loc))
	assert.False(t, IsWindowOpen(&p, time.Date(2025, 5, 31, 23, 59, 59, 0, loc), loc))
}

func TestIsWindowOpenComparesInLocation(t *testing.T) {
	loc := mexicoCity(t)
	p := period(t, "2025-ENE-JUN", "2025-06-01", "2025-06-15", true)

	// 05:00 UTC on the 16th is 23:00 on the 15th in Mexico City.
	assert.True(t, IsWindowOpen(&p, time.Date(2025, 6, 16, 5, 0, 0, 0, time.UTC), loc))
	assert.False(t, IsWindowOpen(&p, time.Date(2025, 6, 16, 5, 0, 0, 0, time.UTC), time.UTC))
}

func TestIsWindowOpenNilPeriod(t *testing.T) {
	assert.False(t, IsWindowOpen(nil, time.Now(), time.UTC))
	assert.False(t, IsWindowOpen(&models.Period{PeriodID: "x"}, time.Now(), time.UTC))
}
