package interval_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestWindow_Examples(t *testing.T) {
	calc := interval.NewCalculator(nil)

	cases := []struct {
		name      string
		ref       string
		kind      interval.Kind
		weekStart time.Weekday
		start     string
		end       string
	}{
		{"hourly", "2024-03-15T10:42:17Z", interval.Hourly, time.Sunday, "2024-03-15T10:00:00Z", "2024-03-15T11:00:00Z"},
		{"daily", "2024-03-15T23:59:00Z", interval.Daily, time.Sunday, "2024-03-15T00:00:00Z", "2024-03-16T00:00:00Z"},
		{"weekly monday start", "2024-03-14T10:00:00Z", interval.Weekly, time.Monday, "2024-03-11T00:00:00Z", "2024-03-18T00:00:00Z"},
		{"weekly start day is today", "2024-03-11T08:00:00Z", interval.Weekly, time.Monday, "2024-03-11T00:00:00Z", "2024-03-18T00:00:00Z"},
		{"weekly wraps backwards", "2024-03-12T08:00:00Z", interval.Weekly, time.Saturday, "2024-03-09T00:00:00Z", "2024-03-16T00:00:00Z"},
		{"weekly across month", "2024-03-02T08:00:00Z", interval.Weekly, time.Monday, "2024-02-26T00:00:00Z", "2024-03-04T00:00:00Z"},
		{"monthly", "2024-03-15T10:00:00Z", interval.Monthly, time.Sunday, "2024-03-01T00:00:00Z", "2024-04-01T00:00:00Z"},
		{"monthly december", "2023-12-31T23:00:00Z", interval.Monthly, time.Sunday, "2023-12-01T00:00:00Z", "2024-01-01T00:00:00Z"},
		{"monthly leap february", "2024-02-29T12:00:00Z", interval.Monthly, time.Sunday, "2024-02-01T00:00:00Z", "2024-03-01T00:00:00Z"},
		{"monthly january 31", "2023-01-31T12:00:00Z", interval.Monthly, time.Sunday, "2023-01-01T00:00:00Z", "2023-02-01T00:00:00Z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := calc.Window(mustParse(t, tc.ref), tc.kind, tc.weekStart)
			assert.True(t, mustParse(t, tc.start).Equal(w.Start), "start: got %s", w.Start)
			assert.True(t, mustParse(t, tc.end).Equal(w.End), "end: got %s", w.End)
		})
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestWindow_ContainsReferenceAndIsIdempotent(t *testing.T) {
	calc := interval.NewCalculator(nil)
	bases := []time.Time{
		mustParse(t, "2023-12-25T00:00:00Z"),
		// Both 2024 US transitions.
		time.Date(2024, 2, 20, 0, 0, 0, 0, mustLoad(t, "America/New_York")),
		time.Date(2024, 10, 1, 0, 0, 0, 0, mustLoad(t, "America/New_York")),
		// Midnight was skipped on 2018-11-04.
		time.Date(2018, 10, 1, 0, 0, 0, 0, mustLoad(t, "America/Sao_Paulo")),
	}

	for _, base := range bases {
		for _, kind := range interval.Kinds() {
			for ws := time.Sunday; ws <= time.Saturday; ws++ {
				// Step by an odd number of minutes so every hour, day and weekday is visited.
				for i := 0; i < 24*60; i++ {
					ref := base.Add(time.Duration(i*67) * time.Minute)
					w := calc.Window(ref, kind, ws)
					require.True(t, w.Contains(ref), "%s ws=%d ref=%s window=%s", kind, ws, ref, w)

					again := calc.Start(w.Start, kind, ws)
					require.True(t, again.Equal(w.Start), "%s not idempotent at %s", kind, ref)

					next := calc.Start(w.End, kind, ws)
					require.True(t, next.Equal(w.End), "%s windows leave a gap after %s", kind, w)
				}
			}
		}
	}
}

func TestHourly_RepeatedHourWhenClocksFallBack(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	calc := interval.NewCalculator(nil)

	// 01:30 occurs twice on 2024-11-03: first in EDT, then in EST.
	first := mustParse(t, "2024-11-03T05:30:00Z").In(ny)
	second := mustParse(t, "2024-11-03T06:30:00Z").In(ny)
	require.Equal(t, first.Hour(), second.Hour())

	w := calc.Window(second, interval.Hourly, time.Sunday)
	assert.True(t, w.Contains(second))
	assert.True(t, mustParse(t, "2024-11-03T06:00:00Z").Equal(w.Start), "got %s", w)
	assert.True(t, mustParse(t, "2024-11-03T07:00:00Z").Equal(w.End), "got %s", w)
	assert.False(t, w.Contains(first))

	d := calc.Window(second, interval.Daily, time.Sunday)
	assert.True(t, mustParse(t, "2024-11-03T04:00:00Z").Equal(d.Start))
	assert.True(t, mustParse(t, "2024-11-04T05:00:00Z").Equal(d.End))
	assert.Equal(t, 25*time.Hour, d.Duration())
}

func TestDaily_SkippedMidnight(t *testing.T) {
	sp := mustLoad(t, "America/Sao_Paulo")
	calc := interval.NewCalculator(nil)
	transition := mustParse(t, "2018-11-04T03:00:00Z")

	lateEvening := mustParse(t, "2018-11-04T02:30:00Z").In(sp) // 2018-11-03 23:30 -03
	w := calc.Window(lateEvening, interval.Daily, time.Sunday)
	assert.True(t, w.Contains(lateEvening), "got %s", w)
	assert.True(t, transition.Equal(w.End), "got %s", w)

	afterGap := mustParse(t, "2018-11-04T03:30:00Z").In(sp) // 2018-11-04 01:30 -02
	w = calc.Window(afterGap, interval.Daily, time.Sunday)
	assert.True(t, w.Contains(afterGap), "got %s", w)
	assert.True(t, transition.Equal(w.Start), "got %s", w)
	assert.Equal(t, 23*time.Hour, w.Duration())
}

func TestWeeklyStart_InvariantWithinWeek(t *testing.T) {
	calc := interval.NewCalculator(nil)
	weekStart := mustParse(t, "2024-03-13T00:00:00Z") // Wednesday

	for d := 0; d < 7; d++ {
		ref := weekStart.AddDate(0, 0, d).Add(13 * time.Hour)
		got := calc.Start(ref, interval.Weekly, time.Wednesday)
		assert.True(t, weekStart.Equal(got), "day %d: got %s", d, got)
	}
	next := calc.Start(weekStart.AddDate(0, 0, 7), interval.Weekly, time.Wednesday)
	assert.True(t, weekStart.AddDate(0, 0, 7).Equal(next))
}

func TestDaily_UsesReferenceLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	ref := time.Date(2024, 3, 15, 22, 30, 0, 0, loc) // 2024-03-16T03:30Z
	w := interval.NewCalculator(nil).Window(ref, interval.Daily, time.Sunday)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, loc), w.End)
}

func TestUnknownKind_PassesThrough(t *testing.T) {
	ref := mustParse(t, "2024-03-15T10:42:17Z")
	calc := interval.NewCalculator(nil)
	kind := interval.Kind("yearly")

	assert.False(t, kind.Valid())
	assert.True(t, ref.Equal(calc.Start(ref, kind, time.Sunday)))
	assert.True(t, ref.Equal(calc.End(ref, kind, time.Sunday)))
}

func TestTransform_AppliedToStartAndEnd(t *testing.T) {
	var gotKind interval.Kind
	calc := interval.NewCalculator(func(start time.Time, kind interval.Kind) time.Time {
		gotKind = kind
		return start.Add(-time.Hour)
	})
	w := calc.Window(mustParse(t, "2024-03-15T10:00:00Z"), interval.Daily, time.Sunday)

	assert.Equal(t, interval.Daily, gotKind)
	assert.True(t, mustParse(t, "2024-03-14T23:00:00Z").Equal(w.Start))
	assert.True(t, mustParse(t, "2024-03-15T23:00:00Z").Equal(w.End))
}

func TestCronSpec(t *testing.T) {
	spec, err := interval.CronSpec(interval.Weekly, time.Monday)
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * 1", spec)

	spec, err = interval.CronSpec(interval.Monthly, time.Sunday)
	require.NoError(t, err)
	assert.Equal(t, "0 0 1 * *", spec)

	_, err = interval.CronSpec(interval.Kind("bogus"), time.Sunday)
	assert.Error(t, err)
}
