package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUTC(t *testing.T, raw string) UTCDay {
	t.Helper()
	day, err := ParseUTC(raw)
	require.NoError(t, err)
	return day
}

func TestParseUTCRoundTrips(t *testing.T) {
	for _, raw := range []string{"2024-01-15", "2024-02-29", "1999-12-31", "2023-03-01", "2025-11-30"} {
		day, err := ParseUTC(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, day.String())
	}
}

func TestParseUTCRejectsInvalidDates(t *testing.T) {
	for _, raw := range []string{"2024-02-30", "2023-02-29", "2024-13-01", "2024-00-10", "2024-1-5", "15/01/2024", "", "2024-04-31"} {
		_, err := ParseUTC(raw)
		require.Error(t, err, raw)
		var parseErr *ParseError
		assert.True(t, errors.As(err, &parseErr), "expected ParseError for %q", raw)
	}
}

func TestParseUTCTimestampUsesUTCDay(t *testing.T) {
	day, err := ParseUTC("2024-03-10T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", day.String())
}

func TestParseLocalTimestampUsesViewerDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	day, err := ParseLocal("2024-03-11T02:00:00Z", loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", day.String())
	assert.Equal(t, time.Sunday, day.Weekday())
}

func TestLocalDayAddDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	day, err := ParseLocal("2024-03-09", loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", day.AddDays(2).String())
	assert.Equal(t, "2024-03-02", day.AddDays(-7).String())
}

func TestUTCDayKeys(t *testing.T) {
	day := mustUTC(t, "2024-01-15")
	assert.Equal(t, "2024-01", day.MonthKey())
	assert.Equal(t, "2024-W03", day.ISOWeekKey())
	assert.Equal(t, "2024-W01", mustUTC(t, "2024-01-01").ISOWeekKey())
	assert.Equal(t, "2020-W53", mustUTC(t, "2021-01-01").ISOWeekKey())
}

func TestIsWithinInclusiveRange(t *testing.T) {
	from := mustUTC(t, "2024-01-01")
	to := mustUTC(t, "2024-01-31")

	assert.True(t, IsWithinInclusiveRange(from, &from, &to))
	assert.True(t, IsWithinInclusiveRange(to, &from, &to))
	assert.False(t, IsWithinInclusiveRange(mustUTC(t, "2023-12-31"), &from, &to))
	assert.False(t, IsWithinInclusiveRange(mustUTC(t, "2024-02-01"), &from, &to))
	assert.True(t, IsWithinInclusiveRange(mustUTC(t, "1990-01-01"), nil, &to))
	assert.True(t, IsWithinInclusiveRange(mustUTC(t, "2090-01-01"), &from, nil))
	assert.False(t, IsWithinInclusiveRange(UTCDay{}, nil, nil))
}

func TestPrecedingRangeOfEqualLength(t *testing.T) {
	cases := []struct {
		from, to         string
		wantFrom, wantTo string
	}{
		{"2024-01-01", "2024-01-31", "2023-12-01", "2023-12-31"},
		{"2024-03-01", "2024-03-31", "2024-01-30", "2024-02-29"},
		{"2024-03-15", "2024-03-15", "2024-03-14", "2024-03-14"},
		{"2024-01-01", "2024-12-31", "2022-12-31", "2023-12-31"},
	}
	for _, tc := range cases {
		from, to := mustUTC(t, tc.from), mustUTC(t, tc.to)
		prev, err := PrecedingRangeOfEqualLength(from, to)
		require.NoError(t, err)
		assert.Equal(t, tc.wantFrom, prev.From.String(), "from for %s..%s", tc.from, tc.to)
		assert.Equal(t, tc.wantTo, prev.To.String(), "to for %s..%s", tc.from, tc.to)
		assert.Equal(t, Closed(from, to).Days(), prev.Days())
		assert.Equal(t, 1, prev.To.DaysUntil(from))
	}
}

func TestPrecedingRangeSpanningCenturies(t *testing.T) {
	from, to := mustUTC(t, "1700-01-01"), mustUTC(t, "2024-01-01")
	current := Closed(from, to)
	assert.Equal(t, 118339, current.Days())

	prev, err := PrecedingRangeOfEqualLength(from, to)
	require.NoError(t, err)
	assert.Equal(t, "1699-12-31", prev.To.String())
	assert.Equal(t, current.Days(), prev.Days())
	assert.Equal(t, -(current.Days() - 1), to.DaysUntil(from))
}

func TestPrecedingRangeRejectsInvertedAndOpen(t *testing.T) {
	_, err := PrecedingRangeOfEqualLength(mustUTC(t, "2024-02-01"), mustUTC(t, "2024-01-01"))
	assert.ErrorIs(t, err, ErrInvertedRange)

	_, err = PrecedingRangeOfEqualLength(UTCDay{}, mustUTC(t, "2024-01-01"))
	assert.ErrorIs(t, err, ErrOpenRange)
}

func TestNewPeriod(t *testing.T) {
	p, err := NewPeriod("2024-01-01", "")
	require.NoError(t, err)
	require.NotNil(t, p.From)
	assert.Nil(t, p.To)
	_, _, ok := p.Bounds()
	assert.False(t, ok)

	_, err = NewPeriod("2024-02-30", "")
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))

	_, err = NewPeriod("2024-02-10", "2024-02-01")
	assert.ErrorIs(t, err, ErrInvertedRange)
}
