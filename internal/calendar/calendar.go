// Package calendar turns sale dates and timestamps into calendar-day keys.
//
// Two day types exist on purpose. UTCDay is used for anything compared across
// periods (totals, growth, chart axes) and never depends on the viewer's
// offset. LocalDay is used for weekday and "last N days" questions that must
// follow the viewer's wall clock. They do not convert into each other.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	ErrInvertedRange = errors.New("calendar: range end is before range start")
	ErrOpenRange     = errors.New("calendar: range needs both bounds")
)

// ParseError reports an input that is neither a valid YYYY-MM-DD date nor an
// RFC 3339 timestamp.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("calendar: invalid date %q", e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// UTCDay is a calendar day interpreted at UTC midnight.
type UTCDay struct {
	key string
}

// ParseUTC accepts a YYYY-MM-DD date or an RFC 3339 timestamp. Timestamps are
// converted to UTC before the day is taken.
func ParseUTC(raw string) (UTCDay, error) {
	t, err := parseUTCTime(raw)
	if err != nil {
		return UTCDay{}, err
	}
	return UTCDay{key: t.Format(dateLayout)}, nil
}

func parseUTCTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if isDateOnly(s) {
		t, err := time.ParseInLocation(dateLayout, s, time.UTC)
		if err != nil {
			return time.Time{}, &ParseError{Input: raw, Err: err}
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &ParseError{Input: raw, Err: err}
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// UTCDayOf returns the UTC calendar day containing t.
func UTCDayOf(t time.Time) UTCDay {
	return UTCDay{key: t.UTC().Format(dateLayout)}
}

func (d UTCDay) String() string { return d.key }

func (d UTCDay) IsZero() bool { return d.key == "" }

func (d UTCDay) Before(other UTCDay) bool { return d.key < other.key }

func (d UTCDay) After(other UTCDay) bool { return d.key > other.key }

func (d UTCDay) Equal(other UTCDay) bool { return d.key == other.key }

// Compare returns -1, 0 or +1 by key order.
func (d UTCDay) Compare(other UTCDay) int {
	return strings.Compare(d.key, other.key)
}

const secondsPerDay = 24 * 60 * 60

func (d UTCDay) Time() time.Time {
	t, _ := time.ParseInLocation(dateLayout, d.key, time.UTC)
	return t
}

func (d UTCDay) AddDays(n int) UTCDay {
	return UTCDay{key: d.Time().AddDate(0, 0, n).Format(dateLayout)}
}

// DaysUntil is the signed number of whole days from d to other. It works on
// Unix seconds because time.Duration saturates after about 292 years.
func (d UTCDay) DaysUntil(other UTCDay) int {
	return int((other.Time().Unix() - d.Time().Unix()) / secondsPerDay)
}

// MonthKey returns the YYYY-MM prefix of the day.
func (d UTCDay) MonthKey() string {
	if len(d.key) < 7 {
		return ""
	}
	return d.key[:7]
}

// ISOWeekKey returns the ISO-8601 week the day belongs to, e.g. 2024-W03.
func (d UTCDay) ISOWeekKey() string {
	if d.IsZero() {
		return ""
	}
	year, week := d.Time().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func (d UTCDay) MarshalText() ([]byte, error) {
	return []byte(d.key), nil
}

func (d *UTCDay) UnmarshalText(text []byte) error {
	parsed, err := ParseUTC(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LocalDay is a calendar day anchored at midnight in a specific location.
type LocalDay struct {
	t time.Time
}

// ParseLocal accepts a YYYY-MM-DD date (read as local midnight in loc) or an
// RFC 3339 timestamp (converted into loc first). A nil loc means time.Local.
func ParseLocal(raw string, loc *time.Location) (LocalDay, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)
	if isDateOnly(s) {
		t, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return LocalDay{}, &ParseError{Input: raw, Err: err}
		}
		return LocalDay{t: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return LocalDay{}, &ParseError{Input: raw, Err: err}
	}
	return LocalDayOf(t, loc), nil
}

// LocalDayOf returns the day containing t as seen from loc.
func LocalDayOf(t time.Time, loc *time.Location) LocalDay {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return LocalDay{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)}
}

// LocalToday is LocalDayOf for the caller-supplied current instant.
func LocalToday(now time.Time, loc *time.Location) LocalDay {
	return LocalDayOf(now, loc)
}

func (d LocalDay) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d LocalDay) IsZero() bool { return d.t.IsZero() }

func (d LocalDay) Weekday() time.Weekday { return d.t.Weekday() }

// AddDays moves by calendar days, so a DST change never shifts the result
// off midnight.
func (d LocalDay) AddDays(n int) LocalDay {
	return LocalDay{t: time.Date(d.t.Year(), d.t.Month(), d.t.Day()+n, 0, 0, 0, 0, d.t.Location())}
}

func (d LocalDay) Before(other LocalDay) bool { return d.String() < other.String() }

func (d LocalDay) After(other LocalDay) bool { return d.String() > other.String() }

func (d LocalDay) Equal(other LocalDay) bool { return d.String() == other.String() }

// Within reports from <= d <= to.
func (d LocalDay) Within(from, to LocalDay) bool {
	key := d.String()
	return key >= from.String() && key <= to.String()
}

func isDateOnly(s string) bool {
	if len(s) != len(dateLayout) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch i {
		case 4, 7:
			if c != '-' {
				return false
			}
		default:
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
