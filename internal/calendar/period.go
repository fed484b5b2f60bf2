package calendar

import "fmt"

// Period is an inclusive range of UTC days. A nil bound is open on that side.
type Period struct {
	From *UTCDay `json:"from,omitempty"`
	To   *UTCDay `json:"to,omitempty"`
}

// NewPeriod parses optional bounds; an empty string leaves the bound open.
func NewPeriod(from, to string) (Period, error) {
	var p Period
	if from != "" {
		day, err := ParseUTC(from)
		if err != nil {
			return Period{}, err
		}
		p.From = &day
	}
	if to != "" {
		day, err := ParseUTC(to)
		if err != nil {
			return Period{}, err
		}
		p.To = &day
	}
	if p.From != nil && p.To != nil && p.To.Before(*p.From) {
		return Period{}, fmt.Errorf("%w: %s..%s", ErrInvertedRange, p.From, p.To)
	}
	return p, nil
}

// Closed builds a period with both bounds set.
func Closed(from, to UTCDay) Period {
	return Period{From: &from, To: &to}
}

// Bounds returns both ends when the period is closed.
func (p Period) Bounds() (from UTCDay, to UTCDay, ok bool) {
	if p.From == nil || p.To == nil {
		return UTCDay{}, UTCDay{}, false
	}
	return *p.From, *p.To, true
}

func (p Period) Contains(day UTCDay) bool {
	return IsWithinInclusiveRange(day, p.From, p.To)
}

// Days is the inclusive length of a closed period, 0 otherwise.
func (p Period) Days() int {
	from, to, ok := p.Bounds()
	if !ok {
		return 0
	}
	return from.DaysUntil(to) + 1
}

func (p Period) String() string {
	from, to := "", ""
	if p.From != nil {
		from = p.From.String()
	}
	if p.To != nil {
		to = p.To.String()
	}
	return from + ".." + to
}

// IsWithinInclusiveRange compares fixed-width YYYY-MM-DD keys, so plain string
// order is calendar order.
func IsWithinInclusiveRange(day UTCDay, from, to *UTCDay) bool {
	if day.IsZero() {
		return false
	}
	if from != nil && day.key < from.key {
		return false
	}
	if to != nil && day.key > to.key {
		return false
	}
	return true
}

// PrecedingRangeOfEqualLength returns the window of the same inclusive length
// that ends the day before from.
func PrecedingRangeOfEqualLength(from, to UTCDay) (Period, error) {
	if from.IsZero() || to.IsZero() {
		return Period{}, ErrOpenRange
	}
	if to.Before(from) {
		return Period{}, fmt.Errorf("%w: %s..%s", ErrInvertedRange, from, to)
	}
	days := from.DaysUntil(to) + 1
	precedingTo := from.AddDays(-1)
	precedingFrom := precedingTo.AddDays(-(days - 1))
	return Closed(precedingFrom, precedingTo), nil
}
