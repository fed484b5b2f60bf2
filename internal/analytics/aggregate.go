package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
)

type BucketBy string

const (
	ByDay            BucketBy = "day"
	ByISOWeek        BucketBy = "week"
	ByWeekday        BucketBy = "weekday"
	ByMonth          BucketBy = "month"
	ByInstrumentType BucketBy = "type"
	ByMaker          BucketBy = "maker"
	ByClientRefund   BucketBy = "client_refund"
)

// MonthWindow is how many of the most recent months a month chart keeps.
const MonthWindow = 12

// UnresolvedClientKey groups refunds that carry no client.
const UnresolvedClientKey = "unresolved"

var ErrUnknownBucket = errors.New("analytics: unknown bucket")

func ParseBucketBy(raw string) (BucketBy, error) {
	switch by := BucketBy(raw); by {
	case ByDay, ByISOWeek, ByWeekday, ByMonth, ByInstrumentType, ByMaker, ByClientRefund:
		return by, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBucket, raw)
	}
}

type Bucket struct {
	Key     string
	Label   string
	Revenue decimal.Decimal
	Refunds decimal.Decimal
	Count   int
}

func (b Bucket) Net() decimal.Decimal {
	return b.Revenue.Sub(b.Refunds)
}

// RefundRate is refunds/revenue*100, or 0 when the bucket has no revenue.
func (b Bucket) RefundRate() float64 {
	return percentOf(b.Refunds, b.Revenue)
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key        string          `json:"key"`
		Label      string          `json:"label"`
		Revenue    decimal.Decimal `json:"revenue"`
		Refunds    decimal.Decimal `json:"refunds"`
		Net        decimal.Decimal `json:"net"`
		Count      int             `json:"count"`
		RefundRate float64         `json:"refund_rate"`
	}{b.Key, b.Label, b.Revenue, b.Refunds, b.Net(), b.Count, b.RefundRate()})
}

type AggregateOptions struct {
	// Location is used by ByWeekday only. Nil means time.Local.
	Location *time.Location
	// TopN truncates ranked groupings (maker, type, client refunds). 0 keeps all.
	TopN int
}

type AggregateResult struct {
	By      BucketBy `json:"by"`
	Buckets []Bucket `json:"buckets"`
	// Excluded counts sales dropped for an unparseable date.
	Excluded int `json:"excluded"`
	// Unresolved counts sales dropped for a missing instrument attribute.
	Unresolved int `json:"unresolved"`
}

// accumulator keeps buckets in first-appearance order.
type accumulator struct {
	index   map[string]int
	buckets []Bucket
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]int)}
}

func (a *accumulator) add(key, label string, price decimal.Decimal) {
	i, ok := a.index[key]
	if !ok {
		i = len(a.buckets)
		a.index[key] = i
		a.buckets = append(a.buckets, Bucket{Key: key, Label: label, Revenue: decimal.Zero, Refunds: decimal.Zero})
	}
	b := &a.buckets[i]
	switch price.Sign() {
	case 1:
		b.Revenue = b.Revenue.Add(price)
	case -1:
		b.Refunds = b.Refunds.Add(price.Abs())
	}
	b.Count++
}

// Aggregate groups sales into chart buckets.
func Aggregate(sales []domain.EnrichedSale, by BucketBy, opts AggregateOptions) AggregateResult {
	result := AggregateResult{By: by}
	acc := newAccumulator()

	switch by {
	case ByDay, ByISOWeek, ByMonth:
		for _, s := range sales {
			day, err := calendar.ParseUTC(s.SaleDate)
			if err != nil {
				result.Excluded++
				continue
			}
			key := day.String()
			switch by {
			case ByISOWeek:
				key = day.ISOWeekKey()
			case ByMonth:
				key = day.MonthKey()
			}
			acc.add(key, key, s.SalePrice)
		}
		slices.SortStableFunc(acc.buckets, func(a, b Bucket) int {
			switch {
			case a.Key < b.Key:
				return -1
			case a.Key > b.Key:
				return 1
			}
			return 0
		})
		if by == ByMonth && len(acc.buckets) > MonthWindow {
			acc.buckets = acc.buckets[len(acc.buckets)-MonthWindow:]
		}

	case ByWeekday:
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			key := strconv.Itoa(int(wd))
			acc.index[key] = len(acc.buckets)
			acc.buckets = append(acc.buckets, Bucket{Key: key, Label: wd.String(), Revenue: decimal.Zero, Refunds: decimal.Zero})
		}
		for _, s := range sales {
			day, err := calendar.ParseLocal(s.SaleDate, opts.Location)
			if err != nil {
				result.Excluded++
				continue
			}
			acc.add(strconv.Itoa(int(day.Weekday())), "", s.SalePrice)
		}

	case ByInstrumentType, ByMaker:
		attr := InstrumentType
		if by == ByMaker {
			attr = InstrumentMaker
		}
		for _, s := range sales {
			key := attr(s)
			if key == "" {
				result.Unresolved++
				continue
			}
			acc.add(key, key, s.SalePrice)
		}
		slices.SortStableFunc(acc.buckets, func(a, b Bucket) int {
			return b.Revenue.Cmp(a.Revenue)
		})
		acc.buckets = truncate(acc.buckets, opts.TopN)

	case ByClientRefund:
		for _, s := range sales {
			if !s.IsRefund() {
				continue
			}
			// Keyed by client id so namesakes stay apart; the name is the label.
			key, label := UnresolvedClientKey, "Unresolved client"
			if name := ClientDisplayName(s); name != "" && s.Client != nil {
				key, label = s.Client.ID, name
			}
			acc.add(key, label, s.SalePrice)
		}
		slices.SortStableFunc(acc.buckets, func(a, b Bucket) int {
			return b.Refunds.Cmp(a.Refunds)
		})
		acc.buckets = truncate(acc.buckets, opts.TopN)
	}

	result.Buckets = acc.buckets
	if result.Buckets == nil {
		result.Buckets = []Bucket{}
	}
	return result
}

func truncate(buckets []Bucket, n int) []Bucket {
	if n > 0 && len(buckets) > n {
		return buckets[:n]
	}
	return buckets
}
