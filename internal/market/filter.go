package market

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xtrntr/energytrade/internal/models"
)

// SortKey selects the attribute a collection is ordered by
type SortKey string

const (
	SortByPrice  SortKey = "price"
	SortByAmount SortKey = "amount"
	SortByDate   SortKey = "date"
)

// Direction is the sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// FilterSpec is a view-owned query over a collection. Nil bounds are
// unconstrained; all bounds are inclusive.
type FilterSpec struct {
	MinPrice  *float64
	MaxPrice  *float64
	MinAmount *float64
	MaxAmount *float64
	From      *time.Time
	To        *time.Time
	SortBy    SortKey
	Direction Direction
}

// Bound returns a pointer to v for use as a FilterSpec bound
func Bound(v float64) *float64 {
	return &v
}

// ParseSortKey parses a user supplied sort key. Empty selects price.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByPrice:
		return SortByPrice, nil
	case SortByAmount:
		return SortByAmount, nil
	case SortByDate:
		return SortByDate, nil
	}
	return "", fmt.Errorf("unknown sort key %q (want price, amount or date)", s)
}

// ParseDirection parses a user supplied sort direction. Empty selects asc.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("unknown sort direction %q (want asc or desc)", s)
}

// normalized fills in the defaults used when a key or direction is unset or unknown
func (s FilterSpec) normalized() FilterSpec {
	switch s.SortBy {
	case SortByPrice, SortByAmount, SortByDate:
	default:
		s.SortBy = SortByPrice
	}
	if s.Direction != Desc {
		s.Direction = Asc
	}
	return s
}

// Matches reports whether q satisfies every bound in s
func (s FilterSpec) Matches(q models.Quote) bool {
	price, amount := q.UnitPrice(), q.Quantity()
	if s.MinPrice != nil && !(price >= *s.MinPrice) {
		return false
	}
	if s.MaxPrice != nil && !(price <= *s.MaxPrice) {
		return false
	}
	if s.MinAmount != nil && !(amount >= *s.MinAmount) {
		return false
	}
	if s.MaxAmount != nil && !(amount <= *s.MaxAmount) {
		return false
	}
	ts := q.Timestamp()
	if s.From != nil && ts.Before(*s.From) {
		return false
	}
	if s.To != nil && ts.After(*s.To) {
		return false
	}
	return true
}

// FilterAndSort returns the items matching spec, ordered by spec's key and
// direction. The input slice is not modified. Items comparing equal keep
// their original relative order.
func FilterAndSort[T models.Quote](items []T, spec FilterSpec) []T {
	spec = spec.normalized()

	out := make([]T, 0, len(items))
	for _, item := range items {
		if spec.Matches(item) {
			out = append(out, item)
		}
	}

	slices.SortStableFunc(out, func(a, b T) int {
		c := compareBy(spec.SortBy, a, b)
		if spec.Direction == Desc {
			return -c
		}
		return c
	})
	return out
}

func compareBy(key SortKey, a, b models.Quote) int {
	switch key {
	case SortByAmount:
		return cmp.Compare(a.Quantity(), b.Quantity())
	case SortByDate:
		return a.Timestamp().Compare(b.Timestamp())
	default:
		return cmp.Compare(a.UnitPrice(), b.UnitPrice())
	}
}
