package market

import "github.com/xtrntr/energytrade/internal/models"

// IDSet is a set of order ids. A nil IDSet means the set could not be
// determined, which is different from an empty set.
type IDSet map[int]struct{}

// NewIDSet collects the ids of orders. The result is never nil.
func NewIDSet(orders []models.Order) IDSet {
	set := make(IDSet, len(orders))
	for _, o := range orders {
		set[o.ID] = struct{}{}
	}
	return set
}

// Contains reports whether id is in the set
func (s IDSet) Contains(id int) bool {
	_, ok := s[id]
	return ok
}

// ExcludeOwnOrders drops every listing whose id is in own, keeping the
// original order. When own is nil the listings are returned unfiltered so
// that a failed own-order fetch degrades to the full market instead of
// blanking the view.
func ExcludeOwnOrders(listings []models.MarketListing, own IDSet) []models.MarketListing {
	out := make([]models.MarketListing, 0, len(listings))
	for _, l := range listings {
		if own != nil && own.Contains(l.ID) {
			continue
		}
		out = append(out, l)
	}
	return out
}
