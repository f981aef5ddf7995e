// Package schedule orders normalized activities and renders them into the
// text and calendar views published per profile.
package schedule

import (
	"slices"

	"schedlist/internal/model"
)

// Sort orders activities by Start. Equal starts keep their input order.
func Sort(acts []model.Activity) {
	slices.SortStableFunc(acts, func(a, b model.Activity) int {
		return a.Start.Compare(b.Start)
	})
}

// IDSet is a set of activity ids excluded from the filtered view.
type IDSet map[string]struct{}

// NewIDSet builds a fresh set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
