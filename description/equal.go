package description

import (
	"github.com/google/go-cmp/cmp"
)

// deepEqualServer compares two ServerDescriptions field-by-field. It is
// the single place go-cmp is invoked for server equality so callers never
// need to know which fields are comparable by value vs by pointer.
func deepEqualServer(a, b ServerDescription) bool {
	return cmp.Equal(a, b, cmp.Comparer(func(x, y *ProbeError) bool {
		if x == nil || y == nil {
			return x == y
		}
		return *x == *y
	}), cmp.Comparer(func(x, y *TopologyVersion) bool {
		if x == nil || y == nil {
			return x == y
		}
		return *x == *y
	}))
}
