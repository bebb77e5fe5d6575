package description

// VersionRange represents a minimum/maximum pair, used here to describe
// the wire-protocol versions a server speaks.
type VersionRange struct {
	Min int32
	Max int32
}

// NewVersionRange creates a VersionRange with the given min and max.
func NewVersionRange(min, max int32) VersionRange {
	return VersionRange{Min: min, Max: max}
}

// Includes reports whether v falls within the range, inclusive.
func (vr VersionRange) Includes(v int32) bool {
	return v >= vr.Min && v <= vr.Max
}
