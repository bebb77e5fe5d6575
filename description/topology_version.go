package description

// TopologyVersion is an optional monotonic counter some servers attach to
// hello/isMaster replies, scoped to a single server process. It is carried
// on ServerDescription for collaborators to compare with MoreRecentThan;
// Update does not consult it, so it plays no part in tie-breaking or in
// primary-election adjudication, which is governed by setVersion/electionId.
type TopologyVersion struct {
	ProcessID string
	Counter   int64
}

// MoreRecentThan reports whether tv is a more recent observation than
// other. Two TopologyVersions from different processes are considered
// incomparable and MoreRecentThan returns false for both orderings.
func (tv *TopologyVersion) MoreRecentThan(other *TopologyVersion) bool {
	if tv == nil || other == nil {
		return false
	}
	if tv.ProcessID != other.ProcessID {
		return false
	}
	return tv.Counter > other.Counter
}
