package description_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outpostlabs/sdamcore/description"
)

func TestTopologyVersion_MoreRecentThan(t *testing.T) {
	t.Parallel()

	older := &description.TopologyVersion{ProcessID: "p1", Counter: 1}
	newer := &description.TopologyVersion{ProcessID: "p1", Counter: 2}

	require.True(t, newer.MoreRecentThan(older))
	require.False(t, older.MoreRecentThan(newer))
}

func TestTopologyVersion_DifferentProcess_Incomparable(t *testing.T) {
	t.Parallel()

	a := &description.TopologyVersion{ProcessID: "p1", Counter: 5}
	b := &description.TopologyVersion{ProcessID: "p2", Counter: 1}

	require.False(t, a.MoreRecentThan(b))
	require.False(t, b.MoreRecentThan(a))
}

func TestTopologyVersion_NilSafe(t *testing.T) {
	t.Parallel()

	var nilTV *description.TopologyVersion
	other := &description.TopologyVersion{ProcessID: "p1", Counter: 1}

	require.False(t, nilTV.MoreRecentThan(other))
	require.False(t, other.MoreRecentThan(nilTV))
}
