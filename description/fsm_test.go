package description_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outpostlabs/sdamcore/address"
	"github.com/outpostlabs/sdamcore/description"
)

func hello(addr address.Address, kind description.ServerKind) description.ServerDescription {
	sd := description.Defaults(addr)
	sd.Kind = kind
	sd.WireVersion = description.NewVersionRange(0, 17)
	return sd
}

func TestUpdate_StaleReference_IsIgnored(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "", []address.Address{"a:27017"}, 15)
	observed := hello("b:27017", description.Standalone)

	next, events := description.Update(current, observed, 1)

	require.True(t, current.Equal(next))
	require.Empty(t, events)
}

func TestUpdate_UnknownToSingle_LoneStandalone(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.Standalone)

	next, events := description.Update(current, observed, 1)

	require.Equal(t, description.TopologySingle, next.Kind)
	require.Len(t, next.Servers, 1)
	require.NotEmpty(t, events)
}

func TestUpdate_UnknownToSharded_Mongos(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.Mongos)

	next, _ := description.Update(current, observed, 1)

	require.Equal(t, description.TopologySharded, next.Kind)
}

func TestUpdate_StandaloneObservedWithMultipleSeeds_IsDropped(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "", []address.Address{"a:27017", "b:27017"}, 15)
	observed := hello("a:27017", description.Standalone)

	next, _ := description.Update(current, observed, 2)

	require.Equal(t, description.TopologyUnknown, next.Kind)
	_, tracked := next.Servers["a:27017"]
	require.False(t, tracked)
}

func TestUpdate_ReplicaSetPrimary_AdmitsHosts(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.RSPrimary)
	observed.SetName = "rs0"
	observed.SetVersion = 1
	observed.ElectionID = "e1"
	observed.Hosts = []address.Address{"a:27017", "b:27017", "c:27017"}

	next, events := description.Update(current, observed, 1)

	require.Equal(t, description.TopologyReplicaSetWithPrimary, next.Kind)
	require.Equal(t, "rs0", next.SetName)
	require.Len(t, next.Servers, 3)
	require.Equal(t, uint32(1), next.MaxSetVersion)
	require.Equal(t, "e1", next.MaxElectionID)
	require.NotEmpty(t, events)
}

func TestUpdate_StalePrimary_IsRejectedAndForceChecked(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyReplicaSetWithPrimary, "rs0", []address.Address{"a:27017", "b:27017"}, 15)
	current.MaxSetVersion = 5
	current.MaxElectionID = "e5"
	primary := hello("a:27017", description.RSPrimary)
	primary.SetName = "rs0"
	primary.SetVersion = 5
	primary.ElectionID = "e5"
	primary.Hosts = []address.Address{"a:27017", "b:27017"}
	current.Servers["a:27017"] = primary

	stale := hello("b:27017", description.RSPrimary)
	stale.SetName = "rs0"
	stale.SetVersion = 4
	stale.ElectionID = "e4"
	stale.Hosts = []address.Address{"a:27017", "b:27017"}

	next, events := description.Update(current, stale, 2)

	require.Equal(t, description.Unknown, next.Servers["b:27017"].Kind)
	require.Equal(t, description.RSPrimary, next.Servers["a:27017"].Kind, "the real primary must not be demoted by a stale observation")

	var sawForceCheck bool
	for _, e := range events {
		if fc, ok := e.(description.ForceCheck); ok && fc.Address == "b:27017" {
			sawForceCheck = true
		}
	}
	require.True(t, sawForceCheck)
}

func TestUpdate_NewPrimaryDemotesOldPrimary(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyReplicaSetWithPrimary, "rs0", []address.Address{"a:27017", "b:27017"}, 15)
	current.MaxSetVersion = 1
	current.MaxElectionID = "e1"
	oldPrimary := hello("a:27017", description.RSPrimary)
	oldPrimary.SetName = "rs0"
	oldPrimary.SetVersion = 1
	oldPrimary.ElectionID = "e1"
	oldPrimary.Hosts = []address.Address{"a:27017", "b:27017"}
	current.Servers["a:27017"] = oldPrimary

	newPrimary := hello("b:27017", description.RSPrimary)
	newPrimary.SetName = "rs0"
	newPrimary.SetVersion = 2
	newPrimary.ElectionID = "e2"
	newPrimary.Hosts = []address.Address{"a:27017", "b:27017"}

	next, _ := description.Update(current, newPrimary, 2)

	require.Equal(t, description.RSPrimary, next.Servers["b:27017"].Kind)
	require.Equal(t, description.Unknown, next.Servers["a:27017"].Kind)
	require.Equal(t, uint32(2), next.MaxSetVersion)
	require.Equal(t, "e2", next.MaxElectionID)
}

func TestUpdate_PrimaryDropsServerNotInItsHostList(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "rs0", []address.Address{"a:27017", "ghost:27017"}, 15)
	primary := hello("a:27017", description.RSPrimary)
	primary.SetName = "rs0"
	primary.SetVersion = 1
	primary.ElectionID = "e1"
	primary.Hosts = []address.Address{"a:27017"}

	next, _ := description.Update(current, primary, 2)

	_, stillTracked := next.Servers["ghost:27017"]
	require.False(t, stillTracked)
}

func TestUpdate_SecondaryReportingDifferentSetName_IsRemoved(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyReplicaSetNoPrimary, "rs0", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.RSSecondary)
	observed.SetName = "other-rs"

	next, _ := description.Update(current, observed, 1)

	_, tracked := next.Servers["a:27017"]
	require.False(t, tracked)
}

func TestUpdate_MemberReportingDifferentMe_IsRemoved(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyReplicaSetNoPrimary, "rs0", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.RSSecondary)
	observed.SetName = "rs0"
	observed.Me = "b:27017"

	next, _ := description.Update(current, observed, 1)

	_, tracked := next.Servers["a:27017"]
	require.False(t, tracked)
}

func TestUpdate_PrimaryGoesUnknown_RecheckFallsBackToNoPrimary(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyReplicaSetWithPrimary, "rs0", []address.Address{"a:27017"}, 15)
	primary := hello("a:27017", description.RSPrimary)
	primary.SetName = "rs0"
	current.Servers["a:27017"] = primary

	observed := description.FromError("a:27017", &description.ProbeError{
		Kind:    description.ProbeErrorNetwork,
		Message: "connection reset",
	})

	next, _ := description.Update(current, observed, 1)

	require.Equal(t, description.TopologyReplicaSetNoPrimary, next.Kind)
}

func TestUpdate_Sharded_NonMongosObservation_IsRemoved(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologySharded, "", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.Standalone)

	next, _ := description.Update(current, observed, 1)

	_, tracked := next.Servers["a:27017"]
	require.False(t, tracked)
}

func TestUpdate_Compatibility_IncompatibleWireVersion(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.Standalone)
	observed.WireVersion = description.NewVersionRange(
		description.MaxSupportedWireVersion+1,
		description.MaxSupportedWireVersion+5,
	)

	next, _ := description.Update(current, observed, 1)

	require.False(t, next.Compatible)
	require.NotEmpty(t, next.CompatibilityError)
}

func TestUpdate_ReconciliationIsIdempotent(t *testing.T) {
	t.Parallel()

	current := description.New(description.TopologyUnknown, "", []address.Address{"a:27017"}, 15)
	observed := hello("a:27017", description.Mongos)

	next, _ := description.Update(current, observed, 1)
	again, events := description.Update(next, observed, 1)

	require.True(t, next.Equal(again))
	for _, e := range events {
		if sc, ok := e.(description.ServerChanged); ok {
			require.True(t, sc.Previous.EqualCosmetic(sc.Next))
		}
	}
}
