package description

import (
	"fmt"

	"github.com/outpostlabs/sdamcore/address"
)

// MinSupportedWireVersion and MaxSupportedWireVersion bound the wire
// protocol versions this driver core accepts. A server outside this
// range makes the topology incompatible.
const (
	MinSupportedWireVersion int32 = 0
	MaxSupportedWireVersion int32 = 21
)

// TopologyDescription is an immutable snapshot of an entire cluster.
type TopologyDescription struct {
	Kind    TopologyKind
	SetName string
	Servers map[address.Address]ServerDescription

	MaxSetVersion uint32
	MaxElectionID string

	Compatible         bool
	CompatibilityError string

	LocalThresholdMs int64
}

// String implements fmt.Stringer.
func (td TopologyDescription) String() string {
	return fmt.Sprintf("Type: %s, Servers: %d, SetName: %q", td.Kind, len(td.Servers), td.SetName)
}

// New creates an empty TopologyDescription seeded with the given
// addresses, all initially Unknown. kind is the caller's initial hint
// (typically TopologyUnknown, or TopologySingle/TopologyReplicaSetNoPrimary
// when the embedder already knows the deployment shape).
func New(kind TopologyKind, setName string, seeds []address.Address, localThresholdMs int64) TopologyDescription {
	servers := make(map[address.Address]ServerDescription, len(seeds))
	for _, s := range seeds {
		canon := s.Canonicalize()
		servers[canon] = Defaults(canon)
	}
	return TopologyDescription{
		Kind:             kind,
		SetName:          setName,
		Servers:          servers,
		Compatible:       true,
		LocalThresholdMs: localThresholdMs,
	}
}

// Equal reports whether two TopologyDescriptions are structurally equal,
// ignoring the cosmetic RoundTripTime/LastUpdateTime fields of each
// tracked server.
func (td TopologyDescription) Equal(other TopologyDescription) bool {
	if td.Kind != other.Kind || td.SetName != other.SetName {
		return false
	}
	if len(td.Servers) != len(other.Servers) {
		return false
	}
	for addr, sd := range td.Servers {
		od, ok := other.Servers[addr]
		if !ok || !sd.equalCosmetic(od) {
			return false
		}
	}
	return td.MaxSetVersion == other.MaxSetVersion &&
		td.MaxElectionID == other.MaxElectionID &&
		td.Compatible == other.Compatible &&
		td.CompatibilityError == other.CompatibilityError
}

// clone returns a deep copy of td, safe for the pure update function to
// mutate without aliasing the caller's map.
func (td TopologyDescription) clone() TopologyDescription {
	next := td
	next.Servers = make(map[address.Address]ServerDescription, len(td.Servers))
	for k, v := range td.Servers {
		next.Servers[k] = v
	}
	return next
}

// findPrimary returns the address of the server currently described as
// RSPrimary, if any.
func (td TopologyDescription) findPrimary() (address.Address, bool) {
	for addr, sd := range td.Servers {
		if sd.Kind == RSPrimary {
			return addr, true
		}
	}
	return "", false
}

// supportedWireVersions is the wire version range this driver core speaks.
var supportedWireVersions = NewVersionRange(MinSupportedWireVersion, MaxSupportedWireVersion)

// overlaps reports whether vr and other describe overlapping ranges: true
// iff either range's endpoint falls inside the other.
func (vr VersionRange) overlaps(other VersionRange) bool {
	return vr.Includes(other.Min) || vr.Includes(other.Max) ||
		other.Includes(vr.Min) || other.Includes(vr.Max)
}

// recomputeCompatibility implements spec rule 6: compatible iff every
// non-Unknown server's wire version range overlaps the driver's.
func (td *TopologyDescription) recomputeCompatibility() {
	for addr, sd := range td.Servers {
		if sd.Kind == Unknown {
			continue
		}
		if !supportedWireVersions.overlaps(sd.WireVersion) {
			td.Compatible = false
			switch {
			case sd.WireVersion.Max < MinSupportedWireVersion:
				td.CompatibilityError = fmt.Sprintf(
					"server at %s reports wire version max %d, but this driver requires at least %d",
					addr, sd.WireVersion.Max, MinSupportedWireVersion)
			default:
				td.CompatibilityError = fmt.Sprintf(
					"server at %s requires wire version min %d, but this driver supports up to %d",
					addr, sd.WireVersion.Min, MaxSupportedWireVersion)
			}
			return
		}
	}
	td.Compatible = true
	td.CompatibilityError = ""
}
