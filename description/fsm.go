package description

import (
	"github.com/outpostlabs/sdamcore/address"
)

// Event is produced by Update. It is either a ServerChanged pair (a
// semantic or cosmetic transition for one tracked server) or a
// ForceCheck directive asking the embedder to wake a monitor early.
type Event interface {
	isEvent()
}

// ServerChanged carries the previous and next description of one server.
// Previous is the zero ServerDescription when the server has no prior
// recorded description.
type ServerChanged struct {
	Previous ServerDescription
	Next     ServerDescription
}

func (ServerChanged) isEvent() {}

// ForceCheck asks the embedder to wake the monitor for Address
// immediately rather than waiting for its next scheduled heartbeat.
type ForceCheck struct {
	Address address.Address
}

func (ForceCheck) isEvent() {}

// fsm carries the mutable working state for a single Update call. It is
// discarded after use; Update itself remains a pure function of its
// arguments.
type fsm struct {
	desc        TopologyDescription
	events      []Event
	forceChecks map[address.Address]bool
}

func (f *fsm) addForceCheck(addr address.Address) {
	if f.forceChecks[addr] {
		return
	}
	f.forceChecks[addr] = true
	f.events = append(f.events, ForceCheck{Address: addr})
}

// setServer stores next at addr and records a ServerChanged event
// against whatever was previously stored (the zero value if addr is new).
func (f *fsm) setServer(addr address.Address, next ServerDescription) {
	prev := f.desc.Servers[addr]
	f.desc.Servers[addr] = next
	f.events = append(f.events, ServerChanged{Previous: prev, Next: next})
}

// removeServer drops addr from the tracked set. Removal never produces a
// ServerChanged event; the Manager's reconciliation step is responsible
// for the corresponding ServerClosedEvent.
func (f *fsm) removeServer(addr address.Address) {
	delete(f.desc.Servers, addr)
}

// addUnknownPlaceholder admits a newly discovered address with a default
// Unknown description, without emitting a ServerChanged event (it has no
// meaningful "previous" state; ServerOpeningEvent covers its admission).
func (f *fsm) addUnknownPlaceholder(addr address.Address) {
	if _, ok := f.desc.Servers[addr]; ok {
		return
	}
	f.desc.Servers[addr] = Defaults(addr)
}

// Update is the pure transition function described by the SDAM
// specification: given the current TopologyDescription and a newly
// observed ServerDescription, it returns the next TopologyDescription and
// the list of events produced along the way. seedCount is the number of
// addresses the TopologyManager was originally started with, needed to
// decide whether a lone Standalone observation should become topology
// kind Single.
func Update(current TopologyDescription, observed ServerDescription, seedCount int) (TopologyDescription, []Event) {
	if _, tracked := current.Servers[observed.Address]; !tracked {
		// Rule 1: stale reference to a server the topology has already
		// forgotten about. Ignore it entirely.
		return current, nil
	}

	f := &fsm{
		desc:        current.clone(),
		forceChecks: make(map[address.Address]bool),
	}

	switch f.desc.Kind {
	case TopologyUnknown:
		f.applyToUnknown(observed, seedCount)
	case TopologySingle:
		f.applyToSingle(observed)
	case TopologySharded:
		f.applyToSharded(observed)
	case TopologyReplicaSetNoPrimary, TopologyReplicaSetWithPrimary:
		f.applyToReplicaSet(observed)
	}

	f.desc.recomputeCompatibility()

	return f.desc, f.events
}

// applyToUnknown implements spec rule 2.
func (f *fsm) applyToUnknown(observed ServerDescription, seedCount int) {
	switch observed.Kind {
	case Standalone:
		if seedCount == 1 {
			f.desc.Kind = TopologySingle
			f.setServer(observed.Address, observed)
			return
		}
		f.removeServer(observed.Address)
	case Mongos:
		f.desc.Kind = TopologySharded
		f.setServer(observed.Address, observed)
	case RSPrimary:
		if f.desc.SetName == "" {
			f.desc.SetName = observed.SetName
		}
		f.desc.Kind = TopologyReplicaSetNoPrimary
		f.updateRSFromPrimary(observed)
	case RSSecondary, RSArbiter, RSOther:
		if f.desc.SetName == "" {
			f.desc.SetName = observed.SetName
		}
		f.desc.Kind = TopologyReplicaSetNoPrimary
		f.updateRSFromMember(observed)
	case RSGhost, PossiblePrimary:
		f.setServer(observed.Address, observed)
	default: // Unknown: probe failure, nothing learned yet.
		f.setServer(observed.Address, observed)
	}
}

// applyToSingle implements spec rule 3.
func (f *fsm) applyToSingle(observed ServerDescription) {
	f.setServer(observed.Address, observed)
}

// applyToSharded implements spec rule 4.
func (f *fsm) applyToSharded(observed ServerDescription) {
	switch observed.Kind {
	case Mongos, Unknown:
		f.setServer(observed.Address, observed)
	default:
		f.removeServer(observed.Address)
	}
}

// applyToReplicaSet implements spec rule 5.
func (f *fsm) applyToReplicaSet(observed ServerDescription) {
	if f.desc.SetName != "" && observed.SetName != "" && observed.SetName != f.desc.SetName {
		f.removeServer(observed.Address)
		f.recheckPrimaryPresence()
		return
	}

	switch observed.Kind {
	case RSPrimary:
		f.updateRSFromPrimary(observed)
	case RSSecondary, RSArbiter, RSOther:
		f.updateRSFromMember(observed)
	case Mongos, Standalone:
		f.removeServer(observed.Address)
	case RSGhost, PossiblePrimary:
		f.setServer(observed.Address, observed)
		f.recheckPrimaryPresence()
	default: // Unknown: probe failure or explicit demotion.
		f.setServer(observed.Address, observed)
		f.recheckPrimaryPresence()
	}
}

// updateRSFromPrimary implements the RSPrimary-observed bullet of rule 5,
// including stale-primary rejection and watermark advancement.
func (f *fsm) updateRSFromPrimary(observed ServerDescription) {
	if observed.hasSetVersionAndElection() {
		if isStalerThan(observed.SetVersion, observed.ElectionID, f.desc.MaxSetVersion, f.desc.MaxElectionID) {
			coerced := observed
			coerced.Kind = Unknown
			coerced.Error = &ProbeError{Kind: ProbeErrorNone, Message: "was a primary, but its set version or election id is stale"}
			f.setServer(observed.Address, coerced)
			f.addForceCheck(observed.Address)
			f.recheckPrimaryPresence()
			return
		}

		oldMaxSetVersion := f.desc.MaxSetVersion
		if observed.SetVersion > f.desc.MaxSetVersion {
			f.desc.MaxSetVersion = observed.SetVersion
		}
		if observed.SetVersion >= oldMaxSetVersion {
			f.desc.MaxElectionID = observed.ElectionID
		}
	}

	if otherAddr, ok := f.desc.findPrimary(); ok && otherAddr != observed.Address {
		demoted := f.desc.Servers[otherAddr]
		demoted.Kind = Unknown
		demoted.Error = &ProbeError{Kind: ProbeErrorNone, Message: "was a primary, but a new primary was discovered"}
		f.setServer(otherAddr, demoted)
		f.addForceCheck(otherAddr)
	}

	f.setServer(observed.Address, observed)

	union := observed.allHosts()
	inUnion := make(map[address.Address]bool, len(union))
	for _, addr := range union {
		inUnion[addr] = true
	}
	for addr := range f.desc.Servers {
		if !inUnion[addr] && addr != observed.Address {
			f.removeServer(addr)
		}
	}
	for _, addr := range union {
		f.addUnknownPlaceholder(addr)
	}

	f.desc.Kind = TopologyReplicaSetWithPrimary
}

// updateRSFromMember implements the RSSecondary/RSArbiter/RSOther-observed
// bullet of rule 5.
func (f *fsm) updateRSFromMember(observed ServerDescription) {
	if observed.Me != "" && observed.Me != observed.Address {
		f.removeServer(observed.Address)
		f.recheckPrimaryPresence()
		return
	}

	for _, addr := range observed.allHosts() {
		f.addUnknownPlaceholder(addr)
	}

	f.setServer(observed.Address, observed)
	f.recheckPrimaryPresence()
}

// recheckPrimaryPresence sets the topology kind to ReplicaSetWithPrimary
// or ReplicaSetNoPrimary depending on whether any tracked server is
// currently RSPrimary.
func (f *fsm) recheckPrimaryPresence() {
	if _, ok := f.desc.findPrimary(); ok {
		f.desc.Kind = TopologyReplicaSetWithPrimary
	} else {
		f.desc.Kind = TopologyReplicaSetNoPrimary
	}
}

// isStalerThan reports whether (setVersion, electionID) is strictly less
// than (maxSetVersion, maxElectionID), comparing setVersion first and
// electionID only when setVersions are equal.
func isStalerThan(setVersion uint32, electionID string, maxSetVersion uint32, maxElectionID string) bool {
	if setVersion != maxSetVersion {
		return setVersion < maxSetVersion
	}
	return electionID < maxElectionID
}
