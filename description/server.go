// Copyright (C) Outpost Labs. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package description holds the immutable value types that describe a
// single server (ServerDescription) and an entire cluster
// (TopologyDescription), plus the pure transition function that advances
// a TopologyDescription given a newly observed ServerDescription.
package description

import (
	"time"

	"github.com/outpostlabs/sdamcore/address"
)

// OpTime is an opaque operation-time marker, used only for staleness
// comparisons by collaborators outside this package.
type OpTime struct {
	Timestamp int64
	Ordinal   int32
}

// ProbeErrorKind classifies why a heartbeat probe failed.
type ProbeErrorKind uint32

// ProbeErrorKind constants.
const (
	ProbeErrorNone ProbeErrorKind = iota
	ProbeErrorNetwork
	ProbeErrorTimeout
	ProbeErrorAuth
	ProbeErrorWireProtocol
)

// ProbeError describes a failed heartbeat.
type ProbeError struct {
	Kind    ProbeErrorKind
	Message string
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	return e.Message
}

// HelloReply holds the fields this package consumes from a hello/isMaster
// response. Everything else about the wire reply (framing, BSON decode,
// auth handshake) is the codec collaborator's concern.
type HelloReply struct {
	OK              bool
	IsMaster        bool
	Secondary       bool
	ArbiterOnly     bool
	Hidden          bool
	IsReplicaSet    bool
	SetName         string
	SetVersion      uint32
	ElectionID      string
	Primary         address.Address
	Hosts           []string
	Passives        []string
	Arbiters        []string
	Tags            map[string]string
	Me              string
	Msg             string
	WireVersion     VersionRange
	LastWriteDate   time.Time
	OpTime          OpTime
	TopologyVersion *TopologyVersion
}

// ServerDescription is an immutable snapshot of one server's last
// observed state. The only way to "change" a server is to construct a new
// ServerDescription and submit it to a TopologyManager; address is stable
// for the server's lifetime within a topology.
type ServerDescription struct {
	Address address.Address
	Kind    ServerKind

	RoundTripTime time.Duration
	LastWriteDate time.Time
	OpTime        OpTime

	WireVersion VersionRange

	Me       address.Address
	Hosts    []address.Address
	Passives []address.Address
	Arbiters []address.Address

	SetName    string
	SetVersion uint32
	ElectionID string
	Primary    address.Address

	Tags TagSet

	TopologyVersion *TopologyVersion

	LastUpdateTime time.Time

	Error *ProbeError
}

// Defaults returns a ServerDescription for addr with zeroed metadata and
// kind Unknown, used to seed a topology before any probe has completed.
func Defaults(addr address.Address) ServerDescription {
	return ServerDescription{
		Address:        addr,
		Kind:           Unknown,
		LastUpdateTime: time.Now(),
	}
}

// FromError builds a ServerDescription recording a failed probe. Its kind
// is always Unknown; the error is never propagated to the caller that
// submitted it, only stored.
func FromError(addr address.Address, probeErr *ProbeError) ServerDescription {
	return ServerDescription{
		Address:        addr,
		Kind:           Unknown,
		Error:          probeErr,
		LastUpdateTime: time.Now(),
	}
}

// FromHelloReply parses a hello/isMaster reply into a ServerDescription,
// classifying its ServerKind per the SDAM server-type table.
func FromHelloReply(addr address.Address, reply HelloReply, rttSample time.Duration) ServerDescription {
	desc := ServerDescription{
		Address:         addr,
		RoundTripTime:   rttSample,
		LastWriteDate:   reply.LastWriteDate,
		OpTime:          reply.OpTime,
		WireVersion:     reply.WireVersion,
		SetName:         reply.SetName,
		SetVersion:      reply.SetVersion,
		ElectionID:      reply.ElectionID,
		Primary:         reply.Primary,
		TopologyVersion: reply.TopologyVersion,
		LastUpdateTime:  time.Now(),
	}

	if reply.Tags != nil {
		desc.Tags = TagSet(reply.Tags)
	}

	if reply.Me != "" {
		desc.Me = address.Address(reply.Me).Canonicalize()
	} else {
		desc.Me = addr
	}

	for _, h := range reply.Hosts {
		desc.Hosts = append(desc.Hosts, address.Address(h).Canonicalize())
	}
	for _, p := range reply.Passives {
		desc.Passives = append(desc.Passives, address.Address(p).Canonicalize())
	}
	for _, a := range reply.Arbiters {
		desc.Arbiters = append(desc.Arbiters, address.Address(a).Canonicalize())
	}

	if !reply.OK {
		desc.Kind = Unknown
		desc.Error = &ProbeError{Kind: ProbeErrorWireProtocol, Message: "hello reply not ok"}
		return desc
	}

	switch {
	case reply.IsReplicaSet:
		desc.Kind = RSGhost
	case reply.SetName != "":
		switch {
		case reply.IsMaster:
			desc.Kind = RSPrimary
		case reply.Hidden:
			desc.Kind = RSOther
		case reply.Secondary:
			desc.Kind = RSSecondary
		case reply.ArbiterOnly:
			desc.Kind = RSArbiter
		default:
			desc.Kind = RSOther
		}
	case reply.Msg == "isdbgrid":
		desc.Kind = Mongos
	default:
		desc.Kind = Standalone
	}

	return desc
}

// allHosts returns the union of Hosts, Passives, and Arbiters.
func (sd ServerDescription) allHosts() []address.Address {
	all := make([]address.Address, 0, len(sd.Hosts)+len(sd.Passives)+len(sd.Arbiters))
	all = append(all, sd.Hosts...)
	all = append(all, sd.Passives...)
	all = append(all, sd.Arbiters...)
	return all
}

// hasSetVersionAndElection reports whether both setVersion and electionId
// are populated, the precondition for stale-primary rejection.
func (sd ServerDescription) hasSetVersionAndElection() bool {
	return sd.SetVersion != 0 && sd.ElectionID != ""
}

// equalCosmetic reports structural equality excluding RoundTripTime and
// LastUpdateTime, the fields considered cosmetic for the purposes of
// deciding whether a ServerDescriptionChanged event fires.
func (sd ServerDescription) equalCosmetic(other ServerDescription) bool {
	a := sd
	b := other
	a.RoundTripTime, b.RoundTripTime = 0, 0
	a.LastUpdateTime, b.LastUpdateTime = time.Time{}, time.Time{}
	return deepEqualServer(a, b)
}

// EqualCosmetic is the exported form of equalCosmetic, for collaborators
// outside this package (the Manager) deciding whether a transition is
// worth raising as a ServerDescriptionChangedEvent.
func (sd ServerDescription) EqualCosmetic(other ServerDescription) bool {
	return sd.equalCosmetic(other)
}
