// Copyright (C) Outpost Labs. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package event defines the lifecycle and transition events a
// TopologyManager emits, and the Sink an embedder provides to receive
// them.
package event

import (
	"github.com/outpostlabs/sdamcore/address"
	"github.com/outpostlabs/sdamcore/description"
)

// TopologyOpeningEvent is emitted once, when a TopologyManager starts.
type TopologyOpeningEvent struct {
	TopologyID string
}

// TopologyClosedEvent is emitted once, when a TopologyManager stops.
type TopologyClosedEvent struct {
	TopologyID string
}

// TopologyDescriptionChangedEvent is emitted whenever the Manager's held
// TopologyDescription changes, structurally, from Previous to New.
type TopologyDescriptionChangedEvent struct {
	TopologyID string
	Previous   description.TopologyDescription
	New        description.TopologyDescription
}

// ServerOpeningEvent is emitted when a server address is admitted to the
// topology and a Monitor/pool pair is started for it.
type ServerOpeningEvent struct {
	TopologyID string
	Address    address.Address
}

// ServerClosedEvent is emitted when a server address is removed from the
// topology and its Monitor/pool pair is stopped.
type ServerClosedEvent struct {
	TopologyID string
	Address    address.Address
}

// ServerDescriptionChangedEvent is emitted when a tracked server's
// description changes, structurally (ignoring RTT/timestamp).
type ServerDescriptionChangedEvent struct {
	TopologyID string
	Address    address.Address
	Previous   description.ServerDescription
	New        description.ServerDescription
}

// ServerHeartbeatStartedEvent is emitted by a Monitor immediately before
// it sends a hello/isMaster probe.
type ServerHeartbeatStartedEvent struct {
	Address address.Address
	Awaited bool
}

// ServerHeartbeatSucceededEvent is emitted by a Monitor after a
// successful probe.
type ServerHeartbeatSucceededEvent struct {
	Address      address.Address
	DurationNano int64
	Reply        description.ServerDescription
	Awaited      bool
}

// ServerHeartbeatFailedEvent is emitted by a Monitor after a failed
// probe.
type ServerHeartbeatFailedEvent struct {
	Address      address.Address
	DurationNano int64
	Failure      error
	Awaited      bool
}

// Sink is the set of callbacks a TopologyManager invokes as lifecycle and
// transition events occur. Each field is optional; a nil field is simply
// skipped. This is a struct of callbacks rather than an N-method
// interface, so an embedder can wire up only the events it cares about.
//
// Emission is synchronous with respect to state update ordering: for any
// single subscriber, event N is observed before event N+1. A callback
// that panics is recovered so it cannot take down the Manager goroutine;
// a callback that blocks indefinitely will stall delivery of later
// events to this Sink (not to other Sinks), so embedders composing
// multiple observers should keep each Sink's callbacks non-blocking.
type Sink struct {
	TopologyOpening            func(*TopologyOpeningEvent)
	TopologyClosed             func(*TopologyClosedEvent)
	TopologyDescriptionChanged func(*TopologyDescriptionChangedEvent)
	ServerOpening              func(*ServerOpeningEvent)
	ServerClosed               func(*ServerClosedEvent)
	ServerDescriptionChanged   func(*ServerDescriptionChangedEvent)
	ServerHeartbeatStarted     func(*ServerHeartbeatStartedEvent)
	ServerHeartbeatSucceeded   func(*ServerHeartbeatSucceededEvent)
	ServerHeartbeatFailed      func(*ServerHeartbeatFailedEvent)
}

// guard recovers a panicking callback so it cannot take down the
// Manager goroutine.
func guard(call func()) {
	defer func() { _ = recover() }()
	call()
}

// PublishTopologyOpening invokes the TopologyOpening callback, if set.
func (s *Sink) PublishTopologyOpening(e *TopologyOpeningEvent) {
	if s == nil || s.TopologyOpening == nil {
		return
	}
	guard(func() { s.TopologyOpening(e) })
}

// PublishTopologyClosed invokes the TopologyClosed callback, if set.
func (s *Sink) PublishTopologyClosed(e *TopologyClosedEvent) {
	if s == nil || s.TopologyClosed == nil {
		return
	}
	guard(func() { s.TopologyClosed(e) })
}

// PublishTopologyDescriptionChanged invokes the TopologyDescriptionChanged
// callback, if set.
func (s *Sink) PublishTopologyDescriptionChanged(e *TopologyDescriptionChangedEvent) {
	if s == nil || s.TopologyDescriptionChanged == nil {
		return
	}
	guard(func() { s.TopologyDescriptionChanged(e) })
}

// PublishServerOpening invokes the ServerOpening callback, if set.
func (s *Sink) PublishServerOpening(e *ServerOpeningEvent) {
	if s == nil || s.ServerOpening == nil {
		return
	}
	guard(func() { s.ServerOpening(e) })
}

// PublishServerClosed invokes the ServerClosed callback, if set.
func (s *Sink) PublishServerClosed(e *ServerClosedEvent) {
	if s == nil || s.ServerClosed == nil {
		return
	}
	guard(func() { s.ServerClosed(e) })
}

// PublishServerDescriptionChanged invokes the ServerDescriptionChanged
// callback, if set.
func (s *Sink) PublishServerDescriptionChanged(e *ServerDescriptionChangedEvent) {
	if s == nil || s.ServerDescriptionChanged == nil {
		return
	}
	guard(func() { s.ServerDescriptionChanged(e) })
}

// PublishServerHeartbeatStarted invokes the ServerHeartbeatStarted
// callback, if set.
func (s *Sink) PublishServerHeartbeatStarted(e *ServerHeartbeatStartedEvent) {
	if s == nil || s.ServerHeartbeatStarted == nil {
		return
	}
	guard(func() { s.ServerHeartbeatStarted(e) })
}

// PublishServerHeartbeatSucceeded invokes the ServerHeartbeatSucceeded
// callback, if set.
func (s *Sink) PublishServerHeartbeatSucceeded(e *ServerHeartbeatSucceededEvent) {
	if s == nil || s.ServerHeartbeatSucceeded == nil {
		return
	}
	guard(func() { s.ServerHeartbeatSucceeded(e) })
}

// PublishServerHeartbeatFailed invokes the ServerHeartbeatFailed
// callback, if set.
func (s *Sink) PublishServerHeartbeatFailed(e *ServerHeartbeatFailedEvent) {
	if s == nil || s.ServerHeartbeatFailed == nil {
		return
	}
	guard(func() { s.ServerHeartbeatFailed(e) })
}
