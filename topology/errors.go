// Copyright (C) Outpost Labs. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"fmt"

	"github.com/outpostlabs/sdamcore/address"
)

// ConfigError represents a validation failure at TopologyManager startup.
// No resources are allocated when a ConfigError is returned.
type ConfigError struct {
	Reason  string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("topology config: %s: %s", e.Reason, e.Message)
}

// Reasons a ConfigError can carry.
const (
	ReasonSingleTopologyMultipleHosts = "SingleTopologyMultipleHosts"
	ReasonSetNameBadTopology          = "SetNameBadTopology"
	ReasonMissingDatabase             = "MissingDatabase"
	ReasonHeartbeatTooFrequent        = "HeartbeatTooFrequent"
)

func errSingleTopologyMultipleHosts(seedCount int) *ConfigError {
	return &ConfigError{
		Reason:  ReasonSingleTopologyMultipleHosts,
		Message: fmt.Sprintf("topology type Single requires exactly one seed, got %d", seedCount),
	}
}

func errSetNameBadTopology(kind string) *ConfigError {
	return &ConfigError{
		Reason:  ReasonSetNameBadTopology,
		Message: fmt.Sprintf("setName is only valid with topology type ReplicaSetNoPrimary, Single, or Unknown, got %s", kind),
	}
}

func errMissingDatabase() *ConfigError {
	return &ConfigError{
		Reason:  ReasonMissingDatabase,
		Message: "database is required",
	}
}

func errHeartbeatTooFrequent(got, floor int64) *ConfigError {
	return &ConfigError{
		Reason:  ReasonHeartbeatTooFrequent,
		Message: fmt.Sprintf("heartbeatFrequencyMs %d is below the monitor's minimum of %dms", got, floor),
	}
}

// PoolOpenError wraps the dial failure recorded when a Pool fails to open
// for an address during reconciliation. It is logged, a ServerClosedEvent
// (which carries no cause) is published for that address, and the address
// is dropped from the topology rather than retried inline.
type PoolOpenError struct {
	Address address.Address
	Wrapped error
}

// Error implements the error interface.
func (e *PoolOpenError) Error() string {
	return fmt.Sprintf("opening pool for %s: %s", e.Address, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *PoolOpenError) Unwrap() error {
	return e.Wrapped
}

// ErrShuttingDown is returned by every TopologyManager method other than
// Stop once Stop has been invoked.
type shuttingDownError struct{}

func (shuttingDownError) Error() string { return "topology manager is shutting down" }

// ErrShuttingDown is the sentinel returned to callers of a stopped
// TopologyManager.
var ErrShuttingDown error = shuttingDownError{}

// serverNotFoundError is returned by ConnectionFor when the address was
// never admitted to the topology, or has since been removed.
type serverNotFoundError struct {
	Address address.Address
}

func (e serverNotFoundError) Error() string {
	return fmt.Sprintf("server %s not found in topology", e.Address)
}

// errServerNotFound constructs the not-found error for addr.
func errServerNotFound(addr address.Address) error {
	return serverNotFoundError{Address: addr}
}
