// Copyright (C) Outpost Labs. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology implements the TopologyManager: the single owner of a
// cluster's mutable TopologyDescription, the worker set of per-address
// Monitors, and the per-address connection Pools reconciled against that
// description. Everything in this package is concurrency-safe to call
// from multiple goroutines; internally, every state mutation is
// serialized onto one goroutine (the Manager task) via a single-writer
// message loop.
package topology

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/outpostlabs/sdamcore/address"
	"github.com/outpostlabs/sdamcore/description"
	"github.com/outpostlabs/sdamcore/event"
)

// newTopologyID returns a unique identifier for one TopologyManager's
// lifetime, scoping every event it emits to that one run.
func newTopologyID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// TopologyManager discovers, classifies, and continuously monitors a set
// of servers, and maintains a live address → Pool map. See package doc.
type TopologyManager struct {
	cfg        *config
	topologyID string
	log        *logrus.Entry

	observations chan description.ServerDescription
	commands     chan func()
	done         chan struct{}
	loopDone     chan struct{}

	stopOnce sync.Once
	stopErr  error

	// Manager-task-only state below; never touched from any other
	// goroutine. Reads/writes happen exclusively inside run().
	current   description.TopologyDescription
	seedCount int
	monitors  map[address.Address]*Monitor
	pools     map[address.Address]Pool
	stopped   bool
}

// Start validates opts, opens the initial TopologyDescription from the
// configured seeds, and launches the Manager task plus one Monitor and
// Pool per seed. On a configuration error, no resources are allocated
// and no events are emitted.
func Start(prober Prober, opts ...Option) (*TopologyManager, error) {
	cfg := newConfig(opts...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if prober == nil {
		prober = noopProber{}
	}

	canonSeeds := make([]address.Address, 0, len(cfg.seeds))
	for _, s := range cfg.seeds {
		canonSeeds = append(canonSeeds, s.Canonicalize())
	}

	topologyID := newTopologyID()

	m := &TopologyManager{
		cfg:          cfg,
		topologyID:   topologyID,
		log:          cfg.logger.WithField("topology_id", topologyID),
		observations: make(chan description.ServerDescription, 64),
		commands:     make(chan func()),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		current:      description.New(cfg.kind, cfg.setName, canonSeeds, cfg.localThresholdMs),
		seedCount:    len(canonSeeds),
		monitors:     make(map[address.Address]*Monitor),
		pools:        make(map[address.Address]Pool),
	}

	cfg.sink.PublishTopologyOpening(&event.TopologyOpeningEvent{TopologyID: topologyID})

	m.current = m.reconcile(m.current, prober)

	go m.run(prober)

	return m, nil
}

// Topology returns a snapshot of the Manager's current
// TopologyDescription.
func (m *TopologyManager) Topology() (description.TopologyDescription, error) {
	var out description.TopologyDescription
	err := m.do(func() {
		out = m.current
	})
	return out, err
}

// ConnectionFor returns the Pool for addr, or an error if addr was never
// admitted to the topology, or has since been removed.
func (m *TopologyManager) ConnectionFor(addr address.Address) (Pool, error) {
	canon := addr.Canonicalize()
	var pool Pool
	var notFound bool
	err := m.do(func() {
		p, ok := m.pools[canon]
		if !ok {
			notFound = true
			return
		}
		pool = p
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, errServerNotFound(canon)
	}
	return pool, nil
}

// Submit enqueues an observed ServerDescription. It returns once the
// observation has been queued, not once it has been applied; apply order
// across Submit calls from different callers is unspecified, but two
// Submit calls made by the same caller (e.g. a single Monitor) are
// applied in the order submitted.
func (m *TopologyManager) Submit(observed description.ServerDescription) error {
	select {
	case <-m.done:
		return ErrShuttingDown
	default:
	}
	select {
	case m.observations <- observed:
		return nil
	case <-m.done:
		return ErrShuttingDown
	}
}

// RequestImmediateCheck forces every live Monitor to probe right away,
// instead of waiting for its next scheduled heartbeat.
func (m *TopologyManager) RequestImmediateCheck() error {
	return m.do(func() {
		for _, mon := range m.monitors {
			mon.forceCheck()
		}
	})
}

// Stop stops every Monitor, closes every Pool, emits a ServerClosedEvent
// per address and a TopologyClosedEvent, then returns. Stop is
// idempotent; subsequent calls return nil without re-emitting events.
func (m *TopologyManager) Stop() error {
	m.stopOnce.Do(func() {
		close(m.done)
		<-m.loopDone
	})
	return m.stopErr
}

// do posts fn to the Manager task and blocks until it has run,
// returning ErrShuttingDown if the Manager has already stopped.
func (m *TopologyManager) do(fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case m.commands <- wrapped:
	case <-m.done:
		return ErrShuttingDown
	}
	select {
	case <-done:
		return nil
	case <-m.loopDone:
		return ErrShuttingDown
	}
}

// run is the Manager task: the single goroutine that owns current,
// monitors, and pools. It suspends only between messages; the FSM
// transition itself is pure and non-blocking.
func (m *TopologyManager) run(prober Prober) {
	defer close(m.loopDone)

	for {
		select {
		case observed := <-m.observations:
			m.applyObservation(observed, prober)
		case cmd := <-m.commands:
			cmd()
		case <-m.done:
			m.shutdown()
			return
		}
	}
}

func (m *TopologyManager) applyObservation(observed description.ServerDescription, prober Prober) {
	next, events := description.Update(m.current, observed, m.seedCount)
	next = m.reconcile(next, prober)

	for _, e := range events {
		switch ev := e.(type) {
		case description.ServerChanged:
			if ev.Previous.EqualCosmetic(ev.Next) {
				continue
			}
			m.cfg.sink.PublishServerDescriptionChanged(&event.ServerDescriptionChangedEvent{
				TopologyID: m.topologyID,
				Address:    ev.Next.Address,
				Previous:   ev.Previous,
				New:        ev.Next,
			})
		}
	}
	for _, e := range events {
		if fc, ok := e.(description.ForceCheck); ok {
			if mon, ok := m.monitors[fc.Address]; ok {
				mon.forceCheck()
			}
		}
	}

	if !m.current.Equal(next) {
		m.cfg.sink.PublishTopologyDescriptionChanged(&event.TopologyDescriptionChangedEvent{
			TopologyID: m.topologyID,
			Previous:   m.current,
			New:        next,
		})
	}

	m.current = next
}

// reconcile starts a Monitor+Pool for every newly-admitted address and
// stops the Monitor+Pool for every address no longer present, then
// returns the (possibly further adjusted, if a Pool failed to open)
// TopologyDescription. Reconciling the same description twice in a row
// is a no-op.
func (m *TopologyManager) reconcile(desc description.TopologyDescription, prober Prober) description.TopologyDescription {
	for addr := range desc.Servers {
		if _, ok := m.monitors[addr]; ok {
			continue
		}

		m.cfg.sink.PublishServerOpening(&event.ServerOpeningEvent{TopologyID: m.topologyID, Address: addr})

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.connectTimeout())
		pool, err := m.cfg.poolFactory.Open(ctx, ConnectOptions{
			Address:        addr,
			Database:       m.cfg.database,
			ConnectTimeout: m.cfg.connectTimeout(),
		})
		cancel()

		if err != nil {
			openErr := &PoolOpenError{Address: addr, Wrapped: err}
			m.log.WithField("address", string(addr)).WithError(openErr).
				Error("failed to open connection pool; dropping server from topology")
			m.cfg.sink.PublishServerClosed(&event.ServerClosedEvent{TopologyID: m.topologyID, Address: addr})
			delete(desc.Servers, addr)
			// Restart reconciliation on the shrunk description. An
			// address without a Monitor was admitted as an Unknown
			// placeholder, so dropping it changes neither the topology
			// kind nor the setVersion/electionId watermarks.
			return m.reconcile(desc, prober)
		}

		mon := startMonitor(addr, prober, m.reportObservation, m.cfg)
		m.monitors[addr] = mon
		m.pools[addr] = pool
	}

	for addr, mon := range m.monitors {
		if _, ok := desc.Servers[addr]; ok {
			continue
		}
		mon.stop()
		if pool, ok := m.pools[addr]; ok {
			pool.Close()
			delete(m.pools, addr)
		}
		delete(m.monitors, addr)
		m.cfg.sink.PublishServerClosed(&event.ServerClosedEvent{TopologyID: m.topologyID, Address: addr})
	}

	return desc
}

// reportObservation adapts Submit to the reportTo signature Monitors
// call with; it swallows ErrShuttingDown since a Monitor racing its own
// stop() against a just-closed Manager has nowhere useful to report the
// error.
func (m *TopologyManager) reportObservation(desc description.ServerDescription) {
	_ = m.Submit(desc)
}

func (m *TopologyManager) shutdown() {
	if m.stopped {
		return
	}
	m.stopped = true

	for addr, mon := range m.monitors {
		mon.stop()
		if pool, ok := m.pools[addr]; ok {
			pool.Close()
		}
		m.cfg.sink.PublishServerClosed(&event.ServerClosedEvent{TopologyID: m.topologyID, Address: addr})
	}
	m.monitors = map[address.Address]*Monitor{}
	m.pools = map[address.Address]Pool{}

	m.cfg.sink.PublishTopologyClosed(&event.TopologyClosedEvent{TopologyID: m.topologyID})
}

// noopProber is used when no Prober is supplied; every probe fails. It
// exists so a TopologyManager is constructible (and its Monitors
// observable) before an embedder wires in the real wire-protocol
// collaborator.
type noopProber struct{}

func (noopProber) Probe(ctx context.Context, addr address.Address) (description.HelloReply, error) {
	return description.HelloReply{}, errors.New("no prober configured")
}
