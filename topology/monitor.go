// Copyright (C) Outpost Labs. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/outpostlabs/sdamcore/address"
	"github.com/outpostlabs/sdamcore/description"
	"github.com/outpostlabs/sdamcore/event"
)

// minHeartbeatInterval bounds how often a Monitor will actually dial the
// server, even under repeated forceCheck calls, grounded on the
// teacher's server/monitor.go minHeartbeatFreqMS.
const minHeartbeatInterval = 500 * time.Millisecond

// Prober performs the hello/isMaster probe against a single server. It
// is the Monitor's sole collaboration point with the wire protocol
// codec, which this core does not implement.
type Prober interface {
	Probe(ctx context.Context, addr address.Address) (description.HelloReply, error)
}

// Monitor is a background worker for exactly one address: it probes its
// server on a schedule, submits a ServerDescription for every completed
// probe (success or failure), and can be woken early or stopped.
type Monitor struct {
	address  address.Address
	prober   Prober
	reportTo func(description.ServerDescription)

	heartbeatInterval time.Duration
	connectTimeout    time.Duration

	rtt *rttTracker

	sink       *event.Sink
	topologyID string
	log        *logrus.Entry

	checkNow chan struct{}
	done     chan struct{}
	closeWg  sync.WaitGroup
}

// startMonitor creates and launches a Monitor for addr. reportTo is
// called once per completed probe, from the Monitor's own goroutine;
// callers must make it safe to call concurrently with other monitors'
// reportTo calls (the TopologyManager does this by funneling them through
// a single channel).
func startMonitor(addr address.Address, prober Prober, reportTo func(description.ServerDescription), cfg *config) *Monitor {
	m := &Monitor{
		address:           addr,
		prober:            prober,
		reportTo:          reportTo,
		heartbeatInterval: cfg.heartbeatInterval(),
		connectTimeout:    cfg.connectTimeout(),
		rtt:               newRTTTracker(cfg.heartbeatInterval()*10, cfg.heartbeatInterval()),
		sink:              cfg.sink,
		log:               cfg.logger.WithField("address", string(addr)),
		checkNow:          make(chan struct{}, 1),
		done:              make(chan struct{}),
	}

	m.closeWg.Add(1)
	go m.run()

	return m
}

// forceCheck wakes the monitor immediately if it is sleeping. It is a
// no-op if the monitor is mid-probe or already has a pending wake.
func (m *Monitor) forceCheck() {
	select {
	case m.checkNow <- struct{}{}:
	default:
	}
}

// stop cancels any in-flight probe, joins the worker goroutine, and
// guarantees no further calls to reportTo.
func (m *Monitor) stop() {
	close(m.done)
	m.closeWg.Wait()
}

func (m *Monitor) run() {
	defer m.closeWg.Done()

	rateLimiter := time.NewTimer(0)
	defer rateLimiter.Stop()
	heartbeat := time.NewTimer(0)
	defer heartbeat.Stop()

	for {
		select {
		case <-heartbeat.C:
		case <-m.checkNow:
		case <-m.done:
			return
		}

		select {
		case <-rateLimiter.C:
		case <-m.done:
			return
		}

		desc := m.probeOnce()
		// Drop any wake requested while the probe was in flight.
		select {
		case <-m.checkNow:
		default:
		}
		m.reportTo(desc)

		rateLimiter.Reset(minHeartbeatInterval)
		heartbeat.Reset(m.heartbeatInterval)
	}
}

func (m *Monitor) probeOnce() description.ServerDescription {
	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.sink.PublishServerHeartbeatStarted(&event.ServerHeartbeatStartedEvent{Address: m.address})

	start := time.Now()
	reply, err := m.prober.Probe(ctx, m.address)
	duration := time.Since(start)

	if err != nil {
		m.rtt.reset()
		m.log.WithError(err).Debug("heartbeat probe failed")
		m.sink.PublishServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{
			Address:      m.address,
			DurationNano: duration.Nanoseconds(),
			Failure:      err,
		})
		return description.FromError(m.address, &description.ProbeError{
			Kind:    description.ProbeErrorNetwork,
			Message: err.Error(),
		})
	}

	avg := m.rtt.addSample(duration)
	desc := description.FromHelloReply(m.address, reply, avg)

	m.sink.PublishServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{
		Address:      m.address,
		DurationNano: duration.Nanoseconds(),
		Reply:        desc,
	})

	return desc
}

// MinRTT returns the minimum observed round-trip time over the rolling
// window.
func (m *Monitor) MinRTT() time.Duration {
	return m.rtt.minRTT()
}

// RTT90 returns the 90th-percentile observed round-trip time over the
// rolling window.
func (m *Monitor) RTT90() time.Duration {
	_, p90 := m.rtt.average90()
	return p90
}
