package topology

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/outpostlabs/sdamcore/address"
	"github.com/outpostlabs/sdamcore/description"
	"github.com/outpostlabs/sdamcore/event"
)

// minHeartbeatFrequencyMs is the monitor's own floor on probe frequency;
// carried into config validation.
const minHeartbeatFrequencyMs = 500

func newConfig(opts ...Option) *config {
	cfg := &config{
		database:             "",
		seeds:                []address.Address{"localhost:27017"},
		kind:                 description.TopologyUnknown,
		setName:              "",
		heartbeatFrequencyMs: 10000,
		localThresholdMs:     15,
		connectTimeoutMs:     10000,
		logger:               logrus.StandardLogger(),
		poolFactory:          &DialerPoolFactory{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

type config struct {
	database             string
	seeds                []address.Address
	kind                 description.TopologyKind
	setName              string
	heartbeatFrequencyMs int64
	localThresholdMs     int64
	connectTimeoutMs     int64

	logger      *logrus.Logger
	sink        *event.Sink
	poolFactory PoolFactory
}

// Option configures a TopologyManager at Start time.
type Option func(*config)

// WithDatabase sets the (required) database name passed through to every
// Pool opened during reconciliation.
func WithDatabase(database string) Option {
	return func(c *config) { c.database = database }
}

// WithSeeds sets the initial seed list. Addresses are canonicalized when
// the TopologyManager starts.
func WithSeeds(seeds ...address.Address) Option {
	return func(c *config) { c.seeds = seeds }
}

// WithInitialKind sets the initial topology type hint.
func WithInitialKind(kind description.TopologyKind) Option {
	return func(c *config) { c.kind = kind }
}

// WithSetName sets the expected replica set name.
func WithSetName(name string) Option {
	return func(c *config) { c.setName = name }
}

// WithHeartbeatFrequencyMs sets how often each Monitor probes its server
// absent a forced check.
func WithHeartbeatFrequencyMs(ms int64) Option {
	return func(c *config) { c.heartbeatFrequencyMs = ms }
}

// WithLocalThresholdMs sets the selection-layer tuning value carried
// through on the TopologyDescription.
func WithLocalThresholdMs(ms int64) Option {
	return func(c *config) { c.localThresholdMs = ms }
}

// WithConnectTimeoutMs bounds how long Monitor/Pool startup may take
// during reconciliation.
func WithConnectTimeoutMs(ms int64) Option {
	return func(c *config) { c.connectTimeoutMs = ms }
}

// WithLogger overrides the logrus.Logger used for Manager/Monitor
// diagnostics. Defaults to logrus.StandardLogger().
func WithLogger(logger *logrus.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithEventSink registers the Sink that receives lifecycle and
// transition events.
func WithEventSink(sink *event.Sink) Option {
	return func(c *config) { c.sink = sink }
}

// WithPoolFactory overrides the PoolFactory used to open a Pool per
// admitted address. Defaults to a DialerPoolFactory.
func WithPoolFactory(factory PoolFactory) Option {
	return func(c *config) { c.poolFactory = factory }
}

// validate implements the configuration checks a TopologyManager requires
// before it will start.
func (c *config) validate() error {
	if c.database == "" {
		return errMissingDatabase()
	}
	if c.kind == description.TopologySingle && len(c.seeds) > 1 {
		return errSingleTopologyMultipleHosts(len(c.seeds))
	}
	if c.setName != "" &&
		c.kind != description.TopologyReplicaSetNoPrimary &&
		c.kind != description.TopologySingle &&
		c.kind != description.TopologyUnknown {
		return errSetNameBadTopology(c.kind.String())
	}
	if c.heartbeatFrequencyMs < minHeartbeatFrequencyMs {
		return errHeartbeatTooFrequent(c.heartbeatFrequencyMs, minHeartbeatFrequencyMs)
	}
	return nil
}

func (c *config) heartbeatInterval() time.Duration {
	return time.Duration(c.heartbeatFrequencyMs) * time.Millisecond
}

func (c *config) connectTimeout() time.Duration {
	return time.Duration(c.connectTimeoutMs) * time.Millisecond
}
