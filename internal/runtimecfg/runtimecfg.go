// Package runtimecfg holds the single piece of process-wide mutable state:
// the {running, rate_per_core, flow_ttl_ns} triple the control surface
// publishes and every TX worker polls. There is exactly one writer; many
// readers detect a change by comparing update_cnt, never by locking.
package runtimecfg

import (
	"math"
	"sync/atomic"
)

// Config is the versioned runtime triple. Every field other than
// updateCnt is guarded by the convention that a reader only trusts them
// after observing updateCnt change — the counter's store uses release
// ordering (via atomic.Uint64, which on every supported arch is a
// sequentially consistent RMW) and is the synchronization point.
type Config struct {
	running     atomic.Bool
	updateCnt   atomic.Uint64
	ratePerCore atomic.Uint64 // math.Float64bits
	flowTTLNs   atomic.Uint64
}

// New returns a Config with running=false, rate=0, flow_ttl=0, update_cnt=0.
func New() *Config {
	return &Config{}
}

// Snapshot is an immutable view taken at a point in time, for a worker to
// recompute its derived timing parameters from.
type Snapshot struct {
	Running     bool
	UpdateCnt   uint64
	RatePerCore float64
	FlowTTLNs   uint64
}

// Load takes a consistent-enough snapshot: update_cnt is read once, before
// the fields; if it changed mid-read the caller's next poll sees a newer
// count and picks up the settled values on the following iteration, which
// is the documented behavior for a generation-counter readers never block on.
func (c *Config) Load() Snapshot {
	cnt := c.updateCnt.Load()
	running := c.running.Load()
	rate := math.Float64frombits(c.ratePerCore.Load())
	ttl := c.flowTTLNs.Load()

	return Snapshot{
		Running:     running,
		UpdateCnt:   cnt,
		RatePerCore: rate,
		FlowTTLNs:   ttl,
	}
}

// UpdateCnt reads only the generation counter — the cheap poll a worker
// performs every loop iteration before deciding whether to re-read the rest.
func (c *Config) UpdateCnt() uint64 {
	return c.updateCnt.Load()
}

// SetRunning sets running and bumps update_cnt last.
func (c *Config) SetRunning(v bool) {
	c.running.Store(v)
	c.bump()
}

// SetRatePerCore sets the per-core rate in Gbps and bumps update_cnt last.
func (c *Config) SetRatePerCore(gbps float64) {
	c.ratePerCore.Store(math.Float64bits(gbps))
	c.bump()
}

// SetFlowTTLNs sets the flow TTL in nanoseconds and bumps update_cnt last.
func (c *Config) SetFlowTTLNs(ttlNs uint64) {
	c.flowTTLNs.Store(ttlNs)
	c.bump()
}

// bump is the store-release every mutator ends with: exactly one increment
// per mutation, performed after the field writes it guards.
func (c *Config) bump() {
	c.updateCnt.Add(1)
}
