// Package generator wires the leaf components — distribution, flow table,
// packet template, rate-limit planner, runtime config, NIC, TX workers,
// control surface, stats, and the pcap dumper — into one running instance.
// It is the only package that knows about all of them; cmd/pktgen and the
// --test path both go through here.
package generator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jihwankim/pktgen/internal/clock"
	"github.com/jihwankim/pktgen/internal/config"
	"github.com/jihwankim/pktgen/internal/control"
	"github.com/jihwankim/pktgen/internal/distribution"
	"github.com/jihwankim/pktgen/internal/flow"
	"github.com/jihwankim/pktgen/internal/hostinfo"
	"github.com/jihwankim/pktgen/internal/logging"
	"github.com/jihwankim/pktgen/internal/nic"
	"github.com/jihwankim/pktgen/internal/packet"
	"github.com/jihwankim/pktgen/internal/pcapdump"
	"github.com/jihwankim/pktgen/internal/rng"
	"github.com/jihwankim/pktgen/internal/runtimecfg"
	"github.com/jihwankim/pktgen/internal/txworker"
)

// Generator owns every live component for one run.
type Generator struct {
	cfg     *config.Config
	log     *logging.Logger
	rng     *rng.Source
	clock   *clock.Source
	table   *flow.Table
	opPlans []flow.OpPlan
	runtime *runtimecfg.Config
	txPort  nic.Port
	rxPort  nic.Port

	workers []*txworker.Worker
	Surface *control.Surface

	quit atomic.Bool
	wg   sync.WaitGroup
}

// Ports bundles the two NIC ports a Generator needs. Tests and --test mode
// pass a pair of *nic.Fake; production passes *nic.RawSockPort.
type Ports struct {
	TX nic.Port
	RX nic.Port
}

// New builds every leaf component from cfg but does not launch workers.
func New(cfg *config.Config, log *logging.Logger, ports Ports) (*Generator, error) {
	if overridden := cfg.ResolveKVSPktSize(); overridden && log != nil {
		log.Warn("kvs mode forced pkt_size to the minimum KVS-capable frame", "pkt_size", cfg.PktSize)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if n, err := hostinfo.LogicalCoreCount(); err == nil && n < cfg.NBCores && log != nil {
		log.Warn("host reports fewer logical cores than nb-cores configures", "host_cores", n, "nb_cores", cfg.NBCores)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	r := rng.New(seed)

	table := flow.NewTable(cfg.TotalFlows, cfg.KVSMode)
	table.Generate(r, cfg.UniqueFlows)

	plan := flow.BuildOpPlan(cfg.KVSGetRatio)
	opPlans := make([]flow.OpPlan, cfg.TotalFlows)
	for i := range opPlans {
		opPlans[i] = plan
	}

	g := &Generator{
		cfg:     cfg,
		log:     log,
		rng:     r,
		clock:   clock.New(),
		table:   table,
		opPlans: opPlans,
		runtime: runtimecfg.New(),
		txPort:  ports.TX,
		rxPort:  ports.RX,
	}

	var warmupUntil time.Time
	if cfg.MarkWarmupPackets && cfg.WarmupDuration > 0 {
		warmupUntil = processStart.Add(cfg.WarmupDuration)
	}

	g.Surface = &control.Surface{
		Runtime:     g.runtime,
		NumFlows:    cfg.TotalFlows,
		NumCores:    cfg.TXCores,
		Table:       table,
		TXPort:      ports.TX,
		RXPort:      ports.RX,
		Log:         log,
		WarmupUntil: warmupUntil,
	}

	return g, nil
}

// BuildSequence runs the distribution builder per cfg.Dist and records the
// summary on the control surface for the "dist" command.
func (g *Generator) BuildSequence() distribution.BuildResult {
	var res distribution.BuildResult
	switch g.cfg.Dist {
	case config.DistZipf:
		res = distribution.BuildZipf(g.cfg.TotalFlows, g.cfg.ZipfParam, g.rng, g.log)
	default:
		res = distribution.BuildUniform(g.cfg.TotalFlows)
	}
	g.Surface.LastDist = res
	return res
}

// DumpPCAP writes flows.pcap if cfg.DumpFlowsToFile is set. Must run before
// Launch.
func (g *Generator) DumpPCAP() error {
	if !g.cfg.DumpFlowsToFile {
		return nil
	}
	tmpl := packet.BuildTemplate(packet.Options{
		PktSize: g.cfg.PktSize,
		KVSMode: g.cfg.KVSMode,
	})
	return pcapdump.Dump(g.cfg.PcapPath, tmpl, g.table, g.opPlans, g.cfg.KVSMode)
}

// Launch builds one TX worker per tx-core, stripes the sequence across
// them, and starts each in its own goroutine.
func (g *Generator) Launch(ctx context.Context, seq []uint32) {
	stripes := distribution.Stripe(seq, g.cfg.TXCores)

	for core := 0; core < g.cfg.TXCores; core++ {
		tmpl := packet.BuildTemplate(packet.Options{
			PktSize: g.cfg.PktSize,
			KVSMode: g.cfg.KVSMode,
		})

		w := txworker.New(txworker.Config{
			Core:              core,
			Queue:             core,
			Template:          tmpl,
			PktSizeBits:       uint64(g.cfg.PktSize) * 8,
			KVSMode:           g.cfg.KVSMode,
			FlowIdxSeq:        stripes[core],
			OpPlans:           g.opPlans,
			Table:             g.table,
			Runtime:           g.runtime,
			Clock:             g.clock,
			RNG:               g.rng,
			Port:              g.txPort,
			Log:               g.log,
			MarkWarmupPackets: g.cfg.MarkWarmupPackets,
			WarmupUntil:       g.Surface.WarmupUntil,
		})
		g.workers = append(g.workers, w)

		g.wg.Add(1)
		go func(w *txworker.Worker) {
			defer g.wg.Done()
			w.Run(ctx, g.quit.Load)
		}(w)
	}
}

// processStart anchors the warmup window to process launch, computed once
// at package init so every Generator in the process agrees on it.
var processStart = time.Now()

// Stop requests every worker exit its hot loop and waits for them to join.
func (g *Generator) Stop() {
	g.quit.Store(true)
	g.wg.Wait()
}

// TotalTX sums NumTotalTX across all launched workers.
func (g *Generator) TotalTX() uint64 {
	var total uint64
	for _, w := range g.workers {
		total += w.NumTotalTX
	}
	return total
}

// AllReady reports whether every worker has finished its startup
// calibration.
func (g *Generator) AllReady() bool {
	for _, w := range g.workers {
		if !w.Ready {
			return false
		}
	}
	return true
}

// WaitReady polls AllReady until true or ctx is done.
func (g *Generator) WaitReady(ctx context.Context) error {
	for !g.AllReady() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("generator: workers not ready: %w", ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}
