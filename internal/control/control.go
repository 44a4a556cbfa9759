// Package control implements the operator command surface: start, stop,
// rate, churn, timer, stats, stats-reset, flows, dist. Every mutating
// command goes through internal/runtimecfg so TX workers observe it via the
// generation counter; read-only commands touch nothing.
package control

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jihwankim/pktgen/internal/distribution"
	"github.com/jihwankim/pktgen/internal/flow"
	"github.com/jihwankim/pktgen/internal/logging"
	"github.com/jihwankim/pktgen/internal/nic"
	"github.com/jihwankim/pktgen/internal/runtimecfg"
)

// MinChurnActionTimeMultiplier floors flow_ttl_ns at a multiple of the
// epoch time so churn commands cannot request replacement faster than the
// TX workers' own polling granularity can honor.
const MinChurnActionTimeMultiplier = 10

// EpochTimeNs is the nominal epoch/poll granularity used as the churn floor
// unit.
const EpochTimeNs = uint64(time.Millisecond)

// Surface bundles the state control commands act on or report from.
type Surface struct {
	Runtime  *runtimecfg.Config
	NumFlows uint32
	NumCores int
	Table    *flow.Table
	TXPort   nic.Port
	RXPort   nic.Port
	Log      *logging.Logger

	// LastDist is the most recently built index-sequence summary, set by
	// the generator wiring layer whenever it (re)builds the distribution.
	// The "dist" command reports it verbatim.
	LastDist distribution.BuildResult

	// WarmupUntil is the warmup window's deadline, fixed at construction
	// time from --mark-warmup-packets and the configured warmup duration.
	// No control command mutates it; "timer" only ever reads it.
	WarmupUntil time.Time
}

// Start sets running=true.
func (s *Surface) Start() {
	s.Runtime.SetRunning(true)
}

// Stop sets running=false.
func (s *Surface) Stop() {
	s.Runtime.SetRunning(false)
}

// Rate sets rate_per_core = gbps / num_tx_cores.
func (s *Surface) Rate(gbps float64) {
	cores := s.NumCores
	if cores <= 0 {
		cores = 1
	}
	s.Runtime.SetRatePerCore(gbps / float64(cores))
}

// Churn derives flow_ttl_ns from flows-per-minute of the current population,
// honoring MIN_CHURN_ACTION_TIME_MULTIPLIER*EPOCH_TIME as a floor.
func (s *Surface) Churn(fpm float64) {
	if fpm == 0 {
		s.Runtime.SetFlowTTLNs(0)
		return
	}
	ttl := uint64(60 * 1e9 * float64(s.NumFlows) / fpm)
	floor := MinChurnActionTimeMultiplier * EpochTimeNs
	if ttl < floor {
		ttl = floor
	}
	s.Runtime.SetFlowTTLNs(ttl)
}

// Timer reports the warmup deadline; read-only, does not touch runtime.
func (s *Surface) Timer() time.Time {
	return s.WarmupUntil
}

// StatsSnapshot is what Stats/StatsReset report: the TX port's send
// counters, the RX port's receive counters, and the loss% derived from
// both.
type StatsSnapshot struct {
	TXPackets   uint64
	TXBytes     uint64
	RXPackets   uint64
	RXBytes     uint64
	LossPercent float64
}

// Stats pulls counters from both ports and computes loss% as
// (tx_pkts - rx_pkts) / tx_pkts.
func (s *Surface) Stats() StatsSnapshot {
	tx := s.TXPort.Counters()
	rx := s.RXPort.Counters()
	var loss float64
	if tx.TXPackets > 0 {
		loss = float64(tx.TXPackets-rx.RXPackets) / float64(tx.TXPackets) * 100
	}
	return StatsSnapshot{
		TXPackets:   tx.TXPackets,
		TXBytes:     tx.TXBytes,
		RXPackets:   rx.RXPackets,
		RXBytes:     rx.RXBytes,
		LossPercent: loss,
	}
}

// StatsReset zeros both ports' hardware counters; read-only to the runtime
// config.
func (s *Surface) StatsReset() {
	s.TXPort.ResetCounters()
	s.RXPort.ResetCounters()
}

// Flows dumps a diagnostic view of the flow table, for operator inspection.
func (s *Surface) Flows() []flow.Record {
	out := make([]flow.Record, s.Table.Len())
	for i := range out {
		out[i] = s.Table.Get(uint32(i))
	}
	return out
}

// Dist reports a summary of a just-built index sequence; a pure reporting
// helper, not itself a distribution build.
func (s *Surface) Dist(res distribution.BuildResult) string {
	return fmt.Sprintf("kind=%s num_flows=%d covered=%d seq_len=%d",
		res.Kind, res.NumFlows, res.Covered, len(res.Sequence))
}

// Reader drives the interactive command loop over an io.Reader (typically
// stdin), dispatching each line to the matching Surface method.
type Reader struct {
	surface *Surface
	scanner *bufio.Scanner
	out     io.Writer
}

// NewReader wraps r with a line scanner writing command feedback to out.
func NewReader(surface *Surface, r io.Reader, out io.Writer) *Reader {
	return &Reader{surface: surface, scanner: bufio.NewScanner(r), out: out}
}

// Run reads commands until EOF or the scanner errors, dispatching each by
// the switch below. Unknown commands are reported and ignored.
func (cr *Reader) Run() error {
	for cr.scanner.Scan() {
		line := strings.TrimSpace(cr.scanner.Text())
		if line == "" {
			continue
		}
		cr.dispatch(line)
	}
	return cr.scanner.Err()
}

func (cr *Reader) dispatch(line string) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "start":
		cr.surface.Start()
		fmt.Fprintln(cr.out, "started")
	case "stop":
		cr.surface.Stop()
		fmt.Fprintln(cr.out, "stopped")
	case "rate":
		v, err := parseFloatArg(args)
		if err != nil {
			fmt.Fprintln(cr.out, err)
			return
		}
		cr.surface.Rate(v)
		fmt.Fprintf(cr.out, "rate set to %.3f Gbps total\n", v)
	case "churn":
		v, err := parseFloatArg(args)
		if err != nil {
			fmt.Fprintln(cr.out, err)
			return
		}
		cr.surface.Churn(v)
		fmt.Fprintf(cr.out, "churn set to %.3f flows/min\n", v)
	case "timer":
		fmt.Fprintln(cr.out, cr.surface.Timer())
	case "stats":
		snap := cr.surface.Stats()
		fmt.Fprintf(cr.out, "tx=%d rx=%d loss=%.4f%%\n", snap.TXPackets, snap.RXPackets, snap.LossPercent)
	case "stats-reset":
		cr.surface.StatsReset()
		fmt.Fprintln(cr.out, "counters reset")
	case "flows":
		for i, f := range cr.surface.Flows() {
			fmt.Fprintf(cr.out, "%d: src=%08x dst=%08x sport=%d dport=%d\n", i, f.SrcIP, f.DstIP, f.SrcPort, f.DstPort)
		}
	case "dist":
		fmt.Fprintln(cr.out, cr.surface.Dist(cr.surface.LastDist))
	default:
		fmt.Fprintf(cr.out, "unknown command: %s\n", cmd)
	}
}

func parseFloatArg(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one numeric argument")
	}
	return strconv.ParseFloat(args[0], 64)
}
