// Package txworker implements the per-core hot loop: select a flow index,
// rewrite a pre-built packet buffer in place, burst-transmit, and pace
// against the rate-limit window. Nothing in the loop allocates, locks, or
// suspends.
package txworker

import (
	"context"
	"runtime"
	"time"

	"github.com/jihwankim/pktgen/internal/clock"
	"github.com/jihwankim/pktgen/internal/flow"
	"github.com/jihwankim/pktgen/internal/logging"
	"github.com/jihwankim/pktgen/internal/nic"
	"github.com/jihwankim/pktgen/internal/packet"
	"github.com/jihwankim/pktgen/internal/ratelimit"
	"github.com/jihwankim/pktgen/internal/rng"
	"github.com/jihwankim/pktgen/internal/runtimecfg"
)

// NumSamplePackets is the size of each worker's pre-built buffer ring.
const NumSamplePackets = 4 * ratelimit.BurstSize

// Config is the fixed, per-worker configuration handed to Run — everything
// a worker needs that never changes across its lifetime.
type Config struct {
	Core        int
	Queue       int
	Template    []byte
	PktSizeBits uint64
	KVSMode     bool
	FlowIdxSeq  []uint32 // this worker's stripe
	OpPlans     []flow.OpPlan
	Table       *flow.Table
	Runtime     *runtimecfg.Config
	Clock       *clock.Source
	RNG         *rng.Source
	Port        nic.Port
	Log         *logging.Logger

	// MarkWarmupPackets and WarmupUntil define the worker's warmup window.
	// A zero WarmupUntil (or MarkWarmupPackets false) means the window is
	// already closed, or never opened.
	MarkWarmupPackets bool
	WarmupUntil       time.Time
}

// txErrLogSampleRate keeps a saturated send queue from flooding the log:
// only 1 in N burst-send errors is actually emitted.
const txErrLogSampleRate = 100

// Worker owns all per-worker hot-loop state: stack/arena-owned, never shared
// with another worker.
type Worker struct {
	cfg    Config
	errLog *logging.Logger

	bufs [NumSamplePackets][]byte

	flowTimers      []uint64
	chosenOpIdxs    []int
	flowIdxCounter  int
	bufOffset       int
	window          [][]byte
	lastUpdateCnt   uint64
	ticksPerBurst   uint64
	flowTicks       uint64
	flowTicksOffInc uint64
	periodStartTick uint64
	periodEndTick   uint64
	warmupMarked    bool

	NumTotalTX uint64
	Ready      bool
}

// New allocates a Worker and copies the template into its buffer ring.
func New(cfg Config) *Worker {
	w := &Worker{
		cfg:          cfg,
		flowTimers:   make([]uint64, cfg.Table.Len()),
		chosenOpIdxs: make([]int, cfg.Table.Len()),
		window:       make([][]byte, 0, ratelimit.BurstSize),
	}
	if cfg.Log != nil {
		w.errLog = cfg.Log.Sampled(txErrLogSampleRate)
	}
	for i := range w.bufs {
		buf := make([]byte, len(cfg.Template))
		copy(buf, cfg.Template)
		w.bufs[i] = buf
	}
	return w
}

// Run pins the calling OS thread to its core and executes the hot loop
// until ctx is cancelled or quit is observed. It is meant to be the entire
// body of a dedicated goroutine.
func (w *Worker) Run(ctx context.Context, quit func() bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := nic.PinCurrentThreadToCore(w.cfg.Core); err != nil && w.cfg.Log != nil {
		w.cfg.Log.Warn("failed to pin tx worker to core", "core", w.cfg.Core, "err", err.Error())
	}

	w.cfg.Clock.Scale()
	w.Ready = true

	for {
		snap := w.waitForStart(ctx, quit)
		if snap == nil {
			return
		}
		w.recompute(*snap)

		for !quit() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if cnt := w.cfg.Runtime.UpdateCnt(); cnt != w.lastUpdateCnt {
				next := w.cfg.Runtime.Load()
				if !next.Running {
					break // drop back to the start-gate
				}
				w.recompute(next)
			}

			w.runBurst()
		}
		if quit() {
			return
		}
	}
}

// waitForStart parks until running && rate_per_core > 0, or until quit/ctx
// fires, using a polite 100ms poll outside the send loop.
func (w *Worker) waitForStart(ctx context.Context, quit func() bool) *runtimecfg.Snapshot {
	for {
		if quit() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		snap := w.cfg.Runtime.Load()
		if snap.Running && snap.RatePerCore > 0 {
			return &snap
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// recompute derives ticks_per_burst/flow_ticks/offset from a fresh snapshot
// and spreads flows_timers so churn is staggered rather than bursty.
func (w *Worker) recompute(snap runtimecfg.Snapshot) {
	w.lastUpdateCnt = snap.UpdateCnt
	ticksPerUs := w.cfg.Clock.Scale()

	w.ticksPerBurst = ratelimit.TicksPerBurst(snap.RatePerCore, w.cfg.PktSizeBits, ticksPerUs)
	w.flowTicks = snap.FlowTTLNs * ticksPerUs / 1000

	numFlows := uint64(w.cfg.Table.Len())
	if numFlows == 0 {
		numFlows = 1
	}
	w.flowTicksOffInc = w.flowTicks / numFlows

	now := w.cfg.Clock.Now()
	for i := range w.flowTimers {
		w.flowTimers[i] = now + uint64(i)*w.flowTicksOffInc
	}

	w.periodStartTick = now
}

// runBurst executes one iteration of the main loop: build a burst window,
// rewrite each packet, transmit, advance cursors, and pace to the window
// boundary.
func (w *Worker) runBurst() {
	w.periodEndTick = w.periodStartTick + w.ticksPerBurst

	seqLen := len(w.cfg.FlowIdxSeq)
	if seqLen == 0 {
		w.spinUntil(w.periodEndTick)
		w.periodStartTick = w.periodEndTick
		return
	}

	w.syncWarmupMark()

	w.window = w.window[:0]
	for i := 0; i < ratelimit.BurstSize; i++ {
		flowIdx := w.cfg.FlowIdxSeq[(w.flowIdxCounter+i)%seqLen]

		if w.flowTicks > 0 && w.periodStartTick >= w.flowTimers[flowIdx] {
			w.flowTimers[flowIdx] += w.flowTicks
			w.cfg.Table.Randomize(flowIdx, w.cfg.RNG)
		}

		plan := w.cfg.OpPlans[flowIdx]
		opIdx := w.chosenOpIdxs[flowIdx]
		op := plan[opIdx%len(plan)]
		w.chosenOpIdxs[flowIdx] = (opIdx + 1) % len(plan)

		buf := w.bufs[w.bufOffset%NumSamplePackets]
		w.bufOffset++

		packet.Modify(buf, w.cfg.Table.Get(flowIdx), op, w.cfg.KVSMode)
		w.window = append(w.window, buf)
	}

	sent, err := w.cfg.Port.TXBurst(context.Background(), w.cfg.Queue, w.window)
	if err != nil && w.errLog != nil {
		w.errLog.Warn("tx burst error", "queue", w.cfg.Queue, "err", err.Error())
	}
	w.NumTotalTX += uint64(sent)

	w.flowIdxCounter = (w.flowIdxCounter + ratelimit.BurstSize) % seqLen

	w.spinUntil(w.periodEndTick)
	w.periodStartTick = w.periodEndTick
}

// syncWarmupMark rewrites every buffer's IP proto byte the moment the
// warmup window's state flips, so a long-running worker stops marking
// packets as soon as the window closes without rebuilding its template.
func (w *Worker) syncWarmupMark() {
	if !w.cfg.MarkWarmupPackets {
		return
	}
	active := !w.cfg.WarmupUntil.IsZero() && time.Now().Before(w.cfg.WarmupUntil)
	if active == w.warmupMarked {
		return
	}
	for _, buf := range w.bufs {
		packet.SetWarmupActive(buf, active)
	}
	w.warmupMarked = active
}

// spinUntil busy-waits until the clock reaches tick — the rate-limit window
// close is deliberately not a sleep, to hold sub-microsecond accuracy.
func (w *Worker) spinUntil(tick uint64) {
	for w.cfg.Clock.Now() < tick {
	}
}
