package txworker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/pktgen/internal/clock"
	"github.com/jihwankim/pktgen/internal/flow"
	"github.com/jihwankim/pktgen/internal/nic"
	"github.com/jihwankim/pktgen/internal/packet"
	"github.com/jihwankim/pktgen/internal/rng"
	"github.com/jihwankim/pktgen/internal/runtimecfg"
)

func newTestWorker(t *testing.T, numFlows uint32, seq []uint32, port nic.Port) (*Worker, *runtimecfg.Config) {
	t.Helper()
	table := flow.NewTable(numFlows, false)
	table.Generate(rng.New(1), true)

	plan := flow.BuildOpPlan(0.5)
	opPlans := make([]flow.OpPlan, numFlows)
	for i := range opPlans {
		opPlans[i] = plan
	}

	tmpl := packet.BuildTemplate(packet.Options{PktSize: 64})
	rt := runtimecfg.New()

	w := New(Config{
		Core:        0,
		Queue:       0,
		Template:    tmpl,
		PktSizeBits: 64 * 8,
		FlowIdxSeq:  seq,
		OpPlans:     opPlans,
		Table:       table,
		Runtime:     rt,
		Clock:       clock.New(),
		RNG:         rng.New(2),
		Port:        port,
	})
	return w, rt
}

func TestRunBurstSendsAndAdvancesCursor(t *testing.T) {
	fake := nic.NewFake()
	w, rt := newTestWorker(t, 8, []uint32{0, 1, 2, 3, 4, 5, 6, 7}, fake)

	rt.SetRatePerCore(0) // unlimited: ticks_per_burst == 0, burst exits gate immediately
	snap := rt.Load()
	w.recompute(snap)

	w.runBurst()

	assert.Equal(t, uint64(32), w.NumTotalTX) // BurstSize
	assert.Equal(t, 0, w.flowIdxCounter)       // 32 mod 8 == 0
}

func TestChurnNeverFiresWhenFlowTTLZero(t *testing.T) {
	fake := nic.NewFake()
	w, rt := newTestWorker(t, 4, []uint32{0, 1, 2, 3}, fake)

	rt.SetFlowTTLNs(0)
	rt.SetRatePerCore(0)
	w.recompute(rt.Load())

	before := make([]flow.Record, 4)
	for i := range before {
		before[i] = w.cfg.Table.Get(uint32(i))
	}

	for i := 0; i < 10; i++ {
		w.runBurst()
	}

	for i := range before {
		require.Equal(t, before[i], w.cfg.Table.Get(uint32(i)))
	}
}

func TestSyncWarmupMarkTogglesProtoOnWindowClose(t *testing.T) {
	fake := nic.NewFake()
	w, _ := newTestWorker(t, 2, []uint32{0, 1}, fake)

	w.cfg.MarkWarmupPackets = true
	w.cfg.WarmupUntil = time.Now().Add(50 * time.Millisecond)

	w.syncWarmupMark()
	assert.True(t, w.warmupMarked)

	time.Sleep(60 * time.Millisecond)
	w.syncWarmupMark()
	assert.False(t, w.warmupMarked)
}

func TestRunStopsOnQuit(t *testing.T) {
	fake := nic.NewFake()
	w, rt := newTestWorker(t, 4, []uint32{0, 1, 2, 3}, fake)
	rt.SetRunning(true)
	rt.SetRatePerCore(0)

	quit := make(chan struct{})
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		w.Run(ctx, func() bool {
			select {
			case <-quit:
				return true
			default:
				return false
			}
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(quit)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after quit was signaled")
	}
}
