package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/pktgen/internal/rng"
)

func TestGenerateForceUniqueProducesDistinctFiveTuples(t *testing.T) {
	table := NewTable(32, false)
	table.Generate(rng.New(7), true)

	seen := make(map[[4]uint64]bool)
	for i := 0; i < table.Len(); i++ {
		rec := table.Get(uint32(i))
		key := [4]uint64{uint64(rec.SrcIP), uint64(rec.DstIP), uint64(rec.SrcPort), uint64(rec.DstPort)}
		require.False(t, seen[key], "duplicate 5-tuple at index %d", i)
		seen[key] = true
	}
}

func TestGenerateForceUniqueKVSModeKeysOnKVSKey(t *testing.T) {
	table := NewTable(16, true)
	table.Generate(rng.New(9), true)

	seen := make(map[[4]byte]bool)
	for i := 0; i < table.Len(); i++ {
		rec := table.Get(uint32(i))
		require.False(t, seen[rec.KVSKey], "duplicate KVS key at index %d", i)
		seen[rec.KVSKey] = true
	}
}

func TestRandomizeDoesNotRequireUniqueness(t *testing.T) {
	table := NewTable(4, false)
	table.Generate(rng.New(1), true)
	before := table.Get(0)

	table.Randomize(0, rng.New(2))
	after := table.Get(0)

	// Randomize must replace the slot; it need not differ from any other
	// slot, only from its own prior value in the overwhelmingly common case.
	assert.NotEqual(t, before, after)
}

func TestBuildOpPlanRatios(t *testing.T) {
	cases := []struct {
		ratio      float64
		wantGet    int
		wantPut    int
	}{
		{ratio: 0, wantGet: 0, wantPut: 1},
		{ratio: 1, wantGet: 1, wantPut: 0},
		{ratio: 0.5, wantGet: 1, wantPut: 1},
		{ratio: 0.7, wantGet: 7, wantPut: 3},
	}
	for _, c := range cases {
		plan := BuildOpPlan(c.ratio)
		get, put := 0, 0
		for _, op := range plan {
			if op == OpGet {
				get++
			} else {
				put++
			}
		}
		assert.Equal(t, c.wantGet, get, "ratio=%v", c.ratio)
		assert.Equal(t, c.wantPut, put, "ratio=%v", c.ratio)
		if get > 0 {
			assert.Equal(t, OpGet, plan[0])
		}
		if put > 0 {
			assert.Equal(t, OpPut, plan[len(plan)-1])
		}
	}
}
