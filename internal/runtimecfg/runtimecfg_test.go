package runtimecfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadTwiceWithNoMutationYieldsSameUpdateCnt(t *testing.T) {
	c := New()
	a := c.Load()
	b := c.Load()
	assert.Equal(t, a.UpdateCnt, b.UpdateCnt)
}

func TestEveryMutatorIncrementsUpdateCntByExactlyOne(t *testing.T) {
	c := New()
	start := c.UpdateCnt()

	c.SetRunning(true)
	assert.Equal(t, start+1, c.UpdateCnt())

	c.SetRatePerCore(5.0)
	assert.Equal(t, start+2, c.UpdateCnt())

	c.SetFlowTTLNs(1000)
	assert.Equal(t, start+3, c.UpdateCnt())
}

func TestSnapshotReflectsSettledFields(t *testing.T) {
	c := New()
	c.SetRunning(true)
	c.SetRatePerCore(2.5)
	c.SetFlowTTLNs(999)

	snap := c.Load()
	assert.True(t, snap.Running)
	assert.Equal(t, 2.5, snap.RatePerCore)
	assert.Equal(t, uint64(999), snap.FlowTTLNs)
}
