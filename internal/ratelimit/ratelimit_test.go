package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicksPerBurstZeroRate(t *testing.T) {
	assert.Equal(t, uint64(0), TicksPerBurst(0, 512, 1000))
}

func TestTicksPerBurstStrictlyDecreasingInRate(t *testing.T) {
	low := TicksPerBurst(1, 512, 1000)
	high := TicksPerBurst(10, 512, 1000)
	assert.Greater(t, low, high)
}

func TestTicksPerBurstDoublesWhenRateHalves(t *testing.T) {
	full := TicksPerBurst(10, 512, 1000)
	half := TicksPerBurst(5, 512, 1000)

	// Within ±1 tick of exactly double, per the rate-change scenario in the
	// concrete end-to-end examples.
	diff := int64(half) - 2*int64(full)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, int64(1))
}
