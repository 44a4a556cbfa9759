package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsTooFewFlows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalFlows = 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsFlowsBelowCoreCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalFlows = 2
	cfg.TXCores = 3
	cfg.NBCores = 4
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsPktSizeOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PktSize = 32
	assert.Error(t, cfg.Validate())

	cfg.PktSize = 2000
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSamePorts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TXPort = 0
	cfg.RXPort = 0
	assert.Error(t, cfg.Validate())
}

func TestResolveKVSPktSizeOverridesTooSmallFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KVSMode = true
	cfg.PktSize = 60 // above the 58-byte header sum but below the MIN_PKT_SIZE floor

	overridden := cfg.ResolveKVSPktSize()
	assert.True(t, overridden)
	assert.Equal(t, MinPktSize, cfg.PktSize) // the 64-byte floor dominates the header sum here
}

func TestResolveKVSPktSizeLeavesLargeEnoughFrameAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KVSMode = true
	cfg.PktSize = 128

	overridden := cfg.ResolveKVSPktSize()
	assert.False(t, overridden)
	assert.Equal(t, 128, cfg.PktSize)
}
