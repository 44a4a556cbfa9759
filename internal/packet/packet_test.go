package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/pktgen/internal/flow"
)

func TestBuildTemplateNonKVSLayout(t *testing.T) {
	tmpl := BuildTemplate(Options{PktSize: 64})
	require.Len(t, tmpl, 60) // pkt_size - CRC(4)

	assert.Equal(t, byte(0x08), tmpl[offEthType])
	assert.Equal(t, byte(0x00), tmpl[offEthType+1])
	assert.Equal(t, byte(ProtoUDP), tmpl[offIPProto])
}

func TestBuildTemplateWarmupMarking(t *testing.T) {
	tmpl := BuildTemplate(Options{PktSize: 64, MarkWarmupPackets: true, WarmupActive: true})
	assert.Equal(t, byte(ProtoWarmupMark), tmpl[offIPProto])
}

func TestBuildTemplateKVSModeSetsDestPort(t *testing.T) {
	tmpl := BuildTemplate(Options{PktSize: MinSizeForKVS(), KVSMode: true})
	gotPort := uint16(tmpl[offUDPDst])<<8 | uint16(tmpl[offUDPDst+1])
	assert.Equal(t, uint16(KVSPort), gotPort)
}

func TestModifyRoundTripNonKVS(t *testing.T) {
	tmpl := BuildTemplate(Options{PktSize: 64})
	rec := flow.Record{SrcIP: 0x0A000001, DstIP: 0x0A000002, SrcPort: 5000, DstPort: 6000}

	buf := make([]byte, len(tmpl))
	copy(buf, tmpl)
	Modify(buf, rec, flow.OpGet, false)

	srcIP, dstIP, srcPort, dstPort := ExtractFiveTuple(buf)
	assert.Equal(t, rec.SrcIP, srcIP)
	assert.Equal(t, rec.DstIP, dstIP)
	assert.Equal(t, rec.SrcPort, srcPort)
	assert.Equal(t, rec.DstPort, dstPort)
}

func TestModifyRoundTripKVSMode(t *testing.T) {
	tmpl := BuildTemplate(Options{PktSize: MinSizeForKVS(), KVSMode: true})
	rec := flow.Record{SrcIP: 0x0A000001, KVSKey: [4]byte{1, 2, 3, 4}, KVSClientPort: 5555}

	buf := make([]byte, len(tmpl))
	copy(buf, tmpl)
	Modify(buf, rec, flow.OpPut, true)

	assert.Equal(t, rec.KVSKey, ExtractKVSKey(buf))
	gotClientPort := uint16(buf[offKVS+10])<<8 | uint16(buf[offKVS+11])
	assert.Equal(t, rec.KVSClientPort, gotClientPort)
}
