// Package packet builds the fixed byte-layout Ethernet/IPv4/UDP frame and
// rewrites only its mutable fields per send. Offsets are compile-time
// constants; nothing here parses a header.
package packet

import (
	"encoding/binary"

	"github.com/jihwankim/pktgen/internal/flow"
)

const (
	ethHeaderLen = 14
	ipHeaderLen  = 20
	udpHeaderLen = 8
	kvsHeaderLen = 1 + 4 + 4 + 1 + 2 // op, key, value, status, client_port

	EtherTypeIPv4 = 0x0800

	ProtoUDP        = 0x11
	ProtoWarmupMark = 0x92

	KVSPort = 670

	// KVSStatusMiss is the template's initial KVS status byte: no response
	// has been seen for this slot yet.
	KVSStatusMiss = 0

	MinPktSize = 64
	MaxPktSize = 1518

	// Offsets within the frame.
	offEthDst   = 0
	offEthSrc   = 6
	offEthType  = 12
	offIP       = ethHeaderLen
	offIPProto  = offIP + 9
	offIPSrc    = offIP + 12
	offIPDst    = offIP + 16
	offUDP      = offIP + ipHeaderLen
	offUDPSrc   = offUDP + 0
	offUDPDst   = offUDP + 2
	offUDPLen   = offUDP + 4
	offUDPCksum = offUDP + 6
	offKVS      = offUDP + udpHeaderLen
)

// srcMAC and dstMAC are the constant Ethernet addresses every frame carries.
var (
	srcMAC = [6]byte{0xB4, 0x96, 0x91, 0xA4, 0x02, 0xE9}
	dstMAC = [6]byte{0xB4, 0x96, 0x91, 0xA4, 0x04, 0x21}
)

// Options configures template construction.
type Options struct {
	PktSize           int
	KVSMode           bool
	MarkWarmupPackets bool
	WarmupActive      bool
}

// MinSizeForKVS is the smallest pkt_size (wire frame including the 4-byte
// CRC) that fits Ethernet/IPv4/UDP plus the KVS header.
func MinSizeForKVS() int {
	headerSum := ethHeaderLen + ipHeaderLen + udpHeaderLen + kvsHeaderLen + 4
	if headerSum < MinPktSize {
		return MinPktSize
	}
	return headerSum
}

// BuildTemplate constructs one template frame per opts, sized
// opts.PktSize − CRC(4). The remainder beyond the known headers is filled
// with 0xFF.
func BuildTemplate(opts Options) []byte {
	frameLen := opts.PktSize - 4
	buf := make([]byte, frameLen)
	for i := range buf {
		buf[i] = 0xFF
	}

	copy(buf[offEthDst:offEthDst+6], dstMAC[:])
	copy(buf[offEthSrc:offEthSrc+6], srcMAC[:])
	binary.BigEndian.PutUint16(buf[offEthType:offEthType+2], EtherTypeIPv4)

	ip := buf[offIP : offIP+ipHeaderLen]
	ip[0] = 0x45 // version 4, IHL 5
	ip[1] = 0    // DSCP/ECN
	ipTotalLen := uint16(frameLen - offIP)
	binary.BigEndian.PutUint16(ip[2:4], ipTotalLen)
	binary.BigEndian.PutUint16(ip[4:6], 0) // identification
	binary.BigEndian.PutUint16(ip[6:8], 0) // flags/frag offset
	ip[8] = 64                             // TTL
	proto := byte(ProtoUDP)
	if opts.MarkWarmupPackets && opts.WarmupActive {
		proto = ProtoWarmupMark
	}
	ip[9] = proto
	binary.BigEndian.PutUint16(ip[10:12], 0) // checksum zeroed, NIC offload assumed

	udp := buf[offUDP : offUDP+udpHeaderLen]
	udpLen := uint16(frameLen - offUDP)
	binary.BigEndian.PutUint16(udp[4:6], udpLen)
	binary.BigEndian.PutUint16(udp[6:8], 0) // checksum zero

	if opts.KVSMode {
		binary.BigEndian.PutUint16(buf[offUDPDst:offUDPDst+2], KVSPort)
		buf[offKVS+9] = KVSStatusMiss
	}

	return buf
}

// Modify rewrites the mutable fields of pkt in place for the given flow and
// KVS op: IP src (and dst outside KVS mode), UDP src (and dst outside KVS
// mode), and in KVS mode the header's op/key/value/client_port fields.
func Modify(pkt []byte, rec flow.Record, op flow.Op, kvsMode bool) {
	binary.BigEndian.PutUint32(pkt[offIPSrc:offIPSrc+4], rec.SrcIP)
	binary.BigEndian.PutUint16(pkt[offUDPSrc:offUDPSrc+2], rec.SrcPort)

	if !kvsMode {
		binary.BigEndian.PutUint32(pkt[offIPDst:offIPDst+4], rec.DstIP)
		binary.BigEndian.PutUint16(pkt[offUDPDst:offUDPDst+2], rec.DstPort)
		return
	}

	kvs := pkt[offKVS : offKVS+kvsHeaderLen]
	kvs[0] = byte(op)
	copy(kvs[1:5], rec.KVSKey[:])
	copy(kvs[5:9], rec.KVSValue[:])
	binary.BigEndian.PutUint16(kvs[10:12], rec.KVSClientPort)
}

// ExtractFiveTuple reads back the fields Modify writes, for round-trip
// tests: src/dst IP, src/dst UDP port.
func ExtractFiveTuple(pkt []byte) (srcIP, dstIP uint32, srcPort, dstPort uint16) {
	srcIP = binary.BigEndian.Uint32(pkt[offIPSrc : offIPSrc+4])
	dstIP = binary.BigEndian.Uint32(pkt[offIPDst : offIPDst+4])
	srcPort = binary.BigEndian.Uint16(pkt[offUDPSrc : offUDPSrc+2])
	dstPort = binary.BigEndian.Uint16(pkt[offUDPDst : offUDPDst+2])
	return
}

// SetWarmupActive rewrites pkt's IPv4 proto byte between ProtoWarmupMark and
// ProtoUDP. Workers call this on their buffer ring only when the warmup
// window's state actually flips, not per packet.
func SetWarmupActive(pkt []byte, active bool) {
	if active {
		pkt[offIPProto] = ProtoWarmupMark
	} else {
		pkt[offIPProto] = ProtoUDP
	}
}

// ExtractKVSKey reads back the KVS key field for round-trip tests.
func ExtractKVSKey(pkt []byte) [4]byte {
	var key [4]byte
	copy(key[:], pkt[offKVS+1:offKVS+5])
	return key
}
