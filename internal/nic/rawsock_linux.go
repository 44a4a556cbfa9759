//go:build linux

package nic

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// rxSnapLen is the per-packet buffer the background receive loop reads
// into — large enough for any frame this generator or a DUT's reply would
// produce (spec.md's pkt_size ceiling is 1518).
const rxSnapLen = 2048

// RawSockPort is a Port backed by an AF_PACKET raw socket — the
// kernel-bypass NIC abstraction stands in for a DPDK/AF_XDP port in
// environments without one, trading zero-copy for portability. A
// background goroutine drains the socket's receive queue so rx_pkts/
// rx_bytes reflect packets actually returned on this port, the same way a
// DUT's reply traffic would land on a real NIC's RX ring.
type RawSockPort struct {
	fd        int
	ifIndex   int
	linkUp    bool
	rxPackets atomic.Uint64
	rxBytes   atomic.Uint64
	txPackets atomic.Uint64
	txBytes   atomic.Uint64
	rxDone    chan struct{}
}

// OpenRawSockPort binds an AF_PACKET SOCK_RAW socket to the named
// interface and starts its receive-counting loop.
func OpenRawSockPort(ifName string) (*RawSockPort, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("nic: socket: %w", err)
	}

	iface, err := ifaceByName(ifName)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nic: lookup interface %q: %w", ifName, err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nic: bind to %q: %w", ifName, err)
	}

	p := &RawSockPort{fd: fd, ifIndex: iface.index, linkUp: iface.up, rxDone: make(chan struct{})}
	go p.rxLoop()
	return p, nil
}

// rxLoop drains the socket's receive queue and tallies rx_pkts/rx_bytes.
// It runs until Recvfrom errors, which happens as soon as Close tears down
// the file descriptor.
func (p *RawSockPort) rxLoop() {
	defer close(p.rxDone)
	buf := make([]byte, rxSnapLen)
	for {
		n, _, err := unix.Recvfrom(p.fd, buf, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		p.rxPackets.Add(1)
		p.rxBytes.Add(uint64(n))
	}
}

// TXBurst sends each buffer with Sendto, stopping at the first failure and
// reporting how many were accepted — the short-write tolerance the hot loop
// expects.
func (p *RawSockPort) TXBurst(ctx context.Context, queue int, bufs [][]byte) (int, error) {
	addr := unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: p.ifIndex}
	sent := 0
	for _, buf := range bufs {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}
		if err := unix.Sendto(p.fd, buf, 0, &addr); err != nil {
			if sent > 0 {
				return sent, nil
			}
			return 0, fmt.Errorf("nic: sendto: %w", err)
		}
		sent++
		p.txPackets.Add(1)
		p.txBytes.Add(uint64(len(buf)))
	}
	return sent, nil
}

// Counters returns the current snapshot. RX counters are updated by the
// port's own rxLoop; TX counters by TXBurst.
func (p *RawSockPort) Counters() Counters {
	return Counters{
		RXPackets: p.rxPackets.Load(),
		RXBytes:   p.rxBytes.Load(),
		TXPackets: p.txPackets.Load(),
		TXBytes:   p.txBytes.Load(),
	}
}

// ResetCounters zeros all four counters.
func (p *RawSockPort) ResetCounters() {
	p.rxPackets.Store(0)
	p.rxBytes.Store(0)
	p.txPackets.Store(0)
	p.txBytes.Store(0)
}

// LinkUp reports the interface flag snapshot taken at open time.
func (p *RawSockPort) LinkUp() bool { return p.linkUp }

// Close releases the underlying file descriptor, which unblocks rxLoop's
// pending Recvfrom and lets it exit.
func (p *RawSockPort) Close() error {
	err := unix.Close(p.fd)
	<-p.rxDone
	return err
}

type iface struct {
	index int
	up    bool
}

func ifaceByName(name string) (iface, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return iface{}, err
	}
	return iface{index: ifi.Index, up: ifi.Flags&net.FlagUp != 0}, nil
}

func htons(v int) uint16 {
	return uint16(v<<8&0xFF00 | v>>8&0x00FF)
}

// PinCurrentThreadToCore pins the calling OS thread to a single CPU core via
// sched_setaffinity, following the same pattern the twamp light-sender uses
// to pin its probe goroutine before a latency-sensitive send. Callers must
// call runtime.LockOSThread first.
func PinCurrentThreadToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
