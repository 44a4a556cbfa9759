// Package nic is the thin collaborator contract the core consumes for
// port bring-up and burst transmission. The hot loop never imports
// golang.org/x/sys/unix directly — everything kernel-specific sits behind
// this interface so the core stays testable against Fake.
package nic

import "context"

// Counters mirrors per-port hardware counters.
type Counters struct {
	RXPackets uint64
	RXBytes   uint64
	TXPackets uint64
	TXBytes   uint64
}

// Port is a configured NIC port with one queue per TX worker.
type Port interface {
	// TXBurst sends bufs[:n] on queue and returns how many were actually
	// accepted. Short writes are not an error — the caller adds the
	// returned count to its running total and continues.
	TXBurst(ctx context.Context, queue int, bufs [][]byte) (sent int, err error)

	// Counters reads the current hardware counters for this port.
	Counters() Counters

	// ResetCounters zeros the hardware counters.
	ResetCounters()

	// LinkUp reports link status.
	LinkUp() bool

	// Close releases the port.
	Close() error
}
