//go:build linux

package main

import (
	"fmt"
	"net"

	"github.com/jihwankim/pktgen/internal/config"
	"github.com/jihwankim/pktgen/internal/nic"
)

// openRawPorts resolves cfg.TXPort/cfg.RXPort to host network interfaces
// and opens an AF_PACKET raw socket on each. Port indices map to interfaces
// in the order net.Interfaces reports them.
func openRawPorts(cfg *config.Config) (*nic.RawSockPort, *nic.RawSockPort, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, fmt.Errorf("nic: enumerate interfaces: %w", err)
	}
	if len(ifaces) <= cfg.TXPort || len(ifaces) <= cfg.RXPort {
		return nil, nil, fmt.Errorf("nic: host exposes %d interfaces, need at least %d", len(ifaces), cfg.NBDevices)
	}

	tx, err := nic.OpenRawSockPort(ifaces[cfg.TXPort].Name)
	if err != nil {
		return nil, nil, err
	}
	rx, err := nic.OpenRawSockPort(ifaces[cfg.RXPort].Name)
	if err != nil {
		tx.Close()
		return nil, nil, err
	}
	return tx, rx, nil
}
