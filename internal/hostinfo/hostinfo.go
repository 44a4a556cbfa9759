// Package hostinfo answers the one startup question the core needs from
// the host: how many CPU cores does it actually have, so nb_cores can be
// validated against reality rather than trusted blindly.
package hostinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
)

// LogicalCoreCount returns the number of logical CPUs gopsutil can see.
func LogicalCoreCount() (int, error) {
	n, err := cpu.Counts(true)
	if err != nil {
		return 0, fmt.Errorf("hostinfo: count cpus: %w", err)
	}
	return n, nil
}
