// Package clock provides the monotonic tick source every TX worker paces
// against. A tick is whatever CLOCK_MONOTONIC reports in nanoseconds; the
// scale (ticks per microsecond) is calibrated once and cached, mirroring the
// one-second busy-spin calibration of the original pktgen.
package clock

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Source is a monotonic tick source. Now is O(1); Scale may busy-spin on its
// first call.
type Source struct {
	once       sync.Once
	ticksPerUs uint64
}

// New returns a Source. Calibration is deferred to the first Scale() call so
// construction itself never blocks.
func New() *Source {
	return &Source{}
}

// Now returns the current monotonic tick (nanoseconds since an arbitrary
// epoch — only deltas are meaningful).
func (s *Source) Now() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}

// Scale returns ticks-per-microsecond. The first call busy-spins for up to
// one wall-clock second measuring how many ticks elapse, then caches the
// result; every later call is O(1).
func (s *Source) Scale() uint64 {
	s.once.Do(func() {
		start := s.Now()
		wallStart := time.Now()
		for time.Since(wallStart) < time.Second {
			// busy-spin: calibration must not rely on sleep-granularity timers
		}
		elapsedTicks := s.Now() - start
		elapsedUs := uint64(time.Since(wallStart).Microseconds())
		if elapsedUs == 0 {
			elapsedUs = 1
		}
		s.ticksPerUs = elapsedTicks / elapsedUs
		if s.ticksPerUs == 0 {
			s.ticksPerUs = 1
		}
	})
	return s.ticksPerUs
}
