// Package pcapdump writes a one-shot flows.pcap capture: one fully-rewritten
// packet per flow, before any TX worker starts.
package pcapdump

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/jihwankim/pktgen/internal/flow"
	"github.com/jihwankim/pktgen/internal/packet"
)

// Dump writes one packet per entry in table to path, built from template and
// rewritten via packet.Modify exactly as a TX worker would for that flow's
// first op.
func Dump(path string, template []byte, table *flow.Table, opPlans []flow.OpPlan, kvsMode bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pcapdump: create %s: %w", path, err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(uint32(len(template)), gopacket.LinkTypeEthernet); err != nil {
		return fmt.Errorf("pcapdump: write file header: %w", err)
	}

	now := time.Now()
	buf := make([]byte, len(template))
	for i := 0; i < table.Len(); i++ {
		copy(buf, template)
		rec := table.Get(uint32(i))
		op := flow.OpGet
		if len(opPlans) > i && len(opPlans[i]) > 0 {
			op = opPlans[i][0]
		}
		packet.Modify(buf, rec, op, kvsMode)

		ci := gopacket.CaptureInfo{
			Timestamp:     now,
			CaptureLength: len(buf),
			Length:        len(buf),
		}
		if err := w.WritePacket(ci, buf); err != nil {
			return fmt.Errorf("pcapdump: write packet %d: %w", i, err)
		}
	}
	return nil
}
