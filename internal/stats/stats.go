// Package stats exposes the aggregated TX/RX counters pulled from the NIC
// abstraction as Prometheus gauges, reusing the client the teacher pack
// already pulls in — here on the exposition side rather than as a query
// client.
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jihwankim/pktgen/internal/nic"
)

// Collector polls a nic.Port on demand and republishes its counters as
// gauges, tagged by port label. A single port only ever moves one
// direction's worth of traffic in this architecture (the TX port sends,
// the RX port on the DUT's return path receives), so loss is not computed
// here — see LossGauge for the cross-port figure.
type Collector struct {
	port  nic.Port
	label string

	rxPackets prometheus.Gauge
	rxBytes   prometheus.Gauge
	txPackets prometheus.Gauge
	txBytes   prometheus.Gauge
}

// NewCollector registers a port's gauges under the given registry.
func NewCollector(reg *prometheus.Registry, port nic.Port, label string) *Collector {
	c := &Collector{
		port:  port,
		label: label,
		rxPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pktgen_rx_packets_total",
			Help:        "Packets received on this port.",
			ConstLabels: prometheus.Labels{"port": label},
		}),
		rxBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pktgen_rx_bytes_total",
			Help:        "Bytes received on this port.",
			ConstLabels: prometheus.Labels{"port": label},
		}),
		txPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pktgen_tx_packets_total",
			Help:        "Packets transmitted on this port.",
			ConstLabels: prometheus.Labels{"port": label},
		}),
		txBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pktgen_tx_bytes_total",
			Help:        "Bytes transmitted on this port.",
			ConstLabels: prometheus.Labels{"port": label},
		}),
	}
	reg.MustRegister(c.rxPackets, c.rxBytes, c.txPackets, c.txBytes)
	return c
}

// Sample reads the port's current counters and updates the gauges.
func (c *Collector) Sample() {
	counters := c.port.Counters()
	c.rxPackets.Set(float64(counters.RXPackets))
	c.rxBytes.Set(float64(counters.RXBytes))
	c.txPackets.Set(float64(counters.TXPackets))
	c.txBytes.Set(float64(counters.TXBytes))
}

// Reset zeros the underlying port's hardware counters.
func (c *Collector) Reset() {
	c.port.ResetCounters()
}

// LossGauge reports (tx - rx) / tx across the TX and RX ports, the
// cross-port figure a single per-port Collector cannot compute on its own.
type LossGauge struct {
	txPort, rxPort nic.Port
	gauge          prometheus.Gauge
}

// NewLossGauge registers the combined loss-percent gauge.
func NewLossGauge(reg *prometheus.Registry, txPort, rxPort nic.Port) *LossGauge {
	g := &LossGauge{
		txPort: txPort,
		rxPort: rxPort,
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pktgen_loss_percent",
			Help: "(tx_pkts - rx_pkts) / tx_pkts across the tx and rx ports, as a percentage.",
		}),
	}
	reg.MustRegister(g.gauge)
	return g
}

// Sample recomputes loss% from the two ports' current counters.
func (g *LossGauge) Sample() {
	tx := g.txPort.Counters()
	rx := g.rxPort.Counters()
	var loss float64
	if tx.TXPackets > 0 {
		loss = float64(tx.TXPackets-rx.RXPackets) / float64(tx.TXPackets) * 100
	}
	g.gauge.Set(loss)
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
