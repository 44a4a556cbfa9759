package main

import (
	"context"
	"time"
)

// sampler is anything sampleLoop can refresh once a second; both
// *stats.Collector and *stats.LossGauge implement it.
type sampler interface {
	Sample()
}

// sampleLoop refreshes every Prometheus gauge once a second until ctx is
// cancelled.
func sampleLoop(ctx context.Context, samplers ...sampler) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range samplers {
				s.Sample()
			}
		}
	}
}
