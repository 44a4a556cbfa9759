// Package distribution builds the flow-index sequences TX workers consume:
// the identity sequence for uniform traffic, or a Zipf-sampled sequence for
// skewed popularity. Both are pure functions of (num_flows, rng) so the same
// seed always reproduces the same sequence.
package distribution

import (
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/jihwankim/pktgen/internal/logging"
	"github.com/jihwankim/pktgen/internal/rng"
)

// Kind selects the distribution shape.
type Kind string

const (
	Uniform Kind = "uniform"
	Zipf    Kind = "zipf"
)

// ZipfMaxSamplesPerFlow bounds how many samples the Zipf builder will draw
// per flow before giving up on full coverage — a pragmatic cap for
// pathologically high-skew parameters (spec.md §9, open question (b)).
const ZipfMaxSamplesPerFlow = 1000

// BuildResult is the sequence plus bookkeeping the "dist" control command
// reports on.
type BuildResult struct {
	Sequence []uint32
	Kind     Kind
	Covered  int // distinct indices observed
	NumFlows int
}

// BuildUniform returns the identity sequence [0, 1, ..., numFlows-1].
func BuildUniform(numFlows uint32) BuildResult {
	seq := make([]uint32, numFlows)
	for i := range seq {
		seq[i] = uint32(i)
	}
	return BuildResult{Sequence: seq, Kind: Uniform, Covered: int(numFlows), NumFlows: int(numFlows)}
}

// BuildZipf samples until every index in [0, numFlows) has been seen at
// least once, or until 1000*numFlows draws have been made, whichever comes
// first. Every draw — not just first occurrences — is appended, so the
// returned sequence length reflects exactly what was sampled.
func BuildZipf(numFlows uint32, s float64, r *rng.Source, log *logging.Logger) BuildResult {
	s = nudgeZipfParam(s)

	seen := bitset.New(uint(numFlows))
	covered := 0
	maxDraws := ZipfMaxSamplesPerFlow * int(numFlows)

	seq := make([]uint32, 0, maxDraws/4)
	for draws := 0; draws < maxDraws && covered < int(numFlows); draws++ {
		idx := zipfSample(numFlows, s, r)
		seq = append(seq, idx)
		if !seen.Test(uint(idx)) {
			seen.Set(uint(idx))
			covered++
		}
	}

	if covered < int(numFlows) && log != nil {
		log.Warn("zipf sampler failed to cover all flows before the draw cap",
			"num_flows", numFlows, "covered", covered, "zipf_param", s, "max_draws", maxDraws)
	}

	return BuildResult{Sequence: seq, Kind: Zipf, Covered: covered, NumFlows: int(numFlows)}
}

// nudgeZipfParam rejects the two values for which the continuous
// approximation is singular.
func nudgeZipfParam(s float64) float64 {
	if s == 0 || s == 1 {
		return s + 1e-12
	}
	return s
}

// zipfSample draws one index via Newton-iteration inversion of the
// continuous Zipf CDF approximation (spec.md §4.C).
func zipfSample(numFlows uint32, s float64, r *rng.Source) uint32 {
	p := r.Float64()
	n := float64(numFlows) + 1

	x := n / 2
	for {
		d := p * (12*(math.Pow(n, 1-s)-1)/(1-s) + 6 - 6*math.Pow(n, -s) + s - math.Pow(n, -1-s)*s)

		a := 12*(math.Pow(x, -s+1)-1)/(1-s) + 6*(1-math.Pow(x, -s)) + s - math.Pow(x, -1-s)*s - d
		b := 12*math.Pow(x, -s) + 6*s*math.Pow(x, -1-s) + math.Pow(x, -2-s)*s*(s+1)

		next := x - a/b
		if next < 1 {
			next = 1
		}

		delta := next - x
		x = next
		if delta < 0 {
			delta = -delta
		}
		if delta <= 0.01 {
			break
		}
	}

	idx := int64(math.Floor(x)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= int64(numFlows) {
		idx = int64(numFlows) - 1
	}
	return uint32(idx)
}

// Stripe assigns element i of seq to worker i%numWorkers, preserving order
// within each worker's slice.
func Stripe(seq []uint32, numWorkers int) [][]uint32 {
	out := make([][]uint32, numWorkers)
	for i, idx := range seq {
		w := i % numWorkers
		out[w] = append(out[w], idx)
	}
	return out
}
