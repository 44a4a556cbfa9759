// Package flow owns the flow table: the fixed-size population of 5-tuple/KVS
// records that the TX workers stamp onto outgoing packets, plus the churn
// operation that replaces a single slot in place.
package flow

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/jihwankim/pktgen/internal/rng"
)

// Op is a KVS operation kind.
type Op uint8

const (
	OpGet Op = iota
	OpPut
)

// Record is a fixed-size value carrying both a 5-tuple view and a KVS view;
// they coexist so switching mode costs no allocation.
type Record struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	KVSKey   [4]byte
	KVSValue [4]byte

	// KVSClientPort is stamped into the KVS header's client_port field in
	// KVS mode. It is redrawn only on churn (internal/flow.Randomize), not
	// per packet, so downstream KVS servers see a stable client identity
	// between replacements.
	KVSClientPort uint16
}

// Table is the ordered sequence of num_flows records shared by all TX
// workers. The only mutator of a slot is the worker whose stripe contains
// that index (see internal/distribution.Stripe).
type Table struct {
	KVSMode bool
	records []Record
}

// NewTable allocates an empty table of the given size. Callers populate it
// via Generate before handing it to workers.
func NewTable(numFlows uint32, kvsMode bool) *Table {
	return &Table{KVSMode: kvsMode, records: make([]Record, numFlows)}
}

// Len returns num_flows.
func (t *Table) Len() int { return len(t.records) }

// Get returns the record at idx. Callers must not mutate the result outside
// of Randomize — the table has single-writer-per-slot discipline.
func (t *Table) Get(idx uint32) Record { return t.records[idx] }

// Generate populates every slot with a fresh random draw. When forceUnique
// holds, a rejection loop keyed on the mode-specific projection (the KVS key
// in KVS mode, the 5-tuple otherwise) guarantees pairwise distinctness; the
// uniqueness invariant applies only to this initial population, never to
// later churn.
func (t *Table) Generate(r *rng.Source, forceUnique bool) {
	if !forceUnique {
		for i := range t.records {
			t.records[i] = randomRecord(r)
		}
		return
	}

	seen := make(map[uint64]struct{}, len(t.records))
	for i := range t.records {
		for {
			rec := randomRecord(r)
			key := t.dedupKey(rec)
			if _, exists := seen[key]; !exists {
				seen[key] = struct{}{}
				t.records[i] = rec
				break
			}
		}
	}
}

// Randomize replaces slot idx with a fresh draw. It makes no attempt at
// uniqueness against the rest of the table — churn is allowed to collide.
func (t *Table) Randomize(idx uint32, r *rng.Source) {
	t.records[idx] = randomRecord(r)
}

// dedupKey hashes the mode-specific equality projection of rec with
// xxhash so the uniqueness set stores an 8-byte key instead of the full
// record.
func (t *Table) dedupKey(rec Record) uint64 {
	var buf [8]byte
	if t.KVSMode {
		copy(buf[:4], rec.KVSKey[:])
		return xxhash.Sum64(buf[:4])
	}
	binary.BigEndian.PutUint32(buf[0:4], rec.SrcIP)
	binary.BigEndian.PutUint32(buf[4:8], rec.DstIP)
	h := xxhash.New()
	h.Write(buf[:])
	var ports [4]byte
	binary.BigEndian.PutUint16(ports[0:2], rec.SrcPort)
	binary.BigEndian.PutUint16(ports[2:4], rec.DstPort)
	h.Write(ports[:])
	return h.Sum64()
}

func randomRecord(r *rng.Source) Record {
	var rec Record
	rec.SrcIP = uint32(r.Uint64())
	rec.DstIP = uint32(r.Uint64())
	rec.SrcPort = uint16(r.Uint32n(1<<16-1024) + 1024)
	rec.DstPort = uint16(r.Uint32n(1<<16-1024) + 1024)
	binary.BigEndian.PutUint32(rec.KVSKey[:], uint32(r.Uint64()))
	binary.BigEndian.PutUint32(rec.KVSValue[:], uint32(r.Uint64()))
	rec.KVSClientPort = uint16(r.Uint32n(1<<16-1024) + 1024)
	return rec
}

// OpPlan is the per-flow {GET, PUT} sequence derived from a get:put ratio.
type OpPlan []Op

// BuildOpPlan converts ratio (kvs_get_ratio, in [0,1]) into an integer
// get:put pair by multiplying by 10 until integral and reducing the pair to
// lowest terms, then returns get GETs followed by put PUTs.
func BuildOpPlan(ratio float64) OpPlan {
	get, put := ratioToInts(ratio)
	plan := make(OpPlan, 0, get+put)
	for i := 0; i < get; i++ {
		plan = append(plan, OpGet)
	}
	for i := 0; i < put; i++ {
		plan = append(plan, OpPut)
	}
	return plan
}

// ratioToInts scales ratio by ascending powers of 10 until both the get and
// put counts are (within floating-point tolerance) integral, capping at 10^6
// to avoid runaway plans for pathological ratios.
func ratioToInts(ratio float64) (get, put int) {
	if ratio <= 0 {
		return 0, 1
	}
	if ratio >= 1 {
		return 1, 0
	}
	scale := 1.0
	for i := 0; i < 6; i++ {
		g := ratio * scale
		if isNearInt(g) {
			gi := int(g + 0.5)
			pi := int(scale+0.5) - gi
			return reduce(gi, pi)
		}
		scale *= 10
	}
	gi := int(ratio*scale + 0.5)
	pi := int(scale+0.5) - gi
	return reduce(gi, pi)
}

// reduce divides get and put by their greatest common divisor so the plan
// is the smallest sequence representing the ratio (0.5 → 1 GET, 1 PUT rather
// than 5 GET, 5 PUT).
func reduce(get, put int) (int, int) {
	d := gcd(get, put)
	if d <= 1 {
		return get, put
	}
	return get / d, put / d
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

func isNearInt(f float64) bool {
	r := f - float64(int(f))
	return r < 1e-9 || r > 1-1e-9
}
