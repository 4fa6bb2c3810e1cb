package nucleus

import "sync/atomic"

// Metrics reports operation counters for one Engine. Unlike the teacher's
// process-global counters, these are scoped to a single Engine instance so
// that an application running more than one Engine (for instance, one per
// test case) gets independent counts.
type Metrics struct {
	Creates     uint64 `json:"creates"`
	Destroys    uint64 `json:"destroys"`
	Transitions uint64 `json:"transitions"`
	Grants      uint64 `json:"grants"`
	Revokes     uint64 `json:"revokes"`
	MapOps      uint64 `json:"map_ops"`
	UnmapOps    uint64 `json:"unmap_ops"`
	Pumps       uint64 `json:"pumps"`
}

// engineMetrics holds the counters backing an Engine's Metrics snapshot.
// Every read and write of them happens under the owning Engine's lock.
type engineMetrics struct {
	creates     uint64
	destroys    uint64
	transitions uint64
	grants      uint64
	revokes     uint64
	mapOps      uint64
	unmapOps    uint64
	pumps       uint64
}

func (m *engineMetrics) snapshot() Metrics {
	return Metrics{
		Creates:     atomic.LoadUint64(&m.creates),
		Destroys:    atomic.LoadUint64(&m.destroys),
		Transitions: atomic.LoadUint64(&m.transitions),
		Grants:      atomic.LoadUint64(&m.grants),
		Revokes:     atomic.LoadUint64(&m.revokes),
		MapOps:      atomic.LoadUint64(&m.mapOps),
		UnmapOps:    atomic.LoadUint64(&m.unmapOps),
		Pumps:       atomic.LoadUint64(&m.pumps),
	}
}

func (m *engineMetrics) reset() {
	atomic.StoreUint64(&m.creates, 0)
	atomic.StoreUint64(&m.destroys, 0)
	atomic.StoreUint64(&m.transitions, 0)
	atomic.StoreUint64(&m.grants, 0)
	atomic.StoreUint64(&m.revokes, 0)
	atomic.StoreUint64(&m.mapOps, 0)
	atomic.StoreUint64(&m.unmapOps, 0)
	atomic.StoreUint64(&m.pumps, 0)
}
