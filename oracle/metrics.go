package oracle

import (
	"sync/atomic"
	"time"
)

var (
	contextCreateCount uint64
	contextDestroyCount uint64
	vcpuCreateCount     uint64
	vcpuDestroyCount    uint64
	mapOperations       uint64
	unmapOperations     uint64
	registerOps         uint64
	runOperations       uint64

	totalContextCreateTime uint64
	totalRunTime           uint64

	resourceErrors uint64
)

// Metrics reports counters for every oracle operation performed by this
// process, across every HVFOracle instance (the underlying framework is
// process-global, so the counters are too).
type Metrics struct {
	ContextsCreated      uint64 `json:"contexts_created"`
	ContextsDestroyed    uint64 `json:"contexts_destroyed"`
	VCPUsCreated         uint64 `json:"vcpus_created"`
	VCPUsDestroyed       uint64 `json:"vcpus_destroyed"`
	MapOperations        uint64 `json:"map_operations"`
	UnmapOperations      uint64 `json:"unmap_operations"`
	RegisterOps          uint64 `json:"register_operations"`
	RunOperations        uint64 `json:"run_operations"`
	AvgContextCreateNs   uint64 `json:"avg_context_create_time_ns"`
	AvgRunTimeNs         uint64 `json:"avg_run_time_ns"`
	ResourceErrors       uint64 `json:"resource_errors"`
}

// GetMetrics returns a snapshot of the process-wide oracle metrics.
func GetMetrics() Metrics {
	created := atomic.LoadUint64(&contextCreateCount)
	runs := atomic.LoadUint64(&runOperations)

	var avgCreate, avgRun uint64
	if created > 0 {
		avgCreate = atomic.LoadUint64(&totalContextCreateTime) / created
	}
	if runs > 0 {
		avgRun = atomic.LoadUint64(&totalRunTime) / runs
	}

	return Metrics{
		ContextsCreated:    created,
		ContextsDestroyed:  atomic.LoadUint64(&contextDestroyCount),
		VCPUsCreated:       atomic.LoadUint64(&vcpuCreateCount),
		VCPUsDestroyed:     atomic.LoadUint64(&vcpuDestroyCount),
		MapOperations:      atomic.LoadUint64(&mapOperations),
		UnmapOperations:    atomic.LoadUint64(&unmapOperations),
		RegisterOps:        atomic.LoadUint64(&registerOps),
		RunOperations:      runs,
		AvgContextCreateNs: avgCreate,
		AvgRunTimeNs:       avgRun,
		ResourceErrors:     atomic.LoadUint64(&resourceErrors),
	}
}

// ResetMetrics clears every oracle metric counter.
func ResetMetrics() {
	atomic.StoreUint64(&contextCreateCount, 0)
	atomic.StoreUint64(&contextDestroyCount, 0)
	atomic.StoreUint64(&vcpuCreateCount, 0)
	atomic.StoreUint64(&vcpuDestroyCount, 0)
	atomic.StoreUint64(&mapOperations, 0)
	atomic.StoreUint64(&unmapOperations, 0)
	atomic.StoreUint64(&registerOps, 0)
	atomic.StoreUint64(&runOperations, 0)
	atomic.StoreUint64(&totalContextCreateTime, 0)
	atomic.StoreUint64(&totalRunTime, 0)
	atomic.StoreUint64(&resourceErrors, 0)
}

func recordContextCreate(d time.Duration) {
	atomic.AddUint64(&contextCreateCount, 1)
	atomic.AddUint64(&totalContextCreateTime, uint64(d.Nanoseconds()))
}

func recordContextDestroy() { atomic.AddUint64(&contextDestroyCount, 1) }
func recordVCPUCreate()     { atomic.AddUint64(&vcpuCreateCount, 1) }
func recordVCPUDestroy()    { atomic.AddUint64(&vcpuDestroyCount, 1) }
func recordMapOperation()   { atomic.AddUint64(&mapOperations, 1) }
func recordUnmapOperation() { atomic.AddUint64(&unmapOperations, 1) }
func recordRegisterOp()     { atomic.AddUint64(&registerOps, 1) }

func recordRun(d time.Duration) {
	atomic.AddUint64(&runOperations, 1)
	atomic.AddUint64(&totalRunTime, uint64(d.Nanoseconds()))
}

func recordResourceError() { atomic.AddUint64(&resourceErrors, 1) }
