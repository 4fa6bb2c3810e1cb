package nucleus

import (
	"sync"
	"testing"
)

// fakeOracle is an in-memory stand-in for a real execution oracle, used to
// exercise Engine without Hypervisor.framework. It hands out sequential
// handles and remembers the CPU state and queued exit for each vCPU.
type fakeOracle struct {
	mu sync.Mutex

	nextCtx  uint64
	nextVCPU uint64

	contexts map[ContextHandle]bool
	vcpus    map[VCPUHandle]ContextHandle
	cpuState map[VCPUHandle]CPUState
	queued   map[VCPUHandle]ExitReason

	failMapBacking bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		contexts: make(map[ContextHandle]bool),
		vcpus:    make(map[VCPUHandle]ContextHandle),
		cpuState: make(map[VCPUHandle]CPUState),
		queued:   make(map[VCPUHandle]ExitReason),
	}
}

func (f *fakeOracle) CreateContext(VMID) (ContextHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCtx++
	h := ContextHandle(f.nextCtx)
	f.contexts[h] = true
	return h, nil
}

func (f *fakeOracle) DestroyContext(h ContextHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.contexts, h)
	return nil
}

func (f *fakeOracle) MapBacking(ctx ContextHandle, host []byte, guest GPA, perm Protection) error {
	if f.failMapBacking {
		return errExit(0, "fake oracle rejected mapping")
	}
	return nil
}

func (f *fakeOracle) UnmapBacking(ctx ContextHandle, guest GPA, length uint64) error {
	return nil
}

func (f *fakeOracle) CreateVCPU(ctx ContextHandle) (VCPUHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextVCPU++
	h := VCPUHandle(f.nextVCPU)
	f.vcpus[h] = ctx
	return h, nil
}

func (f *fakeOracle) DestroyVCPU(h VCPUHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vcpus, h)
	delete(f.cpuState, h)
	delete(f.queued, h)
	return nil
}

func (f *fakeOracle) SetCPUState(h VCPUHandle, cpu CPUState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpuState[h] = cpu
	return nil
}

func (f *fakeOracle) GetCPUState(h VCPUHandle) (CPUState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cpuState[h], nil
}

func (f *fakeOracle) Run(h VCPUHandle) (ExitReason, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason, ok := f.queued[h]
	if !ok {
		reason = ExitReason{Kind: ExitWFI}
	}
	return reason, nil
}

func (f *fakeOracle) SystemInfo() (SystemInfo, error) {
	return SystemInfo{Available: true, EL2Supported: true, MaxVCPUs: 8}, nil
}

func (f *fakeOracle) queueExit(h VCPUHandle, reason ExitReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[h] = reason
}

func TestEngineCreateInitializeDestroy(t *testing.T) {
	o := newFakeOracle()
	e := NewEngine(o)

	v, err := e.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Initialize(v, CPUState{PC: 0x1000}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	st, err := e.GetState(v)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.Lifecycle != Runnable {
		t.Errorf("lifecycle after Initialize = %s, want Runnable", st.Lifecycle)
	}
	if err := e.Destroy(v); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if len(o.contexts) != 0 {
		t.Error("oracle context not torn down on Destroy")
	}
}

func TestEngineMapRollsBackOnOracleFailure(t *testing.T) {
	o := newFakeOracle()
	o.failMapBacking = true
	e := NewEngine(o)

	v, err := e.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	host := make([]byte, 0x1000)
	err = e.Map(v, GPA(0x1000), host, ProtRead)
	if kindOf(t, err) != KindHVFError {
		t.Fatalf("Map with failing oracle kind = %v, want HVFError", err)
	}
	regions, rerr := e.Regions(v)
	if rerr != nil {
		t.Fatalf("Regions: %v", rerr)
	}
	if len(regions) != 0 {
		t.Errorf("bookkeeping region survived a rolled-back Map: %+v", regions)
	}
}

func TestEngineMapUnmapRoundTrip(t *testing.T) {
	o := newFakeOracle()
	e := NewEngine(o)

	v, err := e.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	host := make([]byte, 0x2000)
	if err := e.Map(v, GPA(0x4000), host, ProtRead|ProtWrite); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if err := e.Unmap(v, GPA(0x4000)); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	regions, err := e.Regions(v)
	if err != nil {
		t.Fatalf("Regions: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("regions after Unmap = %+v, want none", regions)
	}
}

func TestEngineRunOnceDrivesFullCycle(t *testing.T) {
	o := newFakeOracle()
	e := NewEngine(o)

	v, err := e.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Initialize(v, CPUState{PC: 0x1000}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	vcpu := e.vcpus[v]
	o.queueExit(vcpu, ExitReason{Kind: ExitHypercall, Nr: 0})
	o.SetCPUState(vcpu, CPUState{PC: 0x1000})

	action, err := e.RunOnce(v)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if action.Kind != ActionResume {
		t.Fatalf("RunOnce action = %s, want Resume", action.Kind)
	}

	st, err := e.GetState(v)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.Lifecycle != Runnable {
		t.Errorf("lifecycle after RunOnce = %s, want Runnable", st.Lifecycle)
	}
	if st.CPU.PC != 0x1004 {
		t.Errorf("PC after RunOnce hypercall-0 = %#x, want %#x", st.CPU.PC, 0x1004)
	}

	pushed, err := o.GetCPUState(vcpu)
	if err != nil {
		t.Fatalf("GetCPUState: %v", err)
	}
	if pushed.PC != 0x1004 {
		t.Errorf("oracle CPU state PC = %#x, want RunOnce to have pushed %#x", pushed.PC, 0x1004)
	}
}

func TestEngineRunOnceHaltStopsVM(t *testing.T) {
	o := newFakeOracle()
	e := NewEngine(o)

	v, err := e.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Initialize(v, CPUState{PC: 0x2000}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	vcpu := e.vcpus[v]
	o.queueExit(vcpu, ExitReason{Kind: ExitHypercall, Nr: 1})

	action, err := e.RunOnce(v)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if action.Kind != ActionHalt {
		t.Fatalf("RunOnce action = %s, want Halt", action.Kind)
	}
	st, err := e.GetState(v)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.Lifecycle != Halted {
		t.Errorf("lifecycle after halting RunOnce = %s, want Halted", st.Lifecycle)
	}
}

func TestEngineMetricsCountOperations(t *testing.T) {
	o := newFakeOracle()
	e := NewEngine(o)

	v, err := e.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Initialize(v, CPUState{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := e.Destroy(v); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	m := e.Metrics()
	if m.Creates != 1 {
		t.Errorf("Creates = %d, want 1", m.Creates)
	}
	if m.Destroys != 1 {
		t.Errorf("Destroys = %d, want 1", m.Destroys)
	}
	if m.Transitions != 1 {
		t.Errorf("Transitions = %d, want 1", m.Transitions)
	}

	e.ResetMetrics()
	m = e.Metrics()
	if m.Creates != 0 || m.Destroys != 0 || m.Transitions != 0 {
		t.Errorf("Metrics after ResetMetrics = %+v, want all zero", m)
	}
}
