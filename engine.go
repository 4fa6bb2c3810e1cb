package nucleus

import (
	"sync"
	"unsafe"
)

// Engine is the nucleus's top-level handle: one SystemState plus one
// bound Oracle, safe for concurrent use by multiple goroutines. Every
// exported method except RunOnce takes the Engine's lock for its own
// duration; RunOnce releases the lock while the oracle runs the vCPU and
// while it pushes the resulting CPU state back down.
type Engine struct {
	mu      sync.Mutex
	state   *SystemState
	oracle  Oracle
	metrics engineMetrics

	contexts map[VMID]ContextHandle
	vcpus    map[VMID]VCPUHandle
}

// NewEngine returns an Engine with an empty SystemState bound to o.
func NewEngine(o Oracle) *Engine {
	return &Engine{
		state:    NewSystemState(),
		oracle:   o,
		contexts: make(map[VMID]ContextHandle),
		vcpus:    make(map[VMID]VCPUHandle),
	}
}

// Create allocates a new VM and its backing oracle context.
func (e *Engine) Create() (VMID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.state.Create()
	ctx, err := e.oracle.CreateContext(v)
	if err != nil {
		e.state.Destroy(v)
		return 0, errHVF(v, err)
	}
	e.contexts[v] = ctx
	e.metrics.creates++
	return v, nil
}

// Initialize creates v's vCPU in the oracle, pushes the starting CPU
// state down to it, and moves v to Runnable.
func (e *Engine) Initialize(v VMID, cpu CPUState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, ok := e.contexts[v]
	if !ok {
		return errVMNotFound(v)
	}

	if err := e.state.Initialize(v, cpu); err != nil {
		return err
	}

	vcpu, err := e.oracle.CreateVCPU(ctx)
	if err != nil {
		return errHVF(v, err)
	}
	if err := e.oracle.SetCPUState(vcpu, cpu); err != nil {
		return errHVF(v, err)
	}
	e.vcpus[v] = vcpu
	e.metrics.transitions++
	return nil
}

// Resume pushes cpu to the oracle and moves v from Trapped to Runnable.
func (e *Engine) Resume(v VMID, cpu CPUState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resumeLocked(v, cpu)
}

func (e *Engine) resumeLocked(v VMID, cpu CPUState) error {
	vcpu, ok := e.vcpus[v]
	if !ok {
		return errVMNotFound(v)
	}
	if err := e.state.Resume(v, cpu); err != nil {
		return err
	}
	if err := e.oracle.SetCPUState(vcpu, cpu); err != nil {
		return errHVF(v, err)
	}
	e.metrics.transitions++
	return nil
}

// Halt moves v to the terminal Halted state.
func (e *Engine) Halt(v VMID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.HaltVM(v); err != nil {
		return err
	}
	e.metrics.transitions++
	return nil
}

// Destroy tears down v's oracle resources and removes it from the
// SystemState.
func (e *Engine) Destroy(v VMID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.state.Destroy(v); err != nil {
		return err
	}

	if vcpu, ok := e.vcpus[v]; ok {
		e.oracle.DestroyVCPU(vcpu)
		delete(e.vcpus, v)
	}
	if ctx, ok := e.contexts[v]; ok {
		e.oracle.DestroyContext(ctx)
		delete(e.contexts, v)
	}
	e.metrics.destroys++
	return nil
}

// GetState returns v's current VMState.
func (e *Engine) GetState(v VMID) (VMState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GetState(v)
}

// Grant adds c to v's capability set.
func (e *Engine) Grant(v VMID, c Capability) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.Grant(v, c); err != nil {
		return err
	}
	e.metrics.grants++
	return nil
}

// Revoke removes c from v's capability set.
func (e *Engine) Revoke(v VMID, c Capability) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.Revoke(v, c); err != nil {
		return err
	}
	e.metrics.revokes++
	return nil
}

// Require returns an error unless v holds c.
func (e *Engine) Require(v VMID, c Capability) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Require(v, c)
}

// Check reports whether v holds c.
func (e *Engine) Check(v VMID, c Capability) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Check(v, c)
}

// GetAll returns every capability v currently holds.
func (e *Engine) GetAll(v VMID) ([]Capability, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GetAll(v)
}

// Transfer grants c to dst, revoking it from src when move is true.
func (e *Engine) Transfer(src, dst VMID, c Capability, move bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.Transfer(src, dst, c, move); err != nil {
		return err
	}
	e.metrics.grants++
	if move {
		e.metrics.revokes++
	}
	return nil
}

// Map installs a new guest-physical region for v, backed by host, and
// hands the same mapping down to the bound oracle. If the oracle
// rejects the mapping, the bookkeeping entry is rolled back.
func (e *Engine) Map(v VMID, guest GPA, host []byte, perm Protection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, ok := e.contexts[v]
	if !ok {
		return errVMNotFound(v)
	}

	var hostAddr uint64
	if len(host) > 0 {
		hostAddr = uint64(uintptr(unsafe.Pointer(&host[0])))
	}

	if err := e.state.Map(v, guest, uint64(len(host)), hostAddr, perm); err != nil {
		return err
	}

	if err := e.oracle.MapBacking(ctx, host, guest, perm); err != nil {
		e.state.Unmap(v, guest, uint64(len(host)))
		return errHVF(v, err)
	}

	e.metrics.mapOps++
	return nil
}

// Unmap removes v's region starting at guest, from both the bookkeeping
// state and the bound oracle.
func (e *Engine) Unmap(v VMID, guest GPA) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, ok := e.contexts[v]
	if !ok {
		return errVMNotFound(v)
	}

	regions, err := e.state.Regions(v)
	if err != nil {
		return err
	}
	var length uint64
	found := false
	for _, r := range regions {
		if r.GuestBase == guest {
			length = r.Length
			found = true
			break
		}
	}
	if !found {
		return errMemory(v, "no region mapped at the given guest base")
	}

	if err := e.state.Unmap(v, guest, length); err != nil {
		return err
	}
	if err := e.oracle.UnmapBacking(ctx, guest, length); err != nil {
		return errHVF(v, err)
	}

	e.metrics.unmapOps++
	return nil
}

// Regions returns every memory region currently owned by v.
func (e *Engine) Regions(v VMID) ([]MemoryRegion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Regions(v)
}

// ReleaseAll drops every bookkeeping region owned by v without touching
// the oracle; it is meant for recovery after an oracle-side mapping
// desync, not ordinary teardown (Destroy handles that).
func (e *Engine) ReleaseAll(v VMID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ReleaseAll(v)
}

// Trap records that v exited with reason while running cpu.
func (e *Engine) Trap(v VMID, reason ExitReason, cpu CPUState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Trap(v, reason, cpu)
}

// Pump dequeues the oldest pending exit and returns its translated
// action.
func (e *Engine) Pump() (VMID, ExitAction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, action, err := e.state.Pump()
	if err == nil {
		e.metrics.pumps++
	}
	return v, action, err
}

// Apply effects action against v.
func (e *Engine) Apply(v VMID, action ExitAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	vcpu, ok := e.vcpus[v]
	if !ok {
		return errVMNotFound(v)
	}

	if err := e.state.Apply(v, action); err != nil {
		return err
	}

	switch action.Kind {
	case ActionResume, ActionInjectException:
		// The state's CPU carries any vector-table PC rewrite Apply made.
		cpu := e.state.vms[v].CPU
		if err := e.oracle.SetCPUState(vcpu, cpu); err != nil {
			return errHVF(v, err)
		}
	}
	return nil
}

// SetVectorTable installs an optional guest exception-vector table
// consulted by Apply when resuming an InjectException action.
func (e *Engine) SetVectorTable(table map[uint32]GPA) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.SetVectorTable(table)
}

// ClearVectorTable removes any installed vector table.
func (e *Engine) ClearVectorTable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ClearVectorTable()
}

// RunOnce hands v's vCPU to the bound oracle for one execution slice,
// then drives the resulting exit through Trap, Pump, and Apply in one
// call. v must be Runnable.
func (e *Engine) RunOnce(v VMID) (ExitAction, error) {
	e.mu.Lock()
	vcpu, ok := e.vcpus[v]
	e.mu.Unlock()
	if !ok {
		return ExitAction{}, errVMNotFound(v)
	}

	reason, err := e.oracle.Run(vcpu)
	if err != nil {
		return ExitAction{}, errHVF(v, err)
	}

	cpu, err := e.oracle.GetCPUState(vcpu)
	if err != nil {
		return ExitAction{}, errHVF(v, err)
	}

	e.mu.Lock()
	if err := e.state.Trap(v, reason, cpu); err != nil {
		e.mu.Unlock()
		return ExitAction{}, err
	}
	_, action, err := e.state.Pump()
	if err != nil {
		e.mu.Unlock()
		return ExitAction{}, err
	}
	e.metrics.pumps++
	applyErr := e.state.Apply(v, action)
	resumed := e.state.vms[v].CPU
	e.mu.Unlock()
	if applyErr != nil {
		return ExitAction{}, applyErr
	}

	switch action.Kind {
	case ActionResume, ActionInjectException:
		if err := e.oracle.SetCPUState(vcpu, resumed); err != nil {
			return action, errHVF(v, err)
		}
	}

	return action, nil
}

// Metrics returns a snapshot of this Engine's operation counters.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics.snapshot()
}

// ResetMetrics clears this Engine's operation counters.
func (e *Engine) ResetMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics.reset()
}
