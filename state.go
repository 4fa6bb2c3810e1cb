package nucleus

// SystemState is the aggregate the nucleus exclusively owns: the VM-state
// map, the capability map, the per-VM memory-region map, the FIFO exit
// queue, and the monotonic VMID allocator. It is the single mutable root
// every other component in this package mutates.
//
// SystemState itself enforces no capability checks and performs no
// existence validation beyond what's needed to answer queries: that is
// the job of the lifecycle, capability, memory, and dispatch operations
// layered on top of it in lifecycle.go, capability.go, memory.go, and
// dispatch.go. SystemState is the trusted primitive layer described in
// the nucleus's system-state container responsibility.
type SystemState struct {
	vms      map[VMID]VMState
	caps     map[VMID]map[Capability]struct{}
	mem      map[VMID][]MemoryRegion
	exits    []pendingExit
	nextVMID uint32

	vectorTable map[uint32]GPA
}

type pendingExit struct {
	VMID   VMID
	Reason ExitReason
}

// NewSystemState returns an empty system state with no VMs.
func NewSystemState() *SystemState {
	return &SystemState{
		vms:  make(map[VMID]VMState),
		caps: make(map[VMID]map[Capability]struct{}),
		mem:  make(map[VMID][]MemoryRegion),
	}
}

// allocateVMID returns a never-before-returned VMID.
func (s *SystemState) allocateVMID() VMID {
	s.nextVMID++
	return VMID(s.nextVMID)
}

// hasCapability is total: it returns false if v is unknown rather than
// erroring, per the system-state container's contract.
func (s *SystemState) hasCapability(v VMID, c Capability) bool {
	set, ok := s.caps[v]
	if !ok {
		return false
	}
	_, ok = set[c]
	return ok
}

// grantCapability is an idempotent insertion. It does not check that v
// exists; callers (the capability manager, VM creation) are responsible
// for that.
func (s *SystemState) grantCapability(v VMID, c Capability) {
	set, ok := s.caps[v]
	if !ok {
		set = make(map[Capability]struct{}, len(AllCapabilities))
		s.caps[v] = set
	}
	set[c] = struct{}{}
}

func (s *SystemState) revokeCapability(v VMID, c Capability) {
	if set, ok := s.caps[v]; ok {
		delete(set, c)
	}
}

func (s *SystemState) exists(v VMID) bool {
	_, ok := s.vms[v]
	return ok
}

// VMIDs returns every VM currently known to the system state, in no
// particular order.
func (s *SystemState) VMIDs() []VMID {
	out := make([]VMID, 0, len(s.vms))
	for v := range s.vms {
		out = append(out, v)
	}
	return out
}

// QueueLen reports the number of exits currently pending dispatch.
func (s *SystemState) QueueLen() int { return len(s.exits) }
