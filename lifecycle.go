package nucleus

// Create allocates a new VMID in the Created state with the default
// capability set (every Capability in AllCapabilities) and no memory
// regions. Create never fails.
func (s *SystemState) Create() VMID {
	v := s.allocateVMID()
	s.vms[v] = VMState{Lifecycle: Created}
	for _, c := range AllCapabilities {
		s.grantCapability(v, c)
	}
	return v
}

// Initialize moves v from Created to Runnable, installing the starting
// CPU state. It requires CapExecute and fails with InvalidVMState unless
// v is currently Created.
func (s *SystemState) Initialize(v VMID, cpu CPUState) error {
	st, ok := s.vms[v]
	if !ok {
		return errVMNotFound(v)
	}
	if !s.hasCapability(v, CapExecute) {
		return errCapability(v, CapExecute)
	}
	if st.Lifecycle != Created {
		return errInvalidVMState(v)
	}
	s.vms[v] = VMState{Lifecycle: Runnable, CPU: cpu}
	return nil
}

// Resume moves v from Trapped back to Runnable with the given CPU state.
// It requires CapExecute and fails with InvalidVMState unless v is
// currently Trapped.
func (s *SystemState) Resume(v VMID, cpu CPUState) error {
	st, ok := s.vms[v]
	if !ok {
		return errVMNotFound(v)
	}
	if !s.hasCapability(v, CapExecute) {
		return errCapability(v, CapExecute)
	}
	if st.Lifecycle != Trapped {
		return errInvalidVMState(v)
	}
	s.vms[v] = VMState{Lifecycle: Runnable, CPU: cpu}
	return nil
}

// HaltVM moves v to the terminal Halted state. It requires CapHalt. Per
// this nucleus's reading of terminality, Halt on an already-Halted VM
// fails with InvalidVMState rather than succeeding as a no-op: every
// other transition (Initialize, Trap, Resume) already rejects a Halted
// VM, and Halted is not a resource that benefits from idempotent release.
func (s *SystemState) HaltVM(v VMID) error {
	st, ok := s.vms[v]
	if !ok {
		return errVMNotFound(v)
	}
	if !s.hasCapability(v, CapHalt) {
		return errCapability(v, CapHalt)
	}
	if st.Lifecycle == Halted {
		return errInvalidVMState(v)
	}
	s.vms[v] = VMState{Lifecycle: Halted}
	return nil
}

// Destroy removes v and all of its capabilities and memory regions from
// the system state. It requires no particular lifecycle position: a VM
// may be destroyed from any state, including Halted.
func (s *SystemState) Destroy(v VMID) error {
	if !s.exists(v) {
		return errVMNotFound(v)
	}
	delete(s.vms, v)
	delete(s.caps, v)
	delete(s.mem, v)
	s.dropExitsFor(v)
	return nil
}

// GetState returns v's current VMState.
func (s *SystemState) GetState(v VMID) (VMState, error) {
	st, ok := s.vms[v]
	if !ok {
		return VMState{}, errVMNotFound(v)
	}
	return st, nil
}

func (s *SystemState) dropExitsFor(v VMID) {
	if len(s.exits) == 0 {
		return
	}
	kept := s.exits[:0]
	for _, e := range s.exits {
		if e.VMID != v {
			kept = append(kept, e)
		}
	}
	s.exits = kept
}
