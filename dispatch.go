package nucleus

// Trap records that v has exited with reason while running cpu, moving it
// from Runnable to Trapped and enqueuing the exit for Pump. Trap does not
// itself require a capability — it is the oracle reporting a fact about a
// VM it was already running, not a request the caller needs permission
// for.
func (s *SystemState) Trap(v VMID, reason ExitReason, cpu CPUState) error {
	st, ok := s.vms[v]
	if !ok {
		return errVMNotFound(v)
	}
	if st.Lifecycle != Runnable {
		return errInvalidVMState(v)
	}
	s.vms[v] = VMState{Lifecycle: Trapped, CPU: cpu, ExitReason: reason}
	s.exits = append(s.exits, pendingExit{VMID: v, Reason: reason})
	return nil
}

// Pump dequeues the oldest pending exit and translates it into an
// ExitAction. The translation is a pure, total function of the exit's
// reason and the trapped VM's CPU state: the same inputs always produce
// the same action, and every ExitKind has a case.
// It requires CapHandleExit; the VM itself is left Trapped until Apply
// runs its decision.
func (s *SystemState) Pump() (VMID, ExitAction, error) {
	if len(s.exits) == 0 {
		return 0, ExitAction{}, errExit(0, "no exit pending")
	}
	next := s.exits[0]
	s.exits = s.exits[1:]

	v := next.VMID
	st, ok := s.vms[v]
	if !ok {
		return v, ExitAction{}, errVMNotFound(v)
	}
	if !s.hasCapability(v, CapHandleExit) {
		return v, ExitAction{}, errCapability(v, CapHandleExit)
	}
	if st.Lifecycle != Trapped {
		return v, ExitAction{}, errInvalidVMState(v)
	}

	action := dispatchExit(next.Reason, st.CPU)
	return v, action, nil
}

// dispatchExit is the pure translation from a trap cause to a dispatcher
// decision, grounded on the reference exit handler: a hypercall number 0
// resumes past the call, number 1 halts, anything else injects vector 0;
// memory faults inject vector 1, instruction aborts vector 2, system
// register traps vector 0; WFI resumes past the instruction; an
// already-classified exception is re-injected at its own vector; a
// cancelled run halts.
func dispatchExit(reason ExitReason, cpu CPUState) ExitAction {
	switch reason.Kind {
	case ExitHypercall:
		switch reason.Nr {
		case 0:
			next := cpu
			next.PC += 4
			return ExitAction{Kind: ActionResume, CPU: next}
		case 1:
			return ExitAction{Kind: ActionHalt}
		default:
			return ExitAction{Kind: ActionInjectException, CPU: cpu, Vector: 0}
		}
	case ExitMemoryFault:
		return ExitAction{Kind: ActionInjectException, CPU: cpu, Vector: 1}
	case ExitInstructionAbort:
		return ExitAction{Kind: ActionInjectException, CPU: cpu, Vector: 2}
	case ExitSystemRegister:
		return ExitAction{Kind: ActionInjectException, CPU: cpu, Vector: 0}
	case ExitWFI:
		next := cpu
		next.PC += 4
		return ExitAction{Kind: ActionResume, CPU: next}
	case ExitException:
		return ExitAction{Kind: ActionInjectException, CPU: cpu, Vector: reason.Vector}
	case ExitCancelled:
		return ExitAction{Kind: ActionHalt}
	default:
		return ExitAction{Kind: ActionInjectException, CPU: cpu, Vector: reason.Vector}
	}
}

// SetVectorTable installs an optional guest exception-vector table. When
// set, Apply rewrites an InjectException action's PC to table[vector]
// before resuming, instead of resuming at the CPU state the trap carried.
// Vectors absent from the table fall back to the carried CPU state.
func (s *SystemState) SetVectorTable(table map[uint32]GPA) {
	s.vectorTable = table
}

// ClearVectorTable removes any installed vector table, reverting Apply to
// always resume with the carried CPU state on InjectException.
func (s *SystemState) ClearVectorTable() {
	s.vectorTable = nil
}

// Apply effects action against v. Resume and InjectException both require
// v to be Trapped and transition it to Runnable; Halt transitions v from
// any state but Halted to Halted and requires CapHalt.
func (s *SystemState) Apply(v VMID, action ExitAction) error {
	switch action.Kind {
	case ActionResume:
		return s.Resume(v, action.CPU)
	case ActionHalt:
		return s.HaltVM(v)
	case ActionInjectException:
		cpu := action.CPU
		if s.vectorTable != nil {
			if pc, ok := s.vectorTable[action.Vector]; ok {
				cpu.PC = uint64(pc)
			}
		}
		return s.Resume(v, cpu)
	default:
		return errExit(v, "unknown exit action kind")
	}
}
