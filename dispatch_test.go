package nucleus

import "testing"

func runnableVM(t *testing.T, s *SystemState) VMID {
	t.Helper()
	v := s.Create()
	if err := s.Initialize(v, CPUState{PC: 0x4000}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return v
}

func TestDispatchExitIsTotal(t *testing.T) {
	kinds := []ExitKind{
		ExitHypercall, ExitMemoryFault, ExitInstructionAbort,
		ExitSystemRegister, ExitWFI, ExitException, ExitCancelled,
	}
	for _, k := range kinds {
		action := dispatchExit(ExitReason{Kind: k}, CPUState{PC: 0x100})
		switch action.Kind {
		case ActionResume, ActionHalt, ActionInjectException:
		default:
			t.Errorf("dispatchExit(%s) produced unrecognized action kind %v", k, action.Kind)
		}
	}
}

func TestDispatchExitIsDeterministic(t *testing.T) {
	reason := ExitReason{Kind: ExitMemoryFault, GPA: 0x8000, Write: true}
	cpu := CPUState{PC: 0x200, SP: 0x300}
	a1 := dispatchExit(reason, cpu)
	a2 := dispatchExit(reason, cpu)
	if a1 != a2 {
		t.Errorf("dispatchExit is not deterministic: %+v != %+v", a1, a2)
	}
}

func TestHypercallHaltStopsAtSameInstruction(t *testing.T) {
	cpu := CPUState{PC: 0x4000}
	action := dispatchExit(ExitReason{Kind: ExitHypercall, Nr: 1}, cpu)
	if action.Kind != ActionHalt {
		t.Fatalf("hypercall 1 action = %s, want Halt", action.Kind)
	}
}

func TestHypercallZeroResumesPastCall(t *testing.T) {
	cpu := CPUState{PC: 0x4000}
	action := dispatchExit(ExitReason{Kind: ExitHypercall, Nr: 0}, cpu)
	if action.Kind != ActionResume {
		t.Fatalf("hypercall 0 action = %s, want Resume", action.Kind)
	}
	if action.CPU.PC != 0x4004 {
		t.Errorf("hypercall 0 resume PC = %#x, want %#x", action.CPU.PC, 0x4004)
	}
}

func TestWFIResumesPastInstruction(t *testing.T) {
	cpu := CPUState{PC: 0x8000}
	action := dispatchExit(ExitReason{Kind: ExitWFI}, cpu)
	if action.Kind != ActionResume || action.CPU.PC != 0x8004 {
		t.Errorf("WFI action = %+v, want Resume at %#x", action, 0x8004)
	}
}

func TestMemoryFaultInjectsVector1(t *testing.T) {
	action := dispatchExit(ExitReason{Kind: ExitMemoryFault, GPA: 0x9000}, CPUState{PC: 0x10})
	if action.Kind != ActionInjectException || action.Vector != 1 {
		t.Errorf("memory fault action = %+v, want InjectException vector 1", action)
	}
}

func TestExceptionReinjectsOwnVector(t *testing.T) {
	action := dispatchExit(ExitReason{Kind: ExitException, Vector: 7}, CPUState{PC: 0x10})
	if action.Kind != ActionInjectException || action.Vector != 7 {
		t.Errorf("exception action = %+v, want InjectException vector 7", action)
	}
}

func TestTrapRequiresRunnable(t *testing.T) {
	s := NewSystemState()
	v := s.Create()
	err := s.Trap(v, ExitReason{Kind: ExitWFI}, CPUState{})
	if kindOf(t, err) != KindInvalidVMState {
		t.Errorf("Trap on Created VM kind = %v, want InvalidVMState", err)
	}
}

func TestTrapIgnoresCapHandleExit(t *testing.T) {
	s := NewSystemState()
	v := runnableVM(t, s)
	if err := s.Revoke(v, CapHandleExit); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := s.Trap(v, ExitReason{Kind: ExitWFI}, CPUState{}); err != nil {
		t.Errorf("Trap without CapHandleExit failed: %v, want success — trap reports a fact, it is not access-controlled", err)
	}
}

func TestPumpOnEmptyQueueFails(t *testing.T) {
	s := NewSystemState()
	_, _, err := s.Pump()
	if kindOf(t, err) != KindExitError {
		t.Errorf("Pump on empty queue kind = %v, want ExitError", err)
	}
}

func TestPumpIsFIFO(t *testing.T) {
	s := NewSystemState()
	a := runnableVM(t, s)
	b := runnableVM(t, s)

	if err := s.Trap(a, ExitReason{Kind: ExitWFI}, CPUState{}); err != nil {
		t.Fatalf("Trap a: %v", err)
	}
	if err := s.Trap(b, ExitReason{Kind: ExitWFI}, CPUState{}); err != nil {
		t.Fatalf("Trap b: %v", err)
	}

	first, _, err := s.Pump()
	if err != nil {
		t.Fatalf("first Pump: %v", err)
	}
	if first != a {
		t.Errorf("first Pump returned %s, want %s", first, a)
	}

	second, _, err := s.Pump()
	if err != nil {
		t.Fatalf("second Pump: %v", err)
	}
	if second != b {
		t.Errorf("second Pump returned %s, want %s", second, b)
	}
}

func TestApplyHaltRequiresCapHalt(t *testing.T) {
	s := NewSystemState()
	v := runnableVM(t, s)
	if err := s.Trap(v, ExitReason{Kind: ExitHypercall, Nr: 1}, CPUState{PC: 0x10}); err != nil {
		t.Fatalf("Trap: %v", err)
	}
	if err := s.Revoke(v, CapHalt); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, action, err := s.Pump()
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if action.Kind != ActionHalt {
		t.Fatalf("action = %s, want Halt (dispatch must not branch on capability)", action.Kind)
	}
	if kindOf(t, s.Apply(v, action)) != KindCapabilityError {
		t.Error("Apply(Halt) without CapHalt did not report CapabilityError")
	}
	st, _ := s.GetState(v)
	if st.Lifecycle != Trapped {
		t.Errorf("VM state after rejected halt = %s, want still Trapped", st.Lifecycle)
	}
}

func TestApplyResumeReturnsToRunnable(t *testing.T) {
	s := NewSystemState()
	v := runnableVM(t, s)
	if err := s.Trap(v, ExitReason{Kind: ExitWFI}, CPUState{PC: 0x10}); err != nil {
		t.Fatalf("Trap: %v", err)
	}
	_, action, err := s.Pump()
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if err := s.Apply(v, action); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	st, _ := s.GetState(v)
	if st.Lifecycle != Runnable {
		t.Errorf("lifecycle after Apply(Resume) = %s, want Runnable", st.Lifecycle)
	}
	if st.CPU.PC != 0x14 {
		t.Errorf("CPU.PC after Apply(Resume) = %#x, want %#x", st.CPU.PC, 0x14)
	}
}

func TestApplyInjectExceptionUsesVectorTable(t *testing.T) {
	s := NewSystemState()
	v := runnableVM(t, s)
	s.SetVectorTable(map[uint32]GPA{1: GPA(0xfee1000)})

	if err := s.Trap(v, ExitReason{Kind: ExitMemoryFault, GPA: 0x9000}, CPUState{PC: 0x10}); err != nil {
		t.Fatalf("Trap: %v", err)
	}
	_, action, err := s.Pump()
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if err := s.Apply(v, action); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	st, _ := s.GetState(v)
	if st.CPU.PC != 0xfee1000 {
		t.Errorf("PC after vectored InjectException = %#x, want %#x", st.CPU.PC, 0xfee1000)
	}

	s.ClearVectorTable()
	if err := s.Trap(v, ExitReason{Kind: ExitMemoryFault, GPA: 0x9000}, CPUState{PC: 0x20}); err != nil {
		t.Fatalf("second Trap: %v", err)
	}
	_, action, err = s.Pump()
	if err != nil {
		t.Fatalf("second Pump: %v", err)
	}
	if err := s.Apply(v, action); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	st, _ = s.GetState(v)
	if st.CPU.PC != 0x20 {
		t.Errorf("PC after clearing vector table = %#x, want carried value %#x", st.CPU.PC, 0x20)
	}
}
