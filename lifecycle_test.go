package nucleus

import (
	"errors"
	"testing"
)

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not *nucleus.Error", err)
	}
	return e.Kind
}

func TestCreateGrantsAllCapabilities(t *testing.T) {
	s := NewSystemState()
	v := s.Create()

	for _, c := range AllCapabilities {
		if !s.Check(v, c) {
			t.Errorf("Create did not grant %s", c)
		}
	}
	st, err := s.GetState(v)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.Lifecycle != Created {
		t.Errorf("new VM lifecycle = %s, want Created", st.Lifecycle)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	s := NewSystemState()
	v := s.Create()

	if err := s.Initialize(v, CPUState{PC: 0x1000}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	st, _ := s.GetState(v)
	if st.Lifecycle != Runnable {
		t.Fatalf("after Initialize lifecycle = %s, want Runnable", st.Lifecycle)
	}

	if err := s.Trap(v, ExitReason{Kind: ExitWFI}, st.CPU); err != nil {
		t.Fatalf("Trap: %v", err)
	}
	st, _ = s.GetState(v)
	if st.Lifecycle != Trapped {
		t.Fatalf("after Trap lifecycle = %s, want Trapped", st.Lifecycle)
	}

	if err := s.Resume(v, CPUState{PC: 0x1004}); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	st, _ = s.GetState(v)
	if st.Lifecycle != Runnable {
		t.Fatalf("after Resume lifecycle = %s, want Runnable", st.Lifecycle)
	}

	if err := s.HaltVM(v); err != nil {
		t.Fatalf("HaltVM: %v", err)
	}
	st, _ = s.GetState(v)
	if st.Lifecycle != Halted {
		t.Fatalf("after HaltVM lifecycle = %s, want Halted", st.Lifecycle)
	}
}

func TestInitializeRejectsWrongState(t *testing.T) {
	s := NewSystemState()
	v := s.Create()
	if err := s.Initialize(v, CPUState{}); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	err := s.Initialize(v, CPUState{})
	if kindOf(t, err) != KindInvalidVMState {
		t.Errorf("second Initialize kind = %v, want InvalidVMState", err)
	}
}

func TestResumeRejectsNonTrapped(t *testing.T) {
	s := NewSystemState()
	v := s.Create()
	err := s.Resume(v, CPUState{})
	if kindOf(t, err) != KindInvalidVMState {
		t.Errorf("Resume on Created kind = %v, want InvalidVMState", err)
	}
}

func TestHaltOnAlreadyHaltedFails(t *testing.T) {
	s := NewSystemState()
	v := s.Create()
	if err := s.HaltVM(v); err != nil {
		t.Fatalf("first HaltVM: %v", err)
	}
	err := s.HaltVM(v)
	if kindOf(t, err) != KindInvalidVMState {
		t.Errorf("second HaltVM kind = %v, want InvalidVMState", err)
	}
}

func TestHaltRequiresCapHalt(t *testing.T) {
	s := NewSystemState()
	v := s.Create()
	if err := s.Revoke(v, CapHalt); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	err := s.HaltVM(v)
	if kindOf(t, err) != KindCapabilityError {
		t.Errorf("HaltVM without CapHalt kind = %v, want CapabilityError", err)
	}
}

func TestDestroyFromAnyState(t *testing.T) {
	s := NewSystemState()
	v := s.Create()
	if err := s.Destroy(v); err != nil {
		t.Fatalf("Destroy from Created: %v", err)
	}
	if s.exists(v) {
		t.Error("VM still exists after Destroy")
	}
	if _, err := s.GetAll(v); kindOf(t, err) != KindVMNotFound {
		t.Errorf("GetAll after Destroy kind = %v, want VMNotFound", err)
	}
}

func TestDestroyDropsPendingExits(t *testing.T) {
	s := NewSystemState()
	v := s.Create()
	if err := s.Initialize(v, CPUState{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := s.Trap(v, ExitReason{Kind: ExitWFI}, CPUState{}); err != nil {
		t.Fatalf("Trap: %v", err)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("QueueLen before Destroy = %d, want 1", s.QueueLen())
	}
	if err := s.Destroy(v); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen after Destroy = %d, want 0", s.QueueLen())
	}
}

func TestOperationsOnUnknownVMFail(t *testing.T) {
	s := NewSystemState()
	unknown := VMID(999)

	if err := s.Initialize(unknown, CPUState{}); kindOf(t, err) != KindVMNotFound {
		t.Errorf("Initialize on unknown kind = %v, want VMNotFound", err)
	}
	if err := s.Resume(unknown, CPUState{}); kindOf(t, err) != KindVMNotFound {
		t.Errorf("Resume on unknown kind = %v, want VMNotFound", err)
	}
	if err := s.HaltVM(unknown); kindOf(t, err) != KindVMNotFound {
		t.Errorf("HaltVM on unknown kind = %v, want VMNotFound", err)
	}
	if err := s.Destroy(unknown); kindOf(t, err) != KindVMNotFound {
		t.Errorf("Destroy on unknown kind = %v, want VMNotFound", err)
	}
	if _, err := s.GetState(unknown); kindOf(t, err) != KindVMNotFound {
		t.Errorf("GetState on unknown kind = %v, want VMNotFound", err)
	}
}
