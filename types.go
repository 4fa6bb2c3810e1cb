package nucleus

import "fmt"

// VMID is an opaque, monotonically-allocated handle to a VM. It is never
// reused within the lifetime of a single SystemState.
type VMID uint32

func (v VMID) String() string { return fmt.Sprintf("vm%d", uint32(v)) }

// GPA is a guest-physical address.
type GPA uint64

// CPUState is the architectural state observable to the nucleus. It is
// pure data: its only behavior is clone-and-mutate via normal Go value
// semantics (assigning a CPUState copies it).
type CPUState struct {
	// GPR holds the 31 general-purpose registers, X0-X30. By AArch64
	// convention X29 is the frame pointer and X30 the link register, but
	// the nucleus assigns them no special meaning.
	GPR [31]uint64
	PC  uint64
	SP  uint64
	// Flags holds the processor-state flags (PSTATE/CPSR-equivalent).
	Flags uint64
}

// Capability is a permission atom gating a class of operations on a VM.
type Capability uint8

const (
	CapExecute Capability = iota
	CapMapMemory
	CapHandleExit
	CapHalt
)

func (c Capability) String() string {
	switch c {
	case CapExecute:
		return "Execute"
	case CapMapMemory:
		return "MapMemory"
	case CapHandleExit:
		return "HandleExit"
	case CapHalt:
		return "Halt"
	default:
		return fmt.Sprintf("Capability(%d)", uint8(c))
	}
}

// AllCapabilities is the default capability set granted on VM creation.
var AllCapabilities = [...]Capability{CapExecute, CapMapMemory, CapHandleExit, CapHalt}

// VMLifecycle is the tag of a VMState value.
type VMLifecycle uint8

const (
	// Created: the VM exists but has no CPU state.
	Created VMLifecycle = iota
	// Runnable: the VM may be dispatched to the execution oracle.
	Runnable
	// Trapped: the VM has exited and awaits a dispatcher decision.
	Trapped
	// Halted: terminal. The VM may be destroyed but no further transition
	// is possible.
	Halted
)

func (s VMLifecycle) String() string {
	switch s {
	case Created:
		return "Created"
	case Runnable:
		return "Runnable"
	case Trapped:
		return "Trapped"
	case Halted:
		return "Halted"
	default:
		return fmt.Sprintf("VMLifecycle(%d)", uint8(s))
	}
}

// VMState is the tagged variant describing a VM's current lifecycle
// position. CPU is meaningful for Runnable and Trapped; ExitReason is
// meaningful only for Trapped. Zero value is Created.
type VMState struct {
	Lifecycle  VMLifecycle
	CPU        CPUState
	ExitReason ExitReason
}

// ExitKind is the tag of an ExitReason value.
type ExitKind uint8

const (
	ExitHypercall ExitKind = iota
	ExitMemoryFault
	ExitInstructionAbort
	ExitSystemRegister
	ExitWFI
	ExitException
	ExitCancelled
)

func (k ExitKind) String() string {
	switch k {
	case ExitHypercall:
		return "Hypercall"
	case ExitMemoryFault:
		return "MemoryFault"
	case ExitInstructionAbort:
		return "InstructionAbort"
	case ExitSystemRegister:
		return "SystemRegister"
	case ExitWFI:
		return "WFI"
	case ExitException:
		return "Exception"
	case ExitCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("ExitKind(%d)", uint8(k))
	}
}

// ExitReason enumerates the finite set of trap causes the execution oracle
// may report. Only the fields relevant to Kind are meaningful; it is a
// comparable value so that determinism (spec property 2) can be asserted
// with ==.
type ExitReason struct {
	Kind ExitKind

	// Hypercall
	Nr   uint64
	Args [6]uint64

	// MemoryFault, InstructionAbort
	GPA   GPA
	Write bool

	// SystemRegister
	Reg uint32

	// Exception
	Vector uint32
}

// Protection is a bitmask of guest memory access permissions.
type Protection uint8

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExec
)

func (p Protection) String() string {
	s := ""
	if p&ProtRead != 0 {
		s += "r"
	} else {
		s += "-"
	}
	if p&ProtWrite != 0 {
		s += "w"
	} else {
		s += "-"
	}
	if p&ProtExec != 0 {
		s += "x"
	} else {
		s += "-"
	}
	return s
}

// MemoryRegion records one mapping of guest-physical address space to host
// backing for a single VM. Regions are owned by exactly one VM.
type MemoryRegion struct {
	VMID        VMID
	GuestBase   GPA
	Length      uint64
	HostBacking uint64
	Protection  Protection
}

func (r MemoryRegion) guestEnd() GPA   { return r.GuestBase + GPA(r.Length) }
func (r MemoryRegion) backingEnd() uint64 { return r.HostBacking + r.Length }

func (r MemoryRegion) overlapsGuest(other MemoryRegion) bool {
	return r.GuestBase < other.guestEnd() && other.GuestBase < r.guestEnd()
}

func (r MemoryRegion) overlapsBacking(other MemoryRegion) bool {
	return r.HostBacking < other.backingEnd() && other.HostBacking < r.backingEnd()
}

// ExitActionKind is the tag of an ExitAction value.
type ExitActionKind uint8

const (
	ActionResume ExitActionKind = iota
	ActionHalt
	ActionInjectException
)

func (k ExitActionKind) String() string {
	switch k {
	case ActionResume:
		return "Resume"
	case ActionHalt:
		return "Halt"
	case ActionInjectException:
		return "InjectException"
	default:
		return fmt.Sprintf("ExitActionKind(%d)", uint8(k))
	}
}

// ExitAction is the dispatcher's decision for a trapped VM. CPU is
// meaningful for Resume and InjectException; Vector only for
// InjectException.
type ExitAction struct {
	Kind   ExitActionKind
	CPU    CPUState
	Vector uint32
}
