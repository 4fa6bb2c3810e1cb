package nucleus

// ContextHandle identifies one VM context inside an execution oracle. Its
// value is meaningful only to the Oracle implementation that issued it.
type ContextHandle uint64

// VCPUHandle identifies one virtual CPU inside an execution oracle.
type VCPUHandle uint64

// SystemInfo reports what hardware-virtualization support the execution
// oracle found on the host.
type SystemInfo struct {
	Available    bool
	EL2Supported bool
	MaxVCPUs     uint32
}

// Oracle is the execution facility the nucleus delegates guest-instruction
// execution to (spec's "execution oracle"). The nucleus defines this
// contract but never implements it: the darwin/arm64 binding to Apple's
// Hypervisor.framework lives in the sibling oracle package, selected by
// build tag, and any other collaborator satisfying this interface works
// just as well.
//
// All calls are synchronous; Run is the one call expected to take
// meaningful wall-clock time (it drives the guest until the next trap).
// The interface carries no context.Context: the nucleus has no timeout or
// cancellation policy of its own (see the Cancelled exit reason, which is
// how a guest run is ended from outside), and bounding Run's duration is
// the oracle implementation's concern, not a parameter every caller must
// thread through.
type Oracle interface {
	CreateContext(vmid VMID) (ContextHandle, error)
	DestroyContext(ContextHandle) error

	MapBacking(ctx ContextHandle, host []byte, guest GPA, perm Protection) error
	UnmapBacking(ctx ContextHandle, guest GPA, length uint64) error

	CreateVCPU(ctx ContextHandle) (VCPUHandle, error)
	DestroyVCPU(VCPUHandle) error

	SetCPUState(VCPUHandle, CPUState) error
	GetCPUState(VCPUHandle) (CPUState, error)

	Run(VCPUHandle) (ExitReason, error)

	SystemInfo() (SystemInfo, error)
}
