//go:build !darwin || !arm64

package oracle

import (
	nucleus "github.com/blacktop/go-nucleus"
)

// HVFOracle is the stub execution oracle for platforms without a
// Hypervisor.framework binding. Every method reports ErrUnsupported.
type HVFOracle struct{}

// NewHVFOracle returns a stub oracle. It always succeeds; failures surface
// on first use, matching the darwin build's lazy-activation behavior.
func NewHVFOracle() *HVFOracle { return &HVFOracle{} }

var _ nucleus.Oracle = (*HVFOracle)(nil)

func (o *HVFOracle) CreateContext(nucleus.VMID) (nucleus.ContextHandle, error) {
	return 0, ErrUnsupported
}

func (o *HVFOracle) DestroyContext(nucleus.ContextHandle) error { return ErrUnsupported }

func (o *HVFOracle) MapBacking(nucleus.ContextHandle, []byte, nucleus.GPA, nucleus.Protection) error {
	return ErrUnsupported
}

func (o *HVFOracle) UnmapBacking(nucleus.ContextHandle, nucleus.GPA, uint64) error {
	return ErrUnsupported
}

func (o *HVFOracle) CreateVCPU(nucleus.ContextHandle) (nucleus.VCPUHandle, error) {
	return 0, ErrUnsupported
}

func (o *HVFOracle) DestroyVCPU(nucleus.VCPUHandle) error { return ErrUnsupported }

func (o *HVFOracle) SetCPUState(nucleus.VCPUHandle, nucleus.CPUState) error { return ErrUnsupported }

func (o *HVFOracle) GetCPUState(nucleus.VCPUHandle) (nucleus.CPUState, error) {
	return nucleus.CPUState{}, ErrUnsupported
}

func (o *HVFOracle) Run(nucleus.VCPUHandle) (nucleus.ExitReason, error) {
	return nucleus.ExitReason{}, ErrUnsupported
}

func (o *HVFOracle) SystemInfo() (nucleus.SystemInfo, error) {
	return nucleus.SystemInfo{}, ErrUnsupported
}
