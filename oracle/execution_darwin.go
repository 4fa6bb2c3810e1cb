//go:build darwin && arm64

package oracle

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_types.h>

static hv_return_t go_hv_get_esr_far(hv_vcpu_t vcpu, uint64_t* esr, uint64_t* far) {
	hv_return_t r1 = hv_vcpu_get_sys_reg(vcpu, HV_SYS_REG_ESR_EL1, esr);
	hv_return_t r2 = hv_vcpu_get_sys_reg(vcpu, HV_SYS_REG_FAR_EL1, far);
	return (r1 != HV_SUCCESS) ? r1 : r2;
}
*/
import "C"

import (
	"fmt"
	"time"

	nucleus "github.com/blacktop/go-nucleus"
)

// AArch64 ESR_ELx exception class values relevant to trap classification.
// See the ARM Architecture Reference Manual, ESR_EL2 EC field encoding.
const (
	ecWFxTrap        = 0b000001
	ecMSRMRSTrap     = 0b011000
	ecHVC64          = 0b010101
	ecInstrAbortLow  = 0b100000
	ecDataAbortLow   = 0b100100
)

// Run resumes the named vCPU until its next exit, then classifies the
// exit against the vCPU's ESR_EL1/FAR_EL1 into a nucleus ExitReason.
func (o *HVFOracle) Run(h nucleus.VCPUHandle) (nucleus.ExitReason, error) {
	start := time.Now()
	defer func() { recordRun(time.Since(start)) }()

	var reason nucleus.ExitReason

	id, ok := o.vcpuID(h)
	if !ok {
		return reason, ErrUnsupported
	}

	ret := C.hv_vcpu_run(C.hv_vcpu_t(id))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return reason, fmt.Errorf("failed to run vcpu: %w", err)
	}

	var esr, far C.uint64_t
	if C.go_hv_get_esr_far(C.hv_vcpu_t(id), &esr, &far) != C.HV_SUCCESS {
		reason.Kind = nucleus.ExitCancelled
		return reason, nil
	}

	ec := (uint64(esr) >> 26) & 0x3f
	iss := uint64(esr) & 0x01ffffff

	switch ec {
	case ecHVC64:
		reason.Kind = nucleus.ExitHypercall
		reason.Nr = iss & 0xffff
	case ecDataAbortLow:
		reason.Kind = nucleus.ExitMemoryFault
		reason.GPA = nucleus.GPA(far)
		reason.Write = iss&(1<<6) != 0
	case ecInstrAbortLow:
		reason.Kind = nucleus.ExitInstructionAbort
		reason.GPA = nucleus.GPA(far)
	case ecMSRMRSTrap:
		reason.Kind = nucleus.ExitSystemRegister
		reason.Reg = uint32(iss)
	case ecWFxTrap:
		reason.Kind = nucleus.ExitWFI
	default:
		reason.Kind = nucleus.ExitException
		reason.Vector = uint32(ec)
	}

	return reason, nil
}
