//go:build darwin && arm64

package oracle

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_types.h>
*/
import "C"

import (
	"fmt"

	nucleus "github.com/blacktop/go-nucleus"
)

// gprToHV maps a CPUState.GPR index (0-30, X0-X30) to the framework's
// hv_reg_t constant. Index 29 is the frame pointer (X29), 30 the link
// register (X30); the nucleus assigns them no special meaning but the
// framework still names them FP/LR.
func gprToHV(i int) C.hv_reg_t {
	switch i {
	case 0:
		return C.HV_REG_X0
	case 1:
		return C.HV_REG_X1
	case 2:
		return C.HV_REG_X2
	case 3:
		return C.HV_REG_X3
	case 4:
		return C.HV_REG_X4
	case 5:
		return C.HV_REG_X5
	case 6:
		return C.HV_REG_X6
	case 7:
		return C.HV_REG_X7
	case 8:
		return C.HV_REG_X8
	case 9:
		return C.HV_REG_X9
	case 10:
		return C.HV_REG_X10
	case 11:
		return C.HV_REG_X11
	case 12:
		return C.HV_REG_X12
	case 13:
		return C.HV_REG_X13
	case 14:
		return C.HV_REG_X14
	case 15:
		return C.HV_REG_X15
	case 16:
		return C.HV_REG_X16
	case 17:
		return C.HV_REG_X17
	case 18:
		return C.HV_REG_X18
	case 19:
		return C.HV_REG_X19
	case 20:
		return C.HV_REG_X20
	case 21:
		return C.HV_REG_X21
	case 22:
		return C.HV_REG_X22
	case 23:
		return C.HV_REG_X23
	case 24:
		return C.HV_REG_X24
	case 25:
		return C.HV_REG_X25
	case 26:
		return C.HV_REG_X26
	case 27:
		return C.HV_REG_X27
	case 28:
		return C.HV_REG_X28
	case 29:
		return C.HV_REG_FP
	case 30:
		return C.HV_REG_LR
	default:
		return C.HV_REG_X0
	}
}

// SetCPUState writes every general-purpose register, SP, PC, and CPSR to
// the named vCPU.
func (o *HVFOracle) SetCPUState(h nucleus.VCPUHandle, cpu nucleus.CPUState) error {
	id, ok := o.vcpuID(h)
	if !ok {
		return ErrUnsupported
	}

	for i, v := range cpu.GPR {
		ret := C.hv_vcpu_set_reg(C.hv_vcpu_t(id), gprToHV(i), C.ulonglong(v))
		if err := hvErr(ret); err != nil {
			recordResourceError()
			return fmt.Errorf("failed to set X%d: %w", i, err)
		}
	}

	if ret := C.hv_vcpu_set_sys_reg(C.hv_vcpu_t(id), C.HV_SYS_REG_SP_EL0, C.ulonglong(cpu.SP)); hvErr(ret) != nil {
		recordResourceError()
		return fmt.Errorf("failed to set SP: %w", hvErr(ret))
	}
	if ret := C.hv_vcpu_set_reg(C.hv_vcpu_t(id), C.HV_REG_PC, C.ulonglong(cpu.PC)); hvErr(ret) != nil {
		recordResourceError()
		return fmt.Errorf("failed to set PC: %w", hvErr(ret))
	}
	if ret := C.hv_vcpu_set_reg(C.hv_vcpu_t(id), C.HV_REG_CPSR, C.ulonglong(cpu.Flags)); hvErr(ret) != nil {
		recordResourceError()
		return fmt.Errorf("failed to set CPSR: %w", hvErr(ret))
	}

	recordRegisterOp()
	return nil
}

// GetCPUState reads every general-purpose register, SP, PC, and CPSR from
// the named vCPU.
func (o *HVFOracle) GetCPUState(h nucleus.VCPUHandle) (nucleus.CPUState, error) {
	var cpu nucleus.CPUState

	id, ok := o.vcpuID(h)
	if !ok {
		return cpu, ErrUnsupported
	}

	for i := range cpu.GPR {
		var val C.ulonglong
		ret := C.hv_vcpu_get_reg(C.hv_vcpu_t(id), gprToHV(i), &val)
		if err := hvErr(ret); err != nil {
			recordResourceError()
			return cpu, fmt.Errorf("failed to get X%d: %w", i, err)
		}
		cpu.GPR[i] = uint64(val)
	}

	var sp, pc, cpsr C.ulonglong
	if ret := C.hv_vcpu_get_sys_reg(C.hv_vcpu_t(id), C.HV_SYS_REG_SP_EL0, &sp); hvErr(ret) != nil {
		recordResourceError()
		return cpu, fmt.Errorf("failed to get SP: %w", hvErr(ret))
	}
	if ret := C.hv_vcpu_get_reg(C.hv_vcpu_t(id), C.HV_REG_PC, &pc); hvErr(ret) != nil {
		recordResourceError()
		return cpu, fmt.Errorf("failed to get PC: %w", hvErr(ret))
	}
	if ret := C.hv_vcpu_get_reg(C.hv_vcpu_t(id), C.HV_REG_CPSR, &cpsr); hvErr(ret) != nil {
		recordResourceError()
		return cpu, fmt.Errorf("failed to get CPSR: %w", hvErr(ret))
	}
	cpu.SP = uint64(sp)
	cpu.PC = uint64(pc)
	cpu.Flags = uint64(cpsr)

	recordRegisterOp()
	return cpu, nil
}
