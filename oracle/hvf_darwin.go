//go:build darwin && arm64

package oracle

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_error.h>
#include <Hypervisor/hv_vm.h>
#include <Hypervisor/hv_vm_config.h>
#include <Hypervisor/hv_base.h>
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_config.h>
#include <os/object.h>
#if __has_include(<Hypervisor/arm64/hv_arch_vcpu.h>)
#include <Hypervisor/arm64/hv_arch_vcpu.h>
#endif
#if __has_include(<Hypervisor/arm64/hv_arch_vtimer.h>)
#include <Hypervisor/arm64/hv_arch_vtimer.h>
#endif

// go_hv_vm_create_with_cfg creates the process's one VM with the default
// IPA size, falling back to hv_vm_create(NULL) on older macOS releases
// that predate hv_vm_config_t.
static hv_return_t go_hv_vm_create_with_cfg() {
#if __has_include(<Hypervisor/hv_vm_config.h>)
	hv_vm_config_t config = hv_vm_config_create();
	if (!config) {
		return HV_ERROR;
	}

	uint32_t default_ipa_size = 0;
	hv_return_t ret = hv_vm_config_get_default_ipa_size(&default_ipa_size);
	if (ret == HV_SUCCESS) {
		ret = hv_vm_config_set_ipa_size(config, default_ipa_size);
		if (ret != HV_SUCCESS) {
			os_release(config);
			return ret;
		}
	}

	ret = hv_vm_create(config);
	os_release(config);
	return ret;
#else
	return hv_vm_create(NULL);
#endif
}

static hv_return_t go_hv_vcpu_create(hv_vcpu_t *vcpu, hv_vcpu_exit_t **exit) {
	return hv_vcpu_create(vcpu, exit, NULL);
}
*/
import "C"

import (
	"sync"
	"time"

	nucleus "github.com/blacktop/go-nucleus"
)

// HVFOracle binds the nucleus's Oracle contract to Apple's
// Hypervisor.framework. The framework allows exactly one VM per process,
// so at most one context may be active at a time; CreateContext on an
// already-active HVFOracle reports ErrAlreadyActive.
type HVFOracle struct {
	mu      sync.Mutex
	active  bool
	ctx     nucleus.ContextHandle
	nextCtx uint64

	vcpus    map[nucleus.VCPUHandle]uint64 // handle -> hv_vcpu_t
	nextVCPU uint64
}

// NewHVFOracle returns an oracle with no active context.
func NewHVFOracle() *HVFOracle {
	return &HVFOracle{vcpus: make(map[nucleus.VCPUHandle]uint64)}
}

var _ nucleus.Oracle = (*HVFOracle)(nil)

func (o *HVFOracle) CreateContext(nucleus.VMID) (nucleus.ContextHandle, error) {
	start := time.Now()
	defer func() { recordContextCreate(time.Since(start)) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active {
		recordResourceError()
		return 0, ErrAlreadyActive
	}

	ret := C.go_hv_vm_create_with_cfg()
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return 0, err
	}

	o.active = true
	o.nextCtx++
	o.ctx = nucleus.ContextHandle(o.nextCtx)
	return o.ctx, nil
}

func (o *HVFOracle) DestroyContext(ctx nucleus.ContextHandle) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active || ctx != o.ctx {
		return ErrUnsupported
	}

	ret := C.hv_vm_destroy()
	if err := hvErr(ret); err != nil {
		return err
	}

	o.active = false
	o.ctx = 0
	recordContextDestroy()
	return nil
}

func (o *HVFOracle) CreateVCPU(ctx nucleus.ContextHandle) (nucleus.VCPUHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active || ctx != o.ctx {
		return 0, ErrUnsupported
	}

	var vcpu C.hv_vcpu_t
	var exit *C.hv_vcpu_exit_t
	ret := C.go_hv_vcpu_create(&vcpu, &exit)
	if err := hvErr(ret); err != nil {
		return 0, err
	}

	o.nextVCPU++
	h := nucleus.VCPUHandle(o.nextVCPU)
	o.vcpus[h] = uint64(vcpu)
	recordVCPUCreate()
	return h, nil
}

func (o *HVFOracle) DestroyVCPU(h nucleus.VCPUHandle) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	id, ok := o.vcpus[h]
	if !ok {
		return ErrUnsupported
	}

	ret := C.hv_vcpu_destroy(C.hv_vcpu_t(id))
	if err := hvErr(ret); err != nil {
		return err
	}

	delete(o.vcpus, h)
	recordVCPUDestroy()
	return nil
}

// vcpuID resolves a handle to its raw hv_vcpu_t, holding the oracle's lock
// only long enough to read the map.
func (o *HVFOracle) vcpuID(h nucleus.VCPUHandle) (uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.vcpus[h]
	return id, ok
}

func hvErr(code C.hv_return_t) error {
	if code == 0 {
		return nil
	}
	return HVFError{Code: uint32(code)}
}
