//go:build darwin && arm64

package oracle

/*
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_error.h>

#ifndef HV_MEMORY_READ
#define HV_MEMORY_READ (1<<0)
#endif
#ifndef HV_MEMORY_WRITE
#define HV_MEMORY_WRITE (1<<1)
#endif
#ifndef HV_MEMORY_EXEC
#define HV_MEMORY_EXEC (1<<2)
#endif

extern int hv_vm_map(void* uva, unsigned long long gpa, size_t size, int flags);
extern int hv_vm_unmap(unsigned long long gpa, size_t size);

static int go_hv_vm_map(void* addr, unsigned long long gpa, unsigned long long size, int r, int w, int x) {
	int flags = 0;
	if (r) flags |= HV_MEMORY_READ;
	if (w) flags |= HV_MEMORY_WRITE;
	if (x) flags |= HV_MEMORY_EXEC;
	return hv_vm_map(addr, gpa, (size_t)size, flags);
}

static int go_hv_vm_unmap(unsigned long long gpa, unsigned long long size) {
	return hv_vm_unmap(gpa, (size_t)size);
}
*/
import "C"

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	nucleus "github.com/blacktop/go-nucleus"
)

var (
	cachedPageSize int
	cachedPageMask uint64
	pageSizeOnce   sync.Once
)

func pageSize() int {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return cachedPageSize
}

func isPageAligned(addr uint64) bool {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return addr&cachedPageMask == 0
}

// MapBacking maps a host memory slice into the guest-physical address
// space of the process's one active context. host, its length, and guest
// must all be page-aligned.
func (o *HVFOracle) MapBacking(ctx nucleus.ContextHandle, host []byte, guest nucleus.GPA, perm nucleus.Protection) error {
	o.mu.Lock()
	active, activeCtx := o.active, o.ctx
	o.mu.Unlock()
	if !active || ctx != activeCtx {
		return ErrUnsupported
	}

	if len(host) == 0 {
		return fmt.Errorf("oracle: map requires non-empty host buffer")
	}
	if len(host) > math.MaxInt32 {
		return fmt.Errorf("oracle: host buffer too large (max %d bytes)", math.MaxInt32)
	}
	if uint64(guest) > math.MaxUint64-uint64(len(host)) {
		return fmt.Errorf("oracle: guest address range would overflow")
	}
	if perm == 0 {
		return fmt.Errorf("oracle: map requires at least one permission bit")
	}
	validPerms := nucleus.ProtRead | nucleus.ProtWrite | nucleus.ProtExec
	if perm&^validPerms != 0 {
		return fmt.Errorf("oracle: invalid permission bits 0x%x (valid: 0x%x)", perm, validPerms)
	}
	if !isPageAligned(uint64(guest)) {
		return fmt.Errorf("oracle: guest address not page-aligned: 0x%x (page size: %d)", guest, pageSize())
	}
	if !isPageAligned(uint64(len(host))) {
		return fmt.Errorf("oracle: host length not page multiple: %d (page size: %d)", len(host), pageSize())
	}

	runtime.KeepAlive(host)
	defer runtime.KeepAlive(host)

	ptr := unsafe.Pointer(&host[0])
	if !isPageAligned(uint64(uintptr(ptr))) {
		return fmt.Errorf("oracle: host base not page-aligned: %p (page size: %d)", ptr, pageSize())
	}

	read, write, exec := 0, 0, 0
	if perm&nucleus.ProtRead != 0 {
		read = 1
	}
	if perm&nucleus.ProtWrite != 0 {
		write = 1
	}
	if perm&nucleus.ProtExec != 0 {
		exec = 1
	}

	ret := C.go_hv_vm_map(ptr, C.ulonglong(guest), C.ulonglong(uint64(len(host))), C.int(read), C.int(write), C.int(exec))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to map %d bytes at 0x%x with perms %s: %w", len(host), guest, perm, err)
	}

	recordMapOperation()
	return nil
}

// UnmapBacking removes a region from the guest-physical address space.
func (o *HVFOracle) UnmapBacking(ctx nucleus.ContextHandle, guest nucleus.GPA, length uint64) error {
	o.mu.Lock()
	active, activeCtx := o.active, o.ctx
	o.mu.Unlock()
	if !active || ctx != activeCtx {
		return ErrUnsupported
	}

	if length == 0 {
		return fmt.Errorf("oracle: unmap requires non-zero length")
	}
	if length > math.MaxInt32 {
		return fmt.Errorf("oracle: unmap length too large (max %d bytes)", math.MaxInt32)
	}
	if uint64(guest) > math.MaxUint64-length {
		return fmt.Errorf("oracle: guest address range would overflow")
	}
	if !isPageAligned(uint64(guest)) {
		return fmt.Errorf("oracle: guest address not page-aligned: 0x%x (page size: %d)", guest, pageSize())
	}
	if !isPageAligned(length) {
		return fmt.Errorf("oracle: length not page multiple: %d (page size: %d)", length, pageSize())
	}

	ret := C.go_hv_vm_unmap(C.ulonglong(guest), C.ulonglong(length))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to unmap region 0x%x+%d: %w", guest, length, err)
	}

	recordUnmapOperation()
	return nil
}
