//go:build darwin && arm64

package oracle

import "golang.org/x/sys/unix"

// Supported reports whether Apple's Hypervisor.framework is available and
// accessible on this host.
func Supported() (bool, error) {
	supported, err := unix.SysctlUint32("kern.hv_support")
	if err != nil {
		return false, err
	}
	return supported != 0, nil
}
