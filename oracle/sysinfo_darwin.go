//go:build darwin && arm64

package oracle

import (
	"golang.org/x/sys/unix"

	nucleus "github.com/blacktop/go-nucleus"
)

// SystemInfo reports the host's Hypervisor.framework support. MaxVCPUs is
// approximated from the logical CPU count: the framework does not expose
// a direct vCPU ceiling query, and in practice the usable count tracks
// hw.ncpu on Apple silicon.
func (o *HVFOracle) SystemInfo() (nucleus.SystemInfo, error) {
	available, err := Supported()
	if err != nil {
		return nucleus.SystemInfo{}, err
	}

	maxVCPUs, err := unix.SysctlUint32("hw.ncpu")
	if err != nil {
		maxVCPUs = 1
	}

	return nucleus.SystemInfo{
		Available:    available,
		EL2Supported: available,
		MaxVCPUs:     maxVCPUs,
	}, nil
}
