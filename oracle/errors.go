package oracle

import (
	"fmt"
	"os"
	"strconv"
)

// Hypervisor.framework hv_return_t constants for ARM64.
const (
	hvSuccess            uint32 = 0x00000000
	hvError              uint32 = 0xFAE94001
	hvBusy               uint32 = 0xFAE94002
	hvBadArgument        uint32 = 0xFAE94003
	hvIllegalGuestState  uint32 = 0xFAE94004
	hvNoResources        uint32 = 0xFAE94005
	hvNoDevice           uint32 = 0xFAE94006
	hvDenied             uint32 = 0xFAE94007
	hvExists             uint32 = 0xFAE94008
	hvUnsupported        uint32 = 0xFAE9400F
)

// HVFError wraps a raw hv_return_t code returned by Apple's
// Hypervisor.framework. It is distinct from the nucleus's own Error kind:
// an oracle implementation returns HVFError from its methods, and the
// nucleus wraps it as the cause of a KindHVFError nucleus.Error.
type HVFError struct {
	Code    uint32
	message string
}

func (e HVFError) Error() string {
	if e.message != "" {
		return e.message
	}
	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

func (e HVFError) detailedError() string {
	switch e.Code {
	case hvSuccess:
		return "oracle: success"
	case hvError:
		return "oracle: general error (HV_ERROR) - check system requirements and API usage"
	case hvBusy:
		return "oracle: resource busy (HV_BUSY) - another operation is in progress"
	case hvBadArgument:
		return "oracle: invalid argument (HV_BAD_ARGUMENT) - check parameter values and alignment"
	case hvIllegalGuestState:
		return "oracle: illegal guest state (HV_ILLEGAL_GUEST_STATE)"
	case hvNoResources:
		return "oracle: insufficient resources (HV_NO_RESOURCES)"
	case hvNoDevice:
		return "oracle: device not found (HV_NO_DEVICE) - hardware virtualization unavailable"
	case hvDenied:
		return "oracle: access denied (HV_DENIED) - missing entitlement 'com.apple.security.hypervisor'"
	case hvExists:
		return "oracle: resource exists (HV_EXISTS) - context or vCPU already created"
	case hvUnsupported:
		return "oracle: operation unsupported (HV_UNSUPPORTED)"
	default:
		return fmt.Sprintf("oracle: unknown error code 0x%08x", e.Code)
	}
}

func (e HVFError) sanitizedError() string {
	switch e.Code {
	case hvSuccess:
		return "oracle: success"
	case hvBusy:
		return "oracle: resource busy"
	case hvBadArgument:
		return "oracle: invalid argument"
	default:
		return "oracle: hypervisor error"
	}
}

// ErrUnsupported is returned by every method of the stub oracle, used on
// platforms without a Hypervisor.framework binding.
var ErrUnsupported = HVFError{Code: hvUnsupported, message: "oracle: not supported on this platform"}

// ErrAlreadyActive is returned by CreateContext when a context already
// exists: the framework allows exactly one VM per process.
var ErrAlreadyActive = HVFError{Code: hvBusy, message: "oracle: a context is already active in this process"}

func isProductionEnv() bool {
	env := os.Getenv("NUCLEUS_ENV")
	if env == "production" || env == "prod" {
		return true
	}
	if debug := os.Getenv("NUCLEUS_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && !val {
			return true
		}
	}
	return false
}
