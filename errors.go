package nucleus

import (
	"fmt"
	"os"
	"strconv"
)

// Kind is the closed set of nucleus error kinds.
type Kind uint8

const (
	KindVMNotFound Kind = iota
	KindInvalidVMState
	KindMemoryError
	KindCapabilityError
	KindExitError
	KindHVFError
)

func (k Kind) String() string {
	switch k {
	case KindVMNotFound:
		return "VMNotFound"
	case KindInvalidVMState:
		return "InvalidVMState"
	case KindMemoryError:
		return "MemoryError"
	case KindCapabilityError:
		return "CapabilityError"
	case KindExitError:
		return "ExitError"
	case KindHVFError:
		return "HVFError"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Error is the single error type every fallible nucleus operation returns.
// It carries exactly one Kind, the VMID it concerns (if any), and an
// optional message or wrapped cause.
type Error struct {
	Kind    Kind
	VMID    VMID
	HasVMID bool
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) detailedError() string {
	var s string
	switch {
	case e.HasVMID && e.Message != "":
		s = fmt.Sprintf("nucleus: %s: %s (%s)", e.Kind, e.VMID, e.Message)
	case e.HasVMID:
		s = fmt.Sprintf("nucleus: %s: %s", e.Kind, e.VMID)
	case e.Message != "":
		s = fmt.Sprintf("nucleus: %s: %s", e.Kind, e.Message)
	default:
		s = fmt.Sprintf("nucleus: %s", e.Kind)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// sanitizedError drops VM identifiers and causes, keeping only the kind,
// for deployments that don't want internal detail in error text.
func (e *Error) sanitizedError() string {
	return fmt.Sprintf("nucleus: %s", e.Kind)
}

func errVMNotFound(v VMID) *Error {
	return &Error{Kind: KindVMNotFound, VMID: v, HasVMID: true}
}

func errInvalidVMState(v VMID) *Error {
	return &Error{Kind: KindInvalidVMState, VMID: v, HasVMID: true}
}

func errCapability(v VMID, c Capability) *Error {
	return &Error{Kind: KindCapabilityError, VMID: v, HasVMID: true, Message: fmt.Sprintf("lacks required capability %s", c)}
}

func errMemory(v VMID, msg string) *Error {
	return &Error{Kind: KindMemoryError, VMID: v, HasVMID: true, Message: msg}
}

func errExit(v VMID, msg string) *Error {
	return &Error{Kind: KindExitError, VMID: v, HasVMID: true, Message: msg}
}

func errHVF(v VMID, cause error) *Error {
	return &Error{Kind: KindHVFError, VMID: v, HasVMID: true, Cause: cause}
}

// isProductionEnv mirrors the oracle package's debug/production toggle so
// that the nucleus's own error detail can be suppressed the same way.
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
