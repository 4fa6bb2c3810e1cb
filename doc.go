// Package nucleus implements a minimal, verifiable isolation core for a
// micro-hypervisor: VM lifecycle management, per-VM capability gating,
// guest-physical memory partitioning, and deterministic exit dispatch.
//
// The nucleus does not itself run guest instructions. It delegates that to
// an execution oracle (see the oracle subpackage, which binds to Apple's
// Hypervisor.framework on Darwin/ARM64) and concerns itself only with the
// bookkeeping, access control, and exit-handling that make guest execution
// safe and predictable.
//
// # Basic Usage
//
// Create an engine bound to an oracle and drive a VM through its lifecycle:
//
//	eng := nucleus.NewEngine(myOracle)
//
//	vmid, err := eng.Create()
//	if err != nil {
//		log.Fatal("failed to create VM:", err)
//	}
//
//	if err := eng.Initialize(vmid, nucleus.CPUState{PC: 0x4000}); err != nil {
//		log.Fatal("failed to initialize VM:", err)
//	}
//
// Map guest-physical memory, backed by a host byte slice:
//
//	err = eng.Map(vmid, 0x4000, hostBacking, nucleus.ProtRead|nucleus.ProtExec)
//	if err != nil {
//		log.Fatal("failed to map memory:", err)
//	}
//
// Drive one exit through the dispatcher:
//
//	action, err := eng.RunOnce(vmid)
//	if err != nil {
//		log.Fatal("failed to run VM:", err)
//	}
//	fmt.Printf("exit action: %+v\n", action)
//
// # Error Handling
//
// All errors are *nucleus.Error values carrying one of a closed set of
// kinds (VMNotFound, InvalidVMState, MemoryError, CapabilityError,
// ExitError, HVFError). Errors wrap their cause where one exists and
// compose with errors.Is/errors.As.
//
// # Concurrency
//
// An Engine serializes access to its SystemState internally; callers may
// share one Engine across goroutines. The nucleus itself never blocks:
// every operation completes or fails before returning control.
package nucleus
