//go:build darwin && arm64 && hypervisor

package oracle

import (
	"testing"

	nucleus "github.com/blacktop/go-nucleus"
)

func TestGPRToHVMapping(t *testing.T) {
	for i := 0; i < 31; i++ {
		hvReg := gprToHV(i)
		t.Logf("GPR[%d] maps to HV constant %v", i, hvReg)
	}
}

func newTestVCPU(t *testing.T) (*HVFOracle, nucleus.VCPUHandle) {
	t.Helper()
	o, ctx := newTestContext(t)

	h, err := o.CreateVCPU(ctx)
	if err != nil {
		t.Fatalf("failed to create vCPU: %v", err)
	}
	t.Cleanup(func() { o.DestroyVCPU(h) })
	return o, h
}

func TestCPUStateRoundTrip(t *testing.T) {
	o, h := newTestVCPU(t)

	var want nucleus.CPUState
	want.GPR[0] = 0x1234567890abcdef
	want.GPR[1] = 0x0
	want.GPR[2] = 0xffffffffffffffff
	want.GPR[3] = 0x5a5a5a5a5a5a5a5a
	want.PC = 0x4000
	want.SP = 0x8000

	if err := o.SetCPUState(h, want); err != nil {
		t.Fatalf("SetCPUState failed: %v", err)
	}

	got, err := o.GetCPUState(h)
	if err != nil {
		t.Fatalf("GetCPUState failed: %v", err)
	}

	for i := range want.GPR {
		if got.GPR[i] != want.GPR[i] {
			t.Errorf("GPR[%d]: got 0x%x, want 0x%x", i, got.GPR[i], want.GPR[i])
		}
	}

	// PC may be masked/aligned by the framework; compare the low 32 bits.
	if got.PC&0xFFFFFFFF != want.PC&0xFFFFFFFF {
		t.Errorf("PC round-trip: got 0x%x, want approximately 0x%x", got.PC, want.PC)
	}
	if got.SP != want.SP {
		t.Errorf("SP round-trip: got 0x%x, want 0x%x", got.SP, want.SP)
	}
}
