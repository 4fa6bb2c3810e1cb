//go:build darwin && arm64 && hypervisor

package oracle

import "testing"

func TestMetrics(t *testing.T) {
	if isCI() {
		t.Skip("skipping hypervisor tests in CI environment")
	}

	ResetMetrics()

	metrics := GetMetrics()
	if metrics.ContextsCreated != 0 {
		t.Errorf("expected ContextsCreated=0, got %d", metrics.ContextsCreated)
	}

	o := NewHVFOracle()
	ctx, err := o.CreateContext(1)
	if err != nil {
		t.Skipf("skipping metrics test: cannot create context: %v", err)
	}
	defer o.DestroyContext(ctx)

	metrics = GetMetrics()
	if metrics.ContextsCreated != 1 {
		t.Errorf("expected ContextsCreated=1, got %d", metrics.ContextsCreated)
	}
	if metrics.AvgContextCreateNs == 0 {
		t.Errorf("expected non-zero context create time")
	}

	h, err := o.CreateVCPU(ctx)
	if err != nil {
		t.Fatalf("failed to create vCPU: %v", err)
	}
	defer o.DestroyVCPU(h)

	metrics = GetMetrics()
	if metrics.VCPUsCreated != 1 {
		t.Errorf("expected VCPUsCreated=1, got %d", metrics.VCPUsCreated)
	}

	if _, err := o.GetCPUState(h); err != nil {
		t.Fatalf("failed to get CPU state: %v", err)
	}

	metrics = GetMetrics()
	if metrics.RegisterOps != 1 {
		t.Errorf("expected RegisterOps=1, got %d", metrics.RegisterOps)
	}

	t.Logf("final metrics: %+v", metrics)
}
