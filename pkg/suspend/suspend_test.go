package suspend

import (
	"context"
	"testing"
	"time"

	"github.com/openbeamline/beamwalk/pkg/device"
)

func TestRegistry_InstallAndCheck(t *testing.T) {
	ctx := context.Background()
	energy := device.NewSimPV("GDET:FEE1:241:ENRC", 1.0)
	rate := device.NewSimPV("EVNT:SYS0:1:LCLSBEAMRATE", 120)

	reg := NewRegistry()
	if err := reg.Install(NewEnergyFloor(energy, 0.01)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := reg.Install(NewRateFloor(rate, 2)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	violated, err := reg.Check(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(violated) != 0 {
		t.Fatalf("Expected no violations, got %v", violated)
	}

	energy.Set(0.001)
	violated, err = reg.Check(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(violated) != 1 || violated[0] != "beam_energy_floor" {
		t.Errorf("Expected energy floor violation, got %v", violated)
	}
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	pv := device.NewSimPV("PV", 1)
	reg := NewRegistry()
	if err := reg.Install(NewEnergyFloor(pv, 0.5)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := reg.Install(NewEnergyFloor(pv, 0.9)); err == nil {
		t.Error("Expected duplicate install to fail")
	}
}

func TestRegistry_Remove(t *testing.T) {
	pv := device.NewSimPV("PV", 1)
	reg := NewRegistry()
	if err := reg.Install(NewRateFloor(pv, 2)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reg.Remove("beam_rate_floor") {
		t.Error("Expected Remove to find the condition")
	}
	if reg.Remove("beam_rate_floor") {
		t.Error("Expected second Remove to report absence")
	}
	if n := len(reg.Names()); n != 0 {
		t.Errorf("Expected empty registry, got %d conditions", n)
	}
}

func TestPVAlarm_SeverityThreshold(t *testing.T) {
	ctx := context.Background()
	pv := device.NewSimPV("MIRR:FEE1:M1H:STATE", 0)
	cond := NewPVAlarm(pv, device.SeverityMajor)

	ok, err := cond.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok {
		t.Error("Expected no violation with NO_ALARM")
	}

	pv.SetSeverity(device.SeverityMinor)
	if ok, _ := cond.Evaluate(ctx); !ok {
		t.Error("Expected MINOR below MAJOR threshold to be safe")
	}

	pv.SetSeverity(device.SeverityMajor)
	if ok, _ := cond.Evaluate(ctx); ok {
		t.Error("Expected MAJOR alarm to violate")
	}
}

func TestGate_NoViolationPassesThrough(t *testing.T) {
	ctx := context.Background()
	pv := device.NewSimPV("PV", 10)
	reg := NewRegistry()
	if err := reg.Install(NewEnergyFloor(pv, 1)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	gate := NewGate(reg, time.Millisecond)
	paused, waited, err := gate.WaitAtCheckpoint(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if waited || paused != 0 {
		t.Errorf("Expected immediate pass, got paused=%v waited=%v", paused, waited)
	}
}

func TestGate_PausesUntilConditionClears(t *testing.T) {
	ctx := context.Background()
	pv := device.NewSimPV("PV", 0)
	reg := NewRegistry()
	if err := reg.Install(NewEnergyFloor(pv, 1)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	gate := NewGate(reg, time.Millisecond)
	var suspended []string
	gate.OnSuspend = func(v []string) { suspended = v }

	go func() {
		time.Sleep(20 * time.Millisecond)
		pv.Set(5)
	}()

	paused, waited, err := gate.WaitAtCheckpoint(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !waited {
		t.Error("Expected the gate to pause")
	}
	if paused <= 0 {
		t.Errorf("Expected positive pause duration, got %v", paused)
	}
	if len(suspended) != 1 || suspended[0] != "beam_energy_floor" {
		t.Errorf("Expected OnSuspend with energy floor, got %v", suspended)
	}
}

func TestGate_CheckLatchesTrip(t *testing.T) {
	ctx := context.Background()
	pv := device.NewSimPV("PV", 0)
	reg := NewRegistry()
	if err := reg.Install(NewEnergyFloor(pv, 1)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	gate := NewGate(reg, time.Millisecond)

	ok, err := gate.Check(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ok {
		t.Fatal("Expected violation")
	}

	// Signal recovers before the checkpoint; the latch has already been
	// consumed, so the checkpoint must not block.
	pv.Set(5)
	paused, waited, err := gate.WaitAtCheckpoint(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if waited || paused != 0 {
		t.Errorf("Expected cleared latch to pass immediately, got paused=%v waited=%v", paused, waited)
	}
}

func TestGate_CancelledWhilePaused(t *testing.T) {
	pv := device.NewSimPV("PV", 0)
	reg := NewRegistry()
	if err := reg.Install(NewEnergyFloor(pv, 1)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	gate := NewGate(reg, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, waited, err := gate.WaitAtCheckpoint(ctx)
	if err == nil {
		t.Fatal("Expected context error")
	}
	if !waited {
		t.Error("Expected the gate to have paused before cancellation")
	}
}
