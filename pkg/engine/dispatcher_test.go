package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/stream"
	"github.com/openbeamline/beamwalk/pkg/suspend"
)

type failingSensor struct {
	name string
}

func (s *failingSensor) Name() string { return s.name }
func (s *failingSensor) Read(ctx context.Context) (float64, bool, error) {
	return 0, false, errors.New("camera offline")
}

func TestDispatcher_RunSucceeds(t *testing.T) {
	ctx := context.Background()
	act := device.NewSimActuator("m1h", 0)
	im := device.NewSimImager("y1", func() (float64, bool) { return 480, true })
	devices := NewDevices().AddActuator(act).AddImager(im)

	plan := stream.FromCommands(
		stream.Checkpoint(),
		stream.PrepImager("y1", true, time.Second),
		stream.SetActuator("m1h", 120, time.Second),
		stream.ReadSensor("y1"),
		stream.Checkpoint(),
		stream.Null(),
	)

	d := NewDispatcher(devices, Options{})
	session, err := d.Run(ctx, plan, Metadata{PlanName: "test_align"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if session.Status != SessionStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", session.Status)
	}
	if session.ID == "" {
		t.Error("Expected a session ID")
	}
	if session.CompletedAt == nil {
		t.Error("Expected a completion time")
	}

	s := session.Summary
	if s.Commands != 6 || s.Checkpoints != 2 || s.Moves != 1 || s.Readings != 1 {
		t.Errorf("Unexpected summary: %+v", s)
	}

	if pos, _ := act.Position(ctx); pos != 120 {
		t.Errorf("Expected actuator at 120, got %v", pos)
	}

	meas := d.Measurements()
	if len(meas) != 1 || !meas[0].Present || meas[0].Value != 480 || meas[0].Device != "y1" {
		t.Errorf("Unexpected measurements: %+v", meas)
	}
}

func TestDispatcher_UnknownDeviceFails(t *testing.T) {
	d := NewDispatcher(NewDevices(), Options{})
	plan := stream.FromCommands(stream.SetActuator("ghost", 1, time.Second))

	session, err := d.Run(context.Background(), plan, Metadata{PlanName: "test"})
	if !IsPermanent(err) {
		t.Fatalf("Expected permanent error, got: %v", err)
	}
	var ce *ControlError
	if !errors.As(err, &ce) || ce.Code != ErrCodeUnknownDevice {
		t.Errorf("Expected UNKNOWN_DEVICE, got %+v", ce)
	}
	if session.Status != SessionStatusFailed || session.Cause == "" {
		t.Errorf("Expected failed session with cause, got %+v", session)
	}
}

func TestDispatcher_MotionFaultFails(t *testing.T) {
	act := device.NewSimActuator("m1h", 0)
	act.SetLimits(-150, 250)
	devices := NewDevices().AddActuator(act)

	plan := stream.FromCommands(stream.SetActuator("m1h", 400, time.Second))
	d := NewDispatcher(devices, Options{})

	session, err := d.Run(context.Background(), plan, Metadata{PlanName: "test"})
	if !IsMotion(err) {
		t.Fatalf("Expected motion-class error, got: %v", err)
	}
	var ce *ControlError
	if !errors.As(err, &ce) || ce.Device != "m1h" {
		t.Errorf("Expected device context on error, got %+v", ce)
	}
	if session.Status != SessionStatusFailed {
		t.Errorf("Expected failed, got %s", session.Status)
	}
}

func TestDispatcher_PlanErrorClassified(t *testing.T) {
	planErr := errors.New("stream broke")
	plan := stream.PlanFunc(func(ctx context.Context) (*stream.Command, error) {
		return nil, planErr
	})

	d := NewDispatcher(NewDevices(), Options{})
	session, err := d.Run(context.Background(), plan, Metadata{PlanName: "test"})
	if !IsPermanent(err) {
		t.Fatalf("Expected permanent classification, got: %v", err)
	}
	if !errors.Is(err, planErr) {
		t.Error("Expected the underlying plan error in the chain")
	}
	if session.Status != SessionStatusFailed {
		t.Errorf("Expected failed, got %s", session.Status)
	}
}

func TestDispatcher_SuspendsAtCheckpoint(t *testing.T) {
	ctx := context.Background()
	pv := device.NewSimPV("GDET:FEE1:241:ENRC", 5)
	reg := suspend.NewRegistry()
	if err := reg.Install(suspend.NewEnergyFloor(pv, 1)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	gate := suspend.NewGate(reg, time.Millisecond)

	act := device.NewSimActuator("m1h", 0)
	devices := NewDevices().AddActuator(act)

	// The energy drops during the move; the violation latches and the
	// checkpoint waits until the beam comes back.
	plan := stream.PlanFunc(func() func(ctx context.Context) (*stream.Command, error) {
		step := 0
		return func(ctx context.Context) (*stream.Command, error) {
			step++
			switch step {
			case 1:
				cmd := stream.SetActuator("m1h", 10, time.Second)
				return &cmd, nil
			case 2:
				pv.Set(0.001)
				go func() {
					time.Sleep(20 * time.Millisecond)
					pv.Set(5)
				}()
				cmd := stream.SetActuator("m1h", 20, time.Second)
				return &cmd, nil
			case 3:
				cmd := stream.Checkpoint()
				return &cmd, nil
			default:
				return nil, nil
			}
		}
	}())

	d := NewDispatcher(devices, Options{Gate: gate})
	session, err := d.Run(ctx, plan, Metadata{PlanName: "test"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if session.Status != SessionStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", session.Status)
	}
	if session.Summary.Suspensions != 1 {
		t.Errorf("Expected 1 suspension, got %d", session.Summary.Suspensions)
	}
	if session.Summary.SuspendedFor <= 0 {
		t.Errorf("Expected positive suspended time, got %v", session.Summary.SuspendedFor)
	}
}

func TestDispatcher_CancelledWhileSuspended(t *testing.T) {
	pv := device.NewSimPV("PV", 0)
	reg := suspend.NewRegistry()
	if err := reg.Install(suspend.NewEnergyFloor(pv, 1)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	gate := suspend.NewGate(reg, time.Millisecond)

	plan := stream.FromCommands(stream.Checkpoint())
	d := NewDispatcher(NewDevices(), Options{Gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	session, err := d.Run(ctx, plan, Metadata{PlanName: "test"})
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if session.Status != SessionStatusCancelled {
		t.Errorf("Expected cancelled, got %s", session.Status)
	}
}

func TestDispatcher_FailedReadIsNotFatal(t *testing.T) {
	devices := NewDevices().AddSensor(&failingSensor{name: "y1"})
	plan := stream.FromCommands(stream.ReadSensor("y1"))

	d := NewDispatcher(devices, Options{})
	session, err := d.Run(context.Background(), plan, Metadata{PlanName: "test"})
	if err != nil {
		t.Fatalf("Expected failed read to be absorbed, got: %v", err)
	}
	if session.Status != SessionStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", session.Status)
	}
	meas := d.Measurements()
	if len(meas) != 1 || meas[0].Present {
		t.Errorf("Expected one absent measurement, got %+v", meas)
	}
}

func TestDispatcher_BranchHooksUpdateSummary(t *testing.T) {
	d := NewDispatcher(NewDevices(), Options{})
	if _, err := d.Run(context.Background(), stream.Empty(), Metadata{PlanName: "test"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	d.RecordBranch(0)
	d.RecordRecoveryFailure(0, NewRecoveryError("timed out", nil).WithCode(ErrCodeRecoveryTimeout))

	s := d.Session().Summary
	if s.Branches != 1 || s.RecoveryFailures != 1 {
		t.Errorf("Expected hooks to count, got %+v", s)
	}
}

func TestDevices_ImagerDoublesAsSensor(t *testing.T) {
	im := device.NewSimImager("y1", func() (float64, bool) { return 1, true })
	devices := NewDevices().AddImager(im)

	if _, err := devices.Sensor("y1"); err != nil {
		t.Errorf("Expected imager resolvable as sensor, got: %v", err)
	}
	if _, err := devices.Imager("y1"); err != nil {
		t.Errorf("Expected imager resolvable as imager, got: %v", err)
	}
	if _, err := devices.Actuator("y1"); err == nil {
		t.Error("Expected imager to not resolve as actuator")
	}
}
