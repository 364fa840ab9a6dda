package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/engine"
	"github.com/openbeamline/beamwalk/pkg/stream"
)

// execute pulls the plan to exhaustion, applying each command to the
// simulated devices the way the dispatch loop would.
func execute(ctx context.Context, t *testing.T, p stream.Plan, act *device.SimActuator, imagers map[string]*device.SimImager) ([]stream.Command, error) {
	t.Helper()
	var out []stream.Command
	for {
		cmd, err := p.Next(ctx)
		if err != nil {
			return out, err
		}
		if cmd == nil {
			return out, nil
		}
		out = append(out, *cmd)
		switch cmd.Kind {
		case stream.KindSetActuator:
			if err := act.Move(ctx, cmd.Target, cmd.Timeout); err != nil {
				return out, err
			}
		case stream.KindPrepImager:
			im, found := imagers[cmd.Device]
			if !found {
				t.Fatalf("Command addressed unknown imager %q", cmd.Device)
			}
			var err error
			if cmd.Insert {
				err = im.Insert(ctx, cmd.Timeout)
			} else {
				err = im.Remove(ctx, cmd.Timeout)
			}
			if err != nil {
				return out, err
			}
		}
	}
}

func TestSpec_Validate(t *testing.T) {
	act := device.NewSimActuator("m1h", 100)
	im := device.NewSimImager("y1", nil)

	spec := Spec{Actuator: act, Signal: im, Threshold: 0.1, Center: 240, Step: 5}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Expected valid spec, got: %v", err)
	}

	bad := Spec{Signal: im, Threshold: 0.1, Step: 5}
	if err := bad.Validate(); !engine.IsPermanent(err) {
		t.Errorf("Expected permanent validation error, got: %v", err)
	}

	noStep := Spec{Actuator: act, Signal: im, Threshold: 0.1}
	if err := noStep.Validate(); err == nil {
		t.Error("Expected zero step to fail validation")
	}
}

func TestNew_PrepStagesImagers(t *testing.T) {
	ctx := context.Background()
	act := device.NewSimActuator("m1h", 100)
	y1 := device.NewSimImager("y1", func() (float64, bool) { return 1.0, true })
	y2 := device.NewSimImager("y2", nil)
	y2.SetState(device.ImagerIn)

	spec := Spec{Actuator: act, Signal: y1, Threshold: 0.1, Center: 240, Step: 5}
	plan := New(spec, []device.Imager{y1, y2})

	cmds, err := execute(ctx, t, plan, act, map[string]*device.SimImager{"y1": y1, "y2": y2})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Insert the signal imager, park the other; no sweep moves since the
	// beam is already above threshold.
	if len(cmds) != 2 {
		t.Fatalf("Expected 2 prep commands, got %d: %+v", len(cmds), cmds)
	}
	if cmds[0].Kind != stream.KindPrepImager || cmds[0].Device != "y1" || !cmds[0].Insert {
		t.Errorf("Expected insert of y1, got %+v", cmds[0])
	}
	if cmds[1].Kind != stream.KindPrepImager || cmds[1].Device != "y2" || cmds[1].Insert {
		t.Errorf("Expected removal of y2, got %+v", cmds[1])
	}
	if state, _ := y2.State(ctx); state != device.ImagerOut {
		t.Errorf("Expected y2 parked, got %s", state)
	}
}

func TestSweep_DirectionTowardCenter(t *testing.T) {
	cases := []struct {
		name     string
		position float64
		center   float64
		wantDir  float64
	}{
		{"below center sweeps up", 100, 240, 1},
		{"above center sweeps down", 300, 240, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			act := device.NewSimActuator("m1h", tc.position)
			moves := 0
			im := device.NewSimImager("y1", func() (float64, bool) {
				// Beam reappears after two steps.
				return 1.0, moves >= 2
			})

			spec := Spec{Actuator: act, Signal: im, Threshold: 0.5, Center: tc.center, Step: 5}
			plan := New(spec, nil)

			var targets []float64
			for {
				cmd, err := plan.Next(ctx)
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				if cmd == nil {
					break
				}
				if cmd.Kind == stream.KindPrepImager {
					if cmd.Insert {
						_ = im.Insert(ctx, cmd.Timeout)
					}
					continue
				}
				if cmd.Kind != stream.KindSetActuator {
					t.Fatalf("Unexpected command %+v", cmd)
				}
				targets = append(targets, cmd.Target)
				if err := act.Move(ctx, cmd.Target, cmd.Timeout); err != nil {
					t.Fatalf("Move failed: %v", err)
				}
				moves++
			}

			if len(targets) != 2 {
				t.Fatalf("Expected 2 sweep moves, got %d: %v", len(targets), targets)
			}
			wantFirst := tc.position + tc.wantDir*5
			wantSecond := tc.position + tc.wantDir*10
			if targets[0] != wantFirst || targets[1] != wantSecond {
				t.Errorf("Expected targets [%v %v], got %v", wantFirst, wantSecond, targets)
			}
		})
	}
}

func TestSweep_NoSignalNeverCrosses(t *testing.T) {
	ctx := context.Background()
	act := device.NewSimActuator("m1h", 100)
	// Signal value is high but never present; it must not count as
	// recovered.
	im := device.NewSimImager("y1", func() (float64, bool) { return 99, false })

	spec := Spec{Actuator: act, Signal: im, Threshold: 0.5, Center: 240, Step: 5, MaxSteps: 3}
	plan := New(spec, nil)

	cmds, err := execute(ctx, t, plan, act, map[string]*device.SimImager{"y1": im})
	if !engine.IsRecovery(err) {
		t.Fatalf("Expected recovery-class error, got: %v", err)
	}
	var ce *engine.ControlError
	if !errors.As(err, &ce) || ce.Code != engine.ErrCodeRecoveryTimeout {
		t.Errorf("Expected RECOVERY_TIMEOUT code, got %+v", ce)
	}

	// One prep insert plus the full step budget.
	sweepMoves := 0
	for _, c := range cmds {
		if c.Kind == stream.KindSetActuator {
			sweepMoves++
		}
	}
	if sweepMoves != 3 {
		t.Errorf("Expected 3 sweep moves before giving up, got %d", sweepMoves)
	}
}

func TestSweep_TimeoutIsRecoveryClass(t *testing.T) {
	ctx := context.Background()
	act := device.NewSimActuator("m1h", 100)
	im := device.NewSimImager("y1", func() (float64, bool) { return 0, true })

	spec := Spec{
		Actuator:     act,
		Signal:       im,
		Threshold:    0.5,
		Center:       240,
		Step:         5,
		SweepTimeout: 20 * time.Millisecond,
	}
	plan := New(spec, nil)

	// Burn the budget before the sweep can take its first step.
	_ = im.Insert(ctx, 0)
	if cmd, err := plan.Next(ctx); err != nil || cmd == nil || cmd.Kind != stream.KindPrepImager {
		t.Fatalf("Expected prep command, got %+v, err=%v", cmd, err)
	}
	if cmd, err := plan.Next(ctx); err != nil || cmd == nil {
		t.Fatalf("Expected first sweep move, got %+v, err=%v", cmd, err)
	}
	time.Sleep(40 * time.Millisecond)

	_, err := plan.Next(ctx)
	if !engine.IsRecovery(err) {
		t.Fatalf("Expected recovery-class timeout, got: %v", err)
	}
	var ce *engine.ControlError
	if !errors.As(err, &ce) || ce.Code != engine.ErrCodeRecoveryTimeout {
		t.Errorf("Expected RECOVERY_TIMEOUT code, got %+v", ce)
	}
}

func TestSweep_HasStopPropagates(t *testing.T) {
	ctx := context.Background()
	act := device.NewSimActuator("m1h", 100)
	im := device.NewSimImager("y1", func() (float64, bool) { return 0, true })
	_ = im.Insert(ctx, 0)

	spec := Spec{Actuator: act, Signal: im, Threshold: 0.5, Center: 240, Step: 5, HasStop: true}
	plan := &sweep{spec: spec}

	cmd, err := plan.Next(ctx)
	if err != nil || cmd == nil {
		t.Fatalf("Expected sweep move, got %+v, err=%v", cmd, err)
	}
	if !cmd.HasStop {
		t.Error("Expected sweep move to carry the has-stop flag")
	}
}

func TestFactory_FreshPlanPerInvocation(t *testing.T) {
	ctx := context.Background()
	act := device.NewSimActuator("m1h", 100)
	im := device.NewSimImager("y1", func() (float64, bool) { return 1.0, true })

	spec := Spec{Actuator: act, Signal: im, Threshold: 0.5, Center: 240, Step: 5}
	factory := Factory(spec, nil)

	for i := 0; i < 2; i++ {
		cmds, err := execute(ctx, t, factory(), act, map[string]*device.SimImager{"y1": im})
		if err != nil {
			t.Fatalf("Run %d: expected no error, got: %v", i, err)
		}
		if len(cmds) != 1 || cmds[0].Kind != stream.KindPrepImager {
			t.Errorf("Run %d: expected a fresh prep phase, got %+v", i, cmds)
		}
	}
}
