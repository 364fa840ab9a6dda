package path

import (
	"context"
	"testing"
	"time"

	"github.com/openbeamline/beamwalk/pkg/device"
)

func newImagerIn(name string, z float64) (*device.SimImager, Element) {
	im := device.NewSimImager(name, nil)
	im.SetState(device.ImagerIn)
	return im, ImagerAt(im, z)
}

func TestNew_OrdersByZ(t *testing.T) {
	_, a := newImagerIn("y3", 30)
	_, b := newImagerIn("y1", 10)
	_, c := newImagerIn("y2", 20)

	p := New(a, b, c)
	want := []string{"y1", "y2", "y3"}
	for i, el := range p {
		if el.Name() != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], el.Name())
		}
	}
}

func TestPrune_ExcludesWithoutMutating(t *testing.T) {
	_, a := newImagerIn("y1", 10)
	_, b := newImagerIn("y2", 20)
	_, c := newImagerIn("y3", 30)
	p := New(a, b, c)

	pruned := p.Prune(b)
	if len(pruned) != 2 {
		t.Fatalf("Expected 2 elements, got %d", len(pruned))
	}
	if pruned[0] != a || pruned[1] != c {
		t.Error("Expected pruned path to retain the same element objects")
	}
	if len(p) != 3 {
		t.Errorf("Expected original path unmodified, got %d elements", len(p))
	}

	// Pruning nothing returns an equivalent path of the same objects.
	same := p.Prune()
	if len(same) != 3 || same[0] != a || same[1] != b || same[2] != c {
		t.Error("Expected no-op prune to preserve all elements")
	}
}

func TestBlocking_ReportsInsertedOnly(t *testing.T) {
	ctx := context.Background()
	im1, a := newImagerIn("y1", 10)
	_, b := newImagerIn("y2", 20)
	im1.SetState(device.ImagerOut)

	p := New(a, b)
	blocking, err := p.Blocking(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(blocking) != 1 || blocking[0].Name() != "y2" {
		t.Errorf("Expected only y2 blocking, got %v", blocking)
	}
}

func TestBlocking_UnknownStateBlocks(t *testing.T) {
	ctx := context.Background()
	im, el := newImagerIn("y1", 10)
	im.SetState(device.ImagerUnknown)

	b, err := el.Blocking(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !b {
		t.Error("Expected unknown insertion state to count as blocking")
	}
}

func TestClear_RetractsAllButExcluded(t *testing.T) {
	ctx := context.Background()
	im1, a := newImagerIn("y1", 10)
	im2, b := newImagerIn("y2", 20)
	im3, c := newImagerIn("y3", 30)
	p := New(a, b, c)

	if err := p.Clear(ctx, []Element{c}, time.Second); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if state, _ := im1.State(ctx); state != device.ImagerOut {
		t.Error("Expected y1 retracted")
	}
	if state, _ := im2.State(ctx); state != device.ImagerOut {
		t.Error("Expected y2 retracted")
	}
	if state, _ := im3.State(ctx); state != device.ImagerIn {
		t.Error("Expected excluded y3 to stay inserted")
	}

	// Clearing again is a no-op.
	if err := p.Clear(ctx, []Element{c}, time.Second); err != nil {
		t.Fatalf("Expected idempotent clear, got: %v", err)
	}
	if state, _ := im3.State(ctx); state != device.ImagerIn {
		t.Error("Expected y3 untouched by repeated clear")
	}
}

func TestUpstream_StrictCut(t *testing.T) {
	_, a := newImagerIn("y1", 10)
	_, b := newImagerIn("y2", 20)
	_, c := newImagerIn("y3", 30)
	p := New(a, b, c)

	up := p.Upstream(20)
	if len(up) != 1 || up[0].Name() != "y1" {
		t.Errorf("Expected only y1 upstream of z=20, got %v", up)
	}
}

func TestClearCondition_ViolatesOnUpstreamBlocker(t *testing.T) {
	ctx := context.Background()
	im1, a := newImagerIn("y1", 10)
	im2, b := newImagerIn("y2", 20)
	p := New(a, b)

	// Measuring on y2: y2 itself may stay in, y1 must be out.
	cond := NewClearCondition(p, 20, b)

	ok, err := cond.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ok {
		t.Error("Expected violation while y1 is inserted")
	}

	im1.SetState(device.ImagerOut)
	ok, err = cond.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok {
		t.Error("Expected clear path once y1 retracted")
	}
	if state, _ := im2.State(ctx); state != device.ImagerIn {
		t.Error("Expected measurement imager to stay inserted")
	}
}
