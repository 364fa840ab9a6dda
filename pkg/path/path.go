// Package path models the beamline light path: the ordered set of insertable
// elements between the source and a measurement point, and the operations
// that clear obstructions before a measurement.
package path

import (
	"context"
	"sort"
	"time"

	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/engine"
)

// Element is a beamline component that can obstruct the beam. Elements sit at
// a fixed longitudinal coordinate and can be retracted.
type Element interface {
	// Name returns the element's device name.
	Name() string

	// Z returns the longitudinal position along the beamline, in meters
	// from the source. Paths are ordered by Z.
	Z() float64

	// Blocking reports whether the element currently obstructs the beam.
	Blocking(ctx context.Context) (bool, error)

	// Retract removes the element from the beam, bounded by timeout.
	Retract(ctx context.Context, timeout time.Duration) error
}

// imagerElement adapts an insertable imager to the path model.
type imagerElement struct {
	im device.Imager
	z  float64
}

// ImagerAt wraps an imager as a path element at the given z coordinate.
// An imager blocks the beam when inserted; an unknown insertion state is
// treated as blocking.
func ImagerAt(im device.Imager, z float64) Element {
	return &imagerElement{im: im, z: z}
}

func (e *imagerElement) Name() string { return e.im.Name() }
func (e *imagerElement) Z() float64   { return e.z }

func (e *imagerElement) Blocking(ctx context.Context) (bool, error) {
	state, err := e.im.State(ctx)
	if err != nil {
		return false, err
	}
	return state != device.ImagerOut, nil
}

func (e *imagerElement) Retract(ctx context.Context, timeout time.Duration) error {
	return e.im.Remove(ctx, timeout)
}

// Path is an ordered sequence of elements, nearest the source first.
type Path []Element

// New builds a path from elements, ordered by their z coordinate. The input
// slice is not retained.
func New(elems ...Element) Path {
	p := make(Path, len(elems))
	copy(p, elems)
	sort.SliceStable(p, func(i, j int) bool { return p[i].Z() < p[j].Z() })
	return p
}

// Prune returns a new path without the excluded elements. The receiver is
// not modified and the retained elements are the same objects, so device
// handles stay shared. Exclusion matches element identity, not name.
func (p Path) Prune(exclude ...Element) Path {
	pruned := make(Path, 0, len(p))
	for _, el := range p {
		if containsElement(exclude, el) {
			continue
		}
		pruned = append(pruned, el)
	}
	return pruned
}

// Upstream returns the sub-path strictly before z.
func (p Path) Upstream(z float64) Path {
	out := make(Path, 0, len(p))
	for _, el := range p {
		if el.Z() < z {
			out = append(out, el)
		}
	}
	return out
}

// Blocking returns the elements currently obstructing the beam, in path
// order.
func (p Path) Blocking(ctx context.Context) ([]Element, error) {
	var blocking []Element
	for _, el := range p {
		b, err := el.Blocking(ctx)
		if err != nil {
			return nil, engine.NewTransientError("querying path element", err).
				WithDevice(el.Name()).
				WithOperation("path_query")
		}
		if b {
			blocking = append(blocking, el)
		}
	}
	return blocking, nil
}

// Clear retracts every blocking element not listed in exclude. Clearing an
// already-clear path is a no-op, so repeated calls are safe. Each retraction
// is bounded by timeout.
func (p Path) Clear(ctx context.Context, exclude []Element, timeout time.Duration) error {
	blocking, err := p.Prune(exclude...).Blocking(ctx)
	if err != nil {
		return err
	}
	for _, el := range blocking {
		if err := el.Retract(ctx, timeout); err != nil {
			return engine.Classify(err).
				WithDevice(el.Name()).
				WithOperation("path_clear")
		}
	}
	return nil
}

func containsElement(set []Element, el Element) bool {
	for _, e := range set {
		if e == el {
			return true
		}
	}
	return false
}
