package path

import (
	"context"
)

// ClearCondition reports a violation while anything upstream of a measurement
// point obstructs the beam. It satisfies the suspend condition contract, so
// sessions pause instead of measuring through an inserted device.
type ClearCondition struct {
	path    Path
	z       float64
	exclude []Element
}

// NewClearCondition watches the portion of path upstream of z. Elements in
// exclude are ignored even when blocking, which lets the measurement device
// itself stay inserted.
func NewClearCondition(p Path, z float64, exclude ...Element) *ClearCondition {
	return &ClearCondition{path: p, z: z, exclude: exclude}
}

// Name implements the suspend condition contract.
func (c *ClearCondition) Name() string { return "lightpath_clear" }

// Evaluate returns true when no watched element blocks the beam.
func (c *ClearCondition) Evaluate(ctx context.Context) (bool, error) {
	blocking, err := c.path.Upstream(c.z).Prune(c.exclude...).Blocking(ctx)
	if err != nil {
		return false, err
	}
	return len(blocking) == 0, nil
}
