package align

import (
	"context"
	"time"

	"github.com/openbeamline/beamwalk/pkg/branch"
	"github.com/openbeamline/beamwalk/pkg/config"
	"github.com/openbeamline/beamwalk/pkg/device"
	"github.com/openbeamline/beamwalk/pkg/telemetry"
)

// scriptTimeout bounds one selector script evaluation. Selectors run
// synchronously in the dispatch loop, so a runaway script must not stall the
// session indefinitely.
const scriptTimeout = 5 * time.Second

// NewScriptSelector builds a branch selector from a Starlark script. At each
// checkpoint the script sees, for every imager, three predeclared globals:
//
//	<name>     the current signal value (0 when absent)
//	<name>_ok  whether the read carried a signal
//	<name>_in  whether the imager is inserted
//
// and reports its decision through the take/branch globals. Script errors
// resolve to no-branch; the session is never failed by a broken selector.
func NewScriptSelector(script string, imagers []device.Imager, tel *telemetry.Telemetry) branch.Selector {
	eval := config.NewStarlarkEvaluator(scriptTimeout)
	var logger *telemetry.Logger
	if tel != nil {
		logger = tel.Logger.NewComponentLogger("script-selector")
	}

	return func(ctx context.Context) (int, bool) {
		signals := make(map[string]interface{}, len(imagers)*3)
		for _, im := range imagers {
			v, ok, err := im.Read(ctx)
			if err != nil {
				v, ok = 0, false
			}
			state, err := im.State(ctx)
			inserted := err == nil && state == device.ImagerIn

			signals[im.Name()] = v
			signals[im.Name()+"_ok"] = ok
			signals[im.Name()+"_in"] = inserted
		}

		index, take, err := eval.EvaluateSelector(ctx, script, signals)
		if err != nil {
			if logger != nil {
				logger.WithError(err).Warn("Selector script failed, not branching")
			}
			return 0, false
		}
		return index, take
	}
}
