// Package branch implements the command-stream branching engine: a plan
// interceptor that, at checkpoint commands, consults a selector and may
// divert the stream into one of a fixed set of recovery sub-plans, resuming
// the primary plan exactly where it left off afterward.
package branch

import (
	"context"
	"sync/atomic"

	"github.com/openbeamline/beamwalk/pkg/engine"
	"github.com/openbeamline/beamwalk/pkg/stream"
)

// Selector decides, at a trigger command, whether to divert the stream.
// It returns (index, true) to run the branch at index, or (_, false) to
// continue the primary plan. Selectors are called synchronously from the
// dispatch loop and must be side-effect-free with respect to branching
// state; reading live device state is fine.
type Selector func(ctx context.Context) (int, bool)

// NoBranch is a selector that never diverts.
func NoBranch(context.Context) (int, bool) { return 0, false }

// Engine transforms a primary plan by substituting branch sub-plans at
// trigger commands. It implements stream.Plan and is transparent for every
// non-trigger command: O(1) pass-through, no inspection or buffering.
//
// The engine has two logical states. In the normal state commands flow from
// the primary plan; at a trigger the selector is consulted under a
// non-reentrant decision lock. When the selector fires, the engine emits a
// fresh trigger, runs the chosen branch to exhaustion, then delivers the
// original trigger command so the primary plan resumes at exactly the
// position it yielded from. The selector is evaluated fresh at every
// trigger; nothing persists across unrelated triggers.
//
// Each session owns its own Engine; engines are not shared.
type Engine struct {
	primary  stream.Plan
	branches []stream.Factory
	selector Selector
	trigger  stream.Kind

	// inDecision is the branch lock. It guards only the selector decision,
	// not the branch's execution: a trigger observed while a decision is
	// already in flight (reentrant invocation) passes through silently.
	inDecision atomic.Bool

	active      stream.Plan
	activeIndex int
	held        *stream.Command

	// OnBranch is called when a branch is selected, before its first
	// command is emitted.
	OnBranch func(index int)

	// OnBranchFailure is called when a branch fails with a non-terminal
	// recovery fault. The primary plan resumes afterward; the engine never
	// retries a branch.
	OnBranchFailure func(index int, err error)
}

// NewEngine creates a branching engine over the primary plan. The trigger
// kind defaults to stream.KindCheckpoint.
func NewEngine(primary stream.Plan, branches []stream.Factory, selector Selector) *Engine {
	if selector == nil {
		selector = NoBranch
	}
	return &Engine{
		primary:  primary,
		branches: branches,
		selector: selector,
		trigger:  stream.KindCheckpoint,
	}
}

// SetTrigger changes the command kind that branching synchronizes on.
func (e *Engine) SetTrigger(kind stream.Kind) {
	e.trigger = kind
}

// Branching reports whether a branch sub-plan is currently being emitted.
func (e *Engine) Branching() bool {
	return e.active != nil
}

// Next implements stream.Plan.
func (e *Engine) Next(ctx context.Context) (*stream.Command, error) {
	if e.active != nil {
		return e.nextFromBranch(ctx)
	}

	cmd, err := e.primary.Next(ctx)
	if err != nil || cmd == nil {
		return cmd, err
	}
	if cmd.Kind != e.trigger {
		return cmd, nil
	}

	// Trigger command: take the decision lock without blocking. Losing the
	// race means a decision is already in flight, which only happens on
	// reentrant invocation; the trigger passes through untouched.
	if !e.inDecision.CompareAndSwap(false, true) {
		return cmd, nil
	}
	index, take := e.selector(ctx)
	e.inDecision.Store(false)

	if !take {
		return cmd, nil
	}
	if index < 0 || index >= len(e.branches) {
		return nil, engine.NewPermanentError("branch index out of range", nil).
			WithCode(engine.ErrCodeValidation).
			WithOperation("branch_select")
	}

	e.active = e.branches[index]()
	e.activeIndex = index
	e.held = cmd
	if e.OnBranch != nil {
		e.OnBranch(index)
	}

	// Bracket the detour with a fresh trigger; the original trigger is
	// delivered once the branch is exhausted.
	fresh := stream.Command{Kind: e.trigger}
	return &fresh, nil
}

// nextFromBranch emits from the active branch. Branch commands are not
// re-inspected, so at most one branch sub-sequence is ever in flight.
func (e *Engine) nextFromBranch(ctx context.Context) (*stream.Command, error) {
	cmd, err := e.active.Next(ctx)
	if err != nil {
		index := e.activeIndex
		e.active = nil
		held := e.held
		e.held = nil
		if engine.IsRecovery(err) {
			// Failed recovery attempt: report it and resume the primary
			// plan at the held trigger.
			if e.OnBranchFailure != nil {
				e.OnBranchFailure(index, err)
			}
			return held, nil
		}
		return nil, err
	}
	if cmd != nil {
		return cmd, nil
	}

	// Branch exhausted; deliver the original trigger so the primary plan
	// resumes at its expected position.
	e.active = nil
	held := e.held
	e.held = nil
	return held, nil
}
