package stream

import (
	"context"
)

// Plan is a lazy, ordered producer of commands. Next returns the next
// command in the sequence, or (nil, nil) once the plan is exhausted.
//
// A Plan instance is single-use: it is consumed from start to finish and is
// not restartable mid-stream. Use a Factory where a fresh run of the same
// sequence is needed per invocation.
//
// Plans are consumed cooperatively from a single logical thread of control;
// implementations do not need to be safe for concurrent Next calls.
type Plan interface {
	Next(ctx context.Context) (*Command, error)
}

// Factory produces a fresh Plan per invocation. Factories back branch sets
// and recovery sequences, which may run any number of times per session.
type Factory func() Plan

// PlanFunc adapts a function to the Plan interface.
type PlanFunc func(ctx context.Context) (*Command, error)

// Next implements Plan.
func (f PlanFunc) Next(ctx context.Context) (*Command, error) {
	return f(ctx)
}

// slicePlan yields a fixed command sequence.
type slicePlan struct {
	cmds []Command
	pos  int
}

// FromCommands returns a plan that yields the given commands in order.
func FromCommands(cmds ...Command) Plan {
	return &slicePlan{cmds: cmds}
}

func (p *slicePlan) Next(ctx context.Context) (*Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.pos >= len(p.cmds) {
		return nil, nil
	}
	cmd := p.cmds[p.pos]
	p.pos++
	return &cmd, nil
}

// Single returns a plan that yields exactly one command.
func Single(cmd Command) Plan {
	return FromCommands(cmd)
}

// Empty returns a plan that yields nothing.
func Empty() Plan {
	return FromCommands()
}

// seqPlan runs sub-plans to exhaustion, in order.
type seqPlan struct {
	plans []Plan
	pos   int
}

// Sequence returns a plan that delegates to each sub-plan in turn, advancing
// when the current sub-plan is exhausted.
func Sequence(plans ...Plan) Plan {
	return &seqPlan{plans: plans}
}

func (p *seqPlan) Next(ctx context.Context) (*Command, error) {
	for p.pos < len(p.plans) {
		cmd, err := p.plans[p.pos].Next(ctx)
		if err != nil {
			return nil, err
		}
		if cmd != nil {
			return cmd, nil
		}
		p.pos++
	}
	return nil, nil
}

// SequenceFactories composes factories into a single factory whose plans run
// each sub-factory's plan in order. Sub-plans are built lazily, at the moment
// the sequence reaches them, so device state read at build time is current.
func SequenceFactories(factories ...Factory) Factory {
	return func() Plan {
		pending := make([]Factory, len(factories))
		copy(pending, factories)
		var active Plan
		return PlanFunc(func(ctx context.Context) (*Command, error) {
			for {
				if active == nil {
					if len(pending) == 0 {
						return nil, nil
					}
					active = pending[0]()
					pending = pending[1:]
				}
				cmd, err := active.Next(ctx)
				if err != nil {
					return nil, err
				}
				if cmd != nil {
					return cmd, nil
				}
				active = nil
			}
		})
	}
}

// Collect drains a plan into a slice. It stops after limit commands to guard
// against runaway plans; limit <= 0 means no bound.
func Collect(ctx context.Context, p Plan, limit int) ([]Command, error) {
	var out []Command
	for {
		cmd, err := p.Next(ctx)
		if err != nil {
			return out, err
		}
		if cmd == nil {
			return out, nil
		}
		out = append(out, *cmd)
		if limit > 0 && len(out) >= limit {
			return out, nil
		}
	}
}
