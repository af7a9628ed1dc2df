package environment

import (
	"context"
	"fmt"
	"time"

	"github.com/benchtune/benchtune/internal/errkind"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

// ChildSpec declares one child environment within a Composite: the subset of
// tunable groups it is configured against, and the constant arguments it
// contributes to required-argument resolution (spec.md §4.3 "Composite
// environments").
type ChildSpec struct {
	Name   string
	Env    Environment
	Groups []string          // tunable-group names this child is configured with
	Const  map[string]string // constant arguments this child provides to its descendants
	// Required lists argument names this child needs resolved (from its own
	// Const, an ancestor's Const, or global config) before construction
	// succeeds.
	Required []string
}

// Composite runs child environments in declaration order for setup/run, and
// reverse order for teardown (spec.md §4.3), with required arguments flowing
// from parent to child by name.
type Composite struct {
	children []ChildSpec
	resolved map[string]string // merged const-arg view used for required-arg checks
	state    state
}

// NewComposite constructs a Composite, resolving each child's Required
// argument list against the merged constant-argument map (parent's globals
// plus every preceding and its own child's Const). An unresolved required
// argument is a construction-time configuration error (spec.md §4.3:
// "unresolved required arguments are a configuration error detected at
// construction").
func NewComposite(globalConfig map[string]string, children ...ChildSpec) (*Composite, error) {
	resolved := make(map[string]string, len(globalConfig))
	for k, v := range globalConfig {
		resolved[k] = v
	}
	for _, c := range children {
		for k, v := range c.Const {
			resolved[k] = v
		}
		for _, req := range c.Required {
			if _, ok := resolved[req]; !ok {
				return nil, fmt.Errorf("%w: child %q requires argument %q which no ancestor or global config provides",
					errkind.MissingRequiredParam, c.Name, req)
			}
		}
	}
	return &Composite{children: children, resolved: resolved}, nil
}

func (c *Composite) EnterContext(ctx context.Context) error {
	for _, child := range c.children {
		if err := child.Env.EnterContext(ctx); err != nil {
			return fmt.Errorf("composite: child %q enter_context: %w", child.Name, err)
		}
	}
	return nil
}

func (c *Composite) ExitContext(ctx context.Context) error {
	var firstErr error
	for i := len(c.children) - 1; i >= 0; i-- {
		child := c.children[i]
		if err := child.Env.ExitContext(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("composite: child %q exit_context: %w", child.Name, err)
		}
	}
	return firstErr
}

// Setup runs each child's Setup against the subgroup it declared, in
// declaration order. The first child that fails to reach Ready stops the
// walk and reports false, without attempting later children.
func (c *Composite) Setup(ctx context.Context, tunables *tunable.Groups, globalConfig map[string]string) (bool, error) {
	for _, child := range c.children {
		sub, err := tunables.Subgroup(child.Groups...)
		if err != nil {
			return false, fmt.Errorf("composite: child %q subgroup: %w", child.Name, err)
		}
		ok, err := child.Env.Setup(ctx, sub, mergeArgs(globalConfig, child.Const))
		if err != nil {
			return false, fmt.Errorf("composite: child %q setup: %w", child.Name, err)
		}
		if !ok {
			return false, nil
		}
	}
	c.state = stateReady
	return true, nil
}

// Run delegates to every child in declaration order and succeeds only if
// every child reports a succeeded status; metrics from all children are
// merged (later children overwrite same-named metrics, matching spec.md's
// declaration-order composition).
func (c *Composite) Run(ctx context.Context) (status.Status, time.Time, Metrics, error) {
	merged := Metrics{}
	var last status.Status
	var lastTS time.Time
	for _, child := range c.children {
		st, ts, metrics, err := child.Env.Run(ctx)
		last, lastTS = st, ts
		if err != nil {
			return status.Failed, ts, nil, fmt.Errorf("composite: child %q run: %w", child.Name, err)
		}
		if !st.IsSucceeded() {
			return st, ts, nil, nil
		}
		for k, v := range metrics {
			merged[k] = v
		}
	}
	c.state = stateRunning
	return last, lastTS, merged, nil
}

// Status polls every child and concatenates their telemetry.
func (c *Composite) Status(ctx context.Context) (status.Status, time.Time, []Telemetry, error) {
	var out []Telemetry
	last := status.Ready
	lastTS := time.Now().UTC()
	for _, child := range c.children {
		st, ts, telemetry, err := child.Env.Status(ctx)
		if err != nil {
			return status.Unknown, ts, nil, fmt.Errorf("composite: child %q status: %w", child.Name, err)
		}
		last, lastTS = st, ts
		out = append(out, telemetry...)
	}
	return last, lastTS, out, nil
}

// Teardown runs children in reverse declaration order, even if an earlier
// child failed (spec.md §4.3): every child is torn down, and the first
// error encountered is returned after all have run.
func (c *Composite) Teardown(ctx context.Context) error {
	var firstErr error
	for i := len(c.children) - 1; i >= 0; i-- {
		child := c.children[i]
		if err := child.Env.Teardown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("composite: child %q teardown: %w", child.Name, err)
		}
	}
	c.state = stateUninit
	return firstErr
}

func mergeArgs(global, local map[string]string) map[string]string {
	out := make(map[string]string, len(global)+len(local))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}
