package graph

import (
	"fmt"

	"tsgraph/internal/completion"
	"tsgraph/internal/engine"
	"tsgraph/internal/timeutil"
)

// Context carries the defaults new Tasks are built against: a code version
// stamped into every metadata, the persistence engine Tasks write to unless
// overridden, and the target range time-series tasks inherit.
type Context struct {
	Version     string
	Engine      engine.Engine
	TargetRange timeutil.TimeRange
}

// Dep is what callers pass as a dependency to TimeSeriesTask/StaticTask: a
// bare *Task (lifted to Dependency(lookback=0, inherit_frequency=true), per
// a plain dependent *Task) or an explicit *Dependency.
type Dep interface {
	resolve() *Dependency
}

type taskDep struct{ t *Task }

func (d taskDep) resolve() *Dependency { return Lift(d.t) }

type explicitDep struct{ d *Dependency }

func (d explicitDep) resolve() *Dependency { return d.d }

// AsDep wraps a Task so it can be passed where a Dep is expected; it is
// lifted to the default Dependency.
func AsDep(t *Task) Dep { return taskDep{t} }

// WithDependency wraps an already-built Dependency (explicit lookback and/or
// inherit_frequency) so it can be passed where a Dep is expected.
func WithDependency(d *Dependency) Dep { return explicitDep{d} }

func resolveDeps(deps map[string]Dep) map[string]*Dependency {
	out := make(map[string]*Dependency, len(deps))
	for k, d := range deps {
		out[k] = d.resolve()
	}
	return out
}

// TaskOptions overrides Context defaults for a single factory call. A nil
// field (an empty string for Version) means "use the Context default".
type TaskOptions struct {
	Version     string
	Engine      engine.Engine
	TargetRange *timeutil.TimeRange
	Checker     completion.Checker
}

func (c *Context) resolveVersion(o TaskOptions) string {
	if o.Version != "" {
		return o.Version
	}
	return c.Version
}

func (c *Context) resolveEngine(o TaskOptions) engine.Engine {
	if o.Engine != nil {
		return o.Engine
	}
	return c.Engine
}

func (c *Context) resolveTargetRange(o TaskOptions) timeutil.TimeRange {
	if o.TargetRange != nil {
		return *o.TargetRange
	}
	return c.TargetRange
}

// TimeSeriesTask builds a time-series Task: name, function, free-form
// normalised params, and named dependencies, with completion checker
// derived from the default rule unless opts.Checker is set.
func (c *Context) TimeSeriesTask(name string, fn Function, timeLevel string, params map[string]interface{}, deps map[string]Dep, opts TaskOptions) (*Task, error) {
	eng := c.resolveEngine(opts)
	if eng == nil {
		return nil, fmt.Errorf("graph: context: no persistence engine configured for task %q", name)
	}
	return New(fn, name, c.resolveVersion(opts), false, timeLevel, params, resolveDeps(deps), c.resolveTargetRange(opts), opts.Checker, eng)
}

// StaticTask builds a static (scalar-output) Task: no target range, no
// fetch windowing — dependencies are always read in full and the result is
// always written with Replace.
func (c *Context) StaticTask(name string, fn Function, params map[string]interface{}, deps map[string]Dep, opts TaskOptions) (*Task, error) {
	eng := c.resolveEngine(opts)
	if eng == nil {
		return nil, fmt.Errorf("graph: context: no persistence engine configured for task %q", name)
	}
	return New(fn, name, c.resolveVersion(opts), true, "", params, resolveDeps(deps), timeutil.TimeRange{}, opts.Checker, eng)
}
