// Package graph implements the runtime dataset graph: Dependency edges and
// the Task nodes built from a user function, its metadata identity, and its
// completion policy.
package graph

import (
	"context"
	"fmt"

	"tsgraph/internal/completion"
	"tsgraph/internal/engine"
	"tsgraph/internal/metadata"
	"tsgraph/internal/timeutil"
)

// Inputs is what a Task's Function is invoked with: one payload per
// dependency, keyed by the parameter name it was registered under, plus the
// task's own scalar params and the window the function is being asked to
// fill (the user function signature).
type Inputs struct {
	Payloads  map[string]engine.Payload
	Params    map[string]interface{}
	TimeRange timeutil.TimeRange
}

// Function is the deterministic unit of computation a Task wraps. It MUST
// be deterministic given identical Inputs — any live I/O is the
// function's own responsibility to contain.
type Function func(ctx context.Context, in Inputs) (engine.Payload, error)

// Outcome is the terminal state Run leaves a Task in.
type Outcome int

const (
	Success Outcome = iota
	AlreadyComplete
	Incomplete
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case AlreadyComplete:
		return "AlreadyComplete"
	case Incomplete:
		return "Incomplete"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result is what Run returns: the terminal outcome, a human reason for
// Incomplete, and the causing error for Failed.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
}

// Task is a node in the runtime graph: a user function bound
// to a content-addressed identity, a set of named dependencies, a target
// range, and a completion policy.
type Task struct {
	Function     Function
	Name         string
	Version      string
	Static       bool
	TimeLevel    string
	Params       map[string]interface{}
	Dependencies map[string]*Dependency
	TargetRange  timeutil.TimeRange
	Checker      completion.Checker
	Engine       engine.Engine

	md *metadata.Metadata
}

// New builds a Task: it normalises params and predecessors into a
// DatasetMetadata (fatal on non-normalisable params), and
// derives a default completion checker when none is supplied.
//
// checker may be nil to request the default derivation rule:
// no inheriting dependency -> IrregularChecker; exactly one -> used
// directly; more than one -> CompositeChecker(Strictest, ...).
func New(fn Function, name, version string, static bool, timeLevel string, params map[string]interface{}, deps map[string]*Dependency, targetRange timeutil.TimeRange, checker completion.Checker, eng engine.Engine) (*Task, error) {
	if eng == nil {
		return nil, fmt.Errorf("graph: task %q: persistence engine is required", name)
	}

	predecessors := make(map[string]metadata.Node, len(deps))
	for key, d := range deps {
		predecessors[key] = d.Task.Output()
	}

	md, err := metadata.New(name, version, static, timeLevel, params, predecessors, eng.ID())
	if err != nil {
		return nil, fmt.Errorf("graph: task %q: %w", name, err)
	}

	if checker == nil {
		checker = deriveChecker(deps)
	}

	return &Task{
		Function:     fn,
		Name:         name,
		Version:      version,
		Static:       static,
		TimeLevel:    timeLevel,
		Params:       params,
		Dependencies: deps,
		TargetRange:  targetRange,
		Checker:      checker,
		Engine:       eng,
		md:           md,
	}, nil
}

// deriveChecker implements the default completion-checker rule over the
// checkers of the dependencies that inherit frequency: none gives an
// IrregularChecker, one is used as is, and several are combined in a
// Strictest composite. Composite's strategy is commutative
// (min/max over its children), so the non-deterministic map iteration
// order below never affects the result.
func deriveChecker(deps map[string]*Dependency) completion.Checker {
	var inherited []completion.Checker
	for _, d := range deps {
		if d.InheritFrequency && d.Task.Checker != nil {
			inherited = append(inherited, d.Task.Checker)
		}
	}
	switch len(inherited) {
	case 0:
		return completion.IrregularChecker{}
	case 1:
		return inherited[0]
	default:
		return completion.NewComposite(completion.Strictest, inherited...)
	}
}

// Output returns the Task's DatasetMetadata, computed once at construction
// and stable across repeated calls.
func (t *Task) Output() *metadata.Metadata { return t.md }

// Complete reports whether the persisted output already satisfies
// TargetRange.
func (t *Task) Complete(ctx context.Context) (bool, error) {
	extent, ok, err := t.Engine.Range(ctx, t.md)
	if err != nil {
		return false, fmt.Errorf("graph: task %q: range: %w", t.Name, err)
	}
	var existing *timeutil.Extent
	if ok {
		existing = &extent
	}
	return t.Checker.IsComplete(t.TargetRange, existing)
}

// Read returns the persisted output restricted to TargetRange.
func (t *Task) Read(ctx context.Context) (engine.Payload, error) {
	return t.Engine.Read(ctx, t.md, &t.TargetRange)
}

// Run is idempotent: if the output is already complete it returns
// AlreadyComplete without invoking Function or writing anything. Otherwise
// it computes the missing range, pulls each dependency over its fetch
// range (from the dependency's own engine — "engine follows the metadata,
// not the task that references it"), invokes Function, and
// writes the result with the write mode the new payload calls for.
func (t *Task) Run(ctx context.Context) Result {
	if t.Static {
		return t.runStatic(ctx)
	}

	complete, err := t.Complete(ctx)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	if complete {
		return Result{Outcome: AlreadyComplete}
	}

	existingExtent, existingOK, err := t.Engine.Range(ctx, t.md)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("graph: task %q: range: %w", t.Name, err)}
	}

	missing := t.TargetRange
	if existingOK && !t.TargetRange.Start.After(existingExtent.Last) {
		missing = timeutil.TimeRange{Start: existingExtent.Last, End: t.TargetRange.End}
	}
	if missing.Empty() {
		return Result{Outcome: Incomplete, Reason: "missing range is empty but checker reports incomplete"}
	}

	payloads, err := t.fetchDependencies(ctx, missing)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	result, err := t.Function(ctx, Inputs{Payloads: payloads, Params: t.Params, TimeRange: missing})
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("graph: task %q: function: %w", t.Name, err)}
	}

	if err := t.write(ctx, existingExtent, existingOK, result); err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	return Result{Outcome: Success}
}

func (t *Task) runStatic(ctx context.Context) Result {
	exists, err := t.Engine.Exists(ctx, t.md)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	if exists {
		return Result{Outcome: AlreadyComplete}
	}

	// Static nodes read dependencies in full; there is no target or fetch
	// window to narrow them by.
	payloads := make(map[string]engine.Payload, len(t.Dependencies))
	for key, d := range t.Dependencies {
		p, err := d.Task.Engine.Read(ctx, d.Task.Output(), nil)
		if err != nil && !engine.IsNotFound(err) {
			return Result{Outcome: Failed, Err: fmt.Errorf("graph: task %q: dependency %q: %w", t.Name, key, err)}
		}
		payloads[key] = p
	}

	result, err := t.Function(ctx, Inputs{Payloads: payloads, Params: t.Params})
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("graph: task %q: function: %w", t.Name, err)}
	}
	if err := t.Engine.Replace(ctx, t.md, result); err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("graph: task %q: replace: %w", t.Name, err)}
	}
	return Result{Outcome: Success}
}

func (t *Task) fetchDependencies(ctx context.Context, missing timeutil.TimeRange) (map[string]engine.Payload, error) {
	payloads := make(map[string]engine.Payload, len(t.Dependencies))
	for key, d := range t.Dependencies {
		fetchRange := d.FetchRange(missing)
		p, err := d.Task.Engine.Read(ctx, d.Task.Output(), &fetchRange)
		if err != nil {
			if engine.IsNotFound(err) {
				payloads[key] = engine.Payload{}
				continue
			}
			return nil, fmt.Errorf("graph: task %q: dependency %q: %w", t.Name, key, err)
		}
		payloads[key] = p
	}
	return payloads, nil
}

// write picks append/merge/replace for the freshly computed payload:
// append when it strictly extends whatever is already stored, merge
// otherwise.
func (t *Task) write(ctx context.Context, existingExtent timeutil.Extent, existingOK bool, result engine.Payload) error {
	if len(result.Rows) == 0 {
		return nil
	}
	if !existingOK || result.Rows[0].Timestamp.After(existingExtent.Last) {
		if err := t.Engine.Append(ctx, t.md, result); err != nil {
			return fmt.Errorf("graph: task %q: append: %w", t.Name, err)
		}
		return nil
	}
	if err := t.Engine.Merge(ctx, t.md, result); err != nil {
		return fmt.Errorf("graph: task %q: merge: %w", t.Name, err)
	}
	return nil
}
