package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"tsgraph/internal/completion"
	"tsgraph/internal/engine"
	"tsgraph/internal/graph"
	"tsgraph/internal/timeutil"
)

func ts(t *testing.T, s string) timeutil.Timestamp {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return timeutil.MustTimestamp(parsed)
}

func rangeOf(t *testing.T, start, end string) timeutil.TimeRange {
	return timeutil.TimeRange{Start: ts(t, start), End: ts(t, end)}
}

func okFunction(row engine.Row) graph.Function {
	return func(ctx context.Context, in graph.Inputs) (engine.Payload, error) {
		return engine.Payload{Rows: []engine.Row{row}}, nil
	}
}

func failFunction(err error) graph.Function {
	return func(ctx context.Context, in graph.Inputs) (engine.Payload, error) {
		return engine.Payload{}, err
	}
}

// TestBlockedUpstreamChain covers the case where A fails, so B and
// C never run.
func TestBlockedUpstreamChain(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z")

	var bRan, cRan bool

	a, err := graph.New(failFunction(errors.New("boom")), "a", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, eng)
	if err != nil {
		t.Fatalf("New a: %v", err)
	}
	bFn := func(ctx context.Context, in graph.Inputs) (engine.Payload, error) {
		bRan = true
		return engine.Payload{Rows: []engine.Row{{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 1.0}}}, nil
	}
	b, err := graph.New(bFn, "b", "v1", false, "timestamp", nil, map[string]*graph.Dependency{"a": graph.Lift(a)}, target, nil, eng)
	if err != nil {
		t.Fatalf("New b: %v", err)
	}
	cFn := func(ctx context.Context, in graph.Inputs) (engine.Payload, error) {
		cRan = true
		return engine.Payload{Rows: []engine.Row{{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 1.0}}}, nil
	}
	c, err := graph.New(cFn, "c", "v1", false, "timestamp", nil, map[string]*graph.Dependency{"b": graph.Lift(b)}, target, nil, eng)
	if err != nil {
		t.Fatalf("New c: %v", err)
	}

	r := &Runner{Tasks: []*graph.Task{a, b, c}, Engines: map[string]engine.Engine{eng.ID(): eng}}
	report, err := r.Run(context.Background(), []*graph.Task{c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	assertOutcome(t, report, a.Output().Hash(), NodeFailed)
	assertOutcome(t, report, b.Output().Hash(), NodeBlockedUpstream)
	assertOutcome(t, report, c.Output().Hash(), NodeBlockedUpstream)
	if bRan {
		t.Fatal("b's function should never have been invoked")
	}
	if cRan {
		t.Fatal("c's function should never have been invoked")
	}
}

func TestRunSerialHappyPath(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z")

	a, err := graph.New(okFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 1.0}), "a", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, eng)
	if err != nil {
		t.Fatalf("New a: %v", err)
	}
	b, err := graph.New(okFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 2.0}), "b", "v1", false, "timestamp", nil, map[string]*graph.Dependency{"a": graph.Lift(a)}, target, nil, eng)
	if err != nil {
		t.Fatalf("New b: %v", err)
	}

	r := &Runner{Tasks: []*graph.Task{a, b}, Engines: map[string]engine.Engine{eng.ID(): eng}}
	report, err := r.Run(context.Background(), []*graph.Task{b})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertOutcome(t, report, a.Output().Hash(), NodeSuccess)
	assertOutcome(t, report, b.Output().Hash(), NodeSuccess)

	// Re-running is idempotent: both nodes are now complete and skipped.
	report2, err := r.Run(context.Background(), []*graph.Task{b})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	assertOutcome(t, report2, a.Output().Hash(), NodeSkipped)
	assertOutcome(t, report2, b.Output().Hash(), NodeSkipped)
}

func TestRunParallelMatchesSerial(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z")

	a, _ := graph.New(okFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 1.0}), "a", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, eng)
	b, _ := graph.New(okFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 2.0}), "b", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, eng)
	cFn := okFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 3.0})
	c, err := graph.New(cFn, "c", "v1", false, "timestamp", nil, map[string]*graph.Dependency{"a": graph.Lift(a), "b": graph.Lift(b)}, target, nil, eng)
	if err != nil {
		t.Fatalf("New c: %v", err)
	}

	r := &Runner{Tasks: []*graph.Task{a, b, c}, Engines: map[string]engine.Engine{eng.ID(): eng}}
	report, err := r.RunParallel(context.Background(), []*graph.Task{c}, 4)
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	assertOutcome(t, report, a.Output().Hash(), NodeSuccess)
	assertOutcome(t, report, b.Output().Hash(), NodeSuccess)
	assertOutcome(t, report, c.Output().Hash(), NodeSuccess)
}

func TestLeafAssumption(t *testing.T) {
	parentEngine := engine.NewMemoryEngine("memory:parent")
	childEngine := engine.NewMemoryEngine("memory:child")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z")

	// parent is constructed (to get its metadata/hash) but deliberately
	// left out of the Runner's Tasks, and never Run: it stands in for a
	// metadata-only ancestor from a previous process.
	parent, err := graph.New(okFunction(engine.Row{}), "parent", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, parentEngine)
	if err != nil {
		t.Fatalf("New parent: %v", err)
	}
	if err := parentEngine.Append(context.Background(), parent.Output(), engine.Payload{Rows: []engine.Row{{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 9.0}}}); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	child, err := graph.New(okFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 1.0}), "child", "v1", false, "timestamp", nil, map[string]*graph.Dependency{"parent": graph.Lift(parent)}, target, nil, childEngine)
	if err != nil {
		t.Fatalf("New child: %v", err)
	}

	r := &Runner{
		Tasks:   []*graph.Task{child}, // parent intentionally absent
		Engines: map[string]engine.Engine{parentEngine.ID(): parentEngine, childEngine.ID(): childEngine},
	}
	report, err := r.Run(context.Background(), []*graph.Task{child})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertOutcome(t, report, parent.Output().Hash(), NodeLeafAssumed)
	assertOutcome(t, report, child.Output().Hash(), NodeSuccess)
}

func assertOutcome(t *testing.T, report *Report, h [32]byte, want NodeOutcome) {
	t.Helper()
	nr, ok := report.Nodes[h]
	if !ok {
		t.Fatalf("no report for hash %x", h)
	}
	if nr.Outcome != want {
		t.Fatalf("outcome = %v, want %v (err: %v)", nr.Outcome, want, nr.Err)
	}
}
