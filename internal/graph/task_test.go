package graph

import (
	"context"
	"testing"
	"time"

	"tsgraph/internal/completion"
	"tsgraph/internal/engine"
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

func constFunction(rows ...engine.Row) Function {
	return func(ctx context.Context, in Inputs) (engine.Payload, error) {
		return engine.Payload{Rows: rows}, nil
	}
}

func TestTaskRunWritesAndBecomesComplete(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-01-03T00:00:00Z")

	task, err := New(
		constFunction(engine.Row{Timestamp: ts(t, "2020-01-02T00:00:00Z"), Value: 1.0}),
		"bars", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, eng,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	complete, err := task.Complete(context.Background())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if complete {
		t.Fatal("expected incomplete before run")
	}

	res := task.Run(context.Background())
	if res.Outcome != Success {
		t.Fatalf("Run: got %v (%v)", res.Outcome, res.Err)
	}

	complete, err = task.Complete(context.Background())
	if err != nil {
		t.Fatalf("Complete after run: %v", err)
	}
	if !complete {
		t.Fatal("expected complete after run")
	}

	// Idempotent: a second Run is a no-op that reports AlreadyComplete.
	res = task.Run(context.Background())
	if res.Outcome != AlreadyComplete {
		t.Fatalf("second Run: got %v", res.Outcome)
	}
}

// TestDependencyFetchRange covers a 30-day lookback
// against target [2020-02-01, 2020-02-05) fetches [2020-01-02, 2020-02-05)
// from the parent.
func TestDependencyFetchRange(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-02-05T00:00:00Z")

	parent, err := New(constFunction(), "parent", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, eng)
	if err != nil {
		t.Fatalf("New parent: %v", err)
	}

	dep := &Dependency{Task: parent, Lookback: 30 * 24 * time.Hour, InheritFrequency: true}
	childTarget := rangeOf(t, "2020-02-01T00:00:00Z", "2020-02-05T00:00:00Z")

	got := dep.FetchRange(childTarget)
	want := rangeOf(t, "2020-01-02T00:00:00Z", "2020-02-05T00:00:00Z")
	if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Fatalf("FetchRange = %s, want %s", got, want)
	}
}

func TestTaskDependencyReadOverFetchRange(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	parentTarget := rangeOf(t, "2020-01-01T00:00:00Z", "2020-02-05T00:00:00Z")

	parent, err := New(
		constFunction(engine.Row{Timestamp: ts(t, "2020-02-01T00:00:00Z"), Value: 1.0}),
		"parent", "v1", false, "timestamp", nil, nil, parentTarget, completion.IrregularChecker{}, eng,
	)
	if err != nil {
		t.Fatalf("New parent: %v", err)
	}
	if res := parent.Run(context.Background()); res.Outcome != Success {
		t.Fatalf("parent Run: %v (%v)", res.Outcome, res.Err)
	}

	var gotRows int
	childFn := func(ctx context.Context, in Inputs) (engine.Payload, error) {
		gotRows = len(in.Payloads["parent"].Rows)
		return engine.Payload{Rows: []engine.Row{{Timestamp: ts(t, "2020-02-04T00:00:00Z"), Value: 2.0}}}, nil
	}

	childTarget := rangeOf(t, "2020-02-01T00:00:00Z", "2020-02-05T00:00:00Z")
	dep := &Dependency{Task: parent, Lookback: 30 * 24 * time.Hour, InheritFrequency: true}

	child, err := New(childFn, "child", "v1", false, "timestamp", nil, map[string]*Dependency{"parent": dep}, childTarget, nil, eng)
	if err != nil {
		t.Fatalf("New child: %v", err)
	}

	if res := child.Run(context.Background()); res.Outcome != Success {
		t.Fatalf("child Run: %v (%v)", res.Outcome, res.Err)
	}
	if gotRows != 1 {
		t.Fatalf("expected parent payload to carry 1 row within fetch range, got %d", gotRows)
	}
}

func TestTaskEngineBranching(t *testing.T) {
	e1 := engine.NewMemoryEngine("memory:e1")
	e2 := engine.NewMemoryEngine("memory:e2")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z")

	parent, err := New(constFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 1.0}), "parent", "v1", false, "timestamp", nil, nil, target, completion.IrregularChecker{}, e1)
	if err != nil {
		t.Fatalf("New parent: %v", err)
	}

	child, err := New(constFunction(engine.Row{Timestamp: ts(t, "2020-01-01T01:00:00Z"), Value: 2.0}), "child", "v1", false, "timestamp", nil, map[string]*Dependency{"parent": Lift(parent)}, target, nil, e2)
	if err != nil {
		t.Fatalf("New child: %v", err)
	}

	if child.Output().EngineID != e2.ID() {
		t.Fatalf("child engine_id = %q, want %q", child.Output().EngineID, e2.ID())
	}

	if res := child.Run(context.Background()); res.Outcome != Success {
		t.Fatalf("child Run: %v (%v)", res.Outcome, res.Err)
	}

	exists2, _ := e2.Exists(context.Background(), child.Output())
	exists1, _ := e1.Exists(context.Background(), child.Output())
	if !exists2 {
		t.Fatal("expected child output to exist in e2")
	}
	if exists1 {
		t.Fatal("expected child output to not exist in e1")
	}
}

func TestDeriveCheckerStrictestComposite(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	target := rangeOf(t, "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z")

	p1, err := New(constFunction(), "p1", "v1", false, "timestamp", nil, nil, target, nil, eng)
	if err != nil {
		t.Fatalf("New p1: %v", err)
	}
	p2, err := New(constFunction(), "p2", "v1", false, "timestamp", nil, nil, target, nil, eng)
	if err != nil {
		t.Fatalf("New p2: %v", err)
	}

	deps := map[string]*Dependency{"a": Lift(p1), "b": Lift(p2)}
	child, err := New(constFunction(), "child", "v1", false, "timestamp", nil, deps, target, nil, eng)
	if err != nil {
		t.Fatalf("New child: %v", err)
	}

	if _, ok := child.Checker.(*completion.CompositeChecker); !ok {
		t.Fatalf("expected CompositeChecker, got %T", child.Checker)
	}
}
