package graphdef

import (
	"context"
	"testing"
	"time"

	"tsgraph/internal/engine"
	"tsgraph/internal/graph"
	"tsgraph/internal/runner"
	"tsgraph/internal/timeutil"
)

func TestBuildAndRun(t *testing.T) {
	eng := engine.NewMemoryEngine("memory:test")
	target := timeutil.TimeRange{
		Start: timeutil.MustTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		End:   timeutil.MustTimestamp(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
	}

	tasks, err := Build(eng, "v1", target)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	all := make([]*graph.Task, 0, len(tasks))
	for _, task := range tasks {
		all = append(all, task)
	}
	rnr := &runner.Runner{Tasks: all, Engines: map[string]engine.Engine{eng.ID(): eng}}

	report, err := rnr.Run(context.Background(), []*graph.Task{tasks["prices.7d_moving_avg"]})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out, ok := report.Outcome(tasks["prices.daily_close"].Output().Hash()); !ok || out != runner.NodeSuccess {
		t.Fatalf("raw task outcome = %v, ok=%v", out, ok)
	}
	if out, ok := report.Outcome(tasks["prices.7d_moving_avg"].Output().Hash()); !ok || out != runner.NodeSuccess {
		t.Fatalf("moving avg outcome = %v, ok=%v", out, ok)
	}
}
