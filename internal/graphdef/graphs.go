// Package graphdef wires a small, concrete set of Tasks for cmd/tsgraphd
// and cmd/tsctl to operate on. A real deployment's dataset graph is
// defined in Go code the way this package demonstrates: there is no
// calendar-construction library or graph-description DSL in scope, so
// there is no way to load an arbitrary graph from config; the graph is
// compiled in rather than loaded from a plugin registry.
package graphdef

import (
	"context"
	"time"

	"tsgraph/internal/completion"
	"tsgraph/internal/engine"
	"tsgraph/internal/graph"
	"tsgraph/internal/timeutil"
)

// Build constructs the demonstration graph: a raw daily-close price feed
// (leaf, calendar checker) and a derived 7-day moving average that
// depends on it with a 7-day lookback, both bound to eng and scoped to
// targetRange. It returns every Task by name so a caller can look one up
// for Runner.Run or Runner.Plan.
func Build(eng engine.Engine, version string, targetRange timeutil.TimeRange) (map[string]*graph.Task, error) {
	cal := timeutil.NewBusinessDayCalendar(time.UTC, 21, 0)

	rawFn := func(ctx context.Context, in graph.Inputs) (engine.Payload, error) {
		// A real deployment replaces this with a market-data fetch; the
		// demonstration graph synthesizes one row per calendar session so
		// the pipeline is runnable without external collaborators.
		rows := make([]engine.Row, 0)
		for _, evt := range cal.EventsIn(in.TimeRange) {
			rows = append(rows, engine.Row{Timestamp: evt, Value: 0.0})
		}
		return engine.Payload{Rows: rows}, nil
	}

	raw, err := graph.New(rawFn, "prices.daily_close", version, false, "timestamp", nil,
		nil, targetRange, completion.NewCalendarChecker(cal), eng)
	if err != nil {
		return nil, err
	}

	movingAvgFn := func(ctx context.Context, in graph.Inputs) (engine.Payload, error) {
		source := in.Payloads["raw"].Rows
		window := 7
		rows := make([]engine.Row, 0, len(source))
		for i := range source {
			start := i - window + 1
			if start < 0 {
				continue
			}
			var sum float64
			for _, r := range source[start : i+1] {
				v, _ := r.Value.(float64)
				sum += v
			}
			rows = append(rows, engine.Row{Timestamp: source[i].Timestamp, Value: sum / float64(window)})
		}
		return engine.Payload{Rows: rows}, nil
	}

	movingAvg, err := graph.New(movingAvgFn, "prices.7d_moving_avg", version, false, "timestamp",
		map[string]interface{}{"window_days": int64(7)},
		map[string]*graph.Dependency{"raw": {Task: raw, Lookback: 7 * 24 * time.Hour, InheritFrequency: true}},
		targetRange, nil, eng)
	if err != nil {
		return nil, err
	}

	return map[string]*graph.Task{
		raw.Name:       raw,
		movingAvg.Name: movingAvg,
	}, nil
}
