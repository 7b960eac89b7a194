package runner

import (
	"context"
	"fmt"
	"time"

	"tsgraph/internal/engine"
	"tsgraph/internal/graph"
	"tsgraph/internal/metadata"
)

// Runner is the topological executor. Tasks is the full
// universe of Tasks constructed for this run; Engines resolves a leaf
// assumption's owning engine by its metadata's engine_id, since a
// metadata-only ancestor carries no Task to ask.
type Runner struct {
	Tasks   []*graph.Task
	Engines map[string]engine.Engine

	// PerTaskTimeout, if non-zero, bounds a single Task.Run call; on breach
	// the node is reported Failed with a deadline-exceeded error and its
	// dependents become BlockedUpstream on timeout.
	PerTaskTimeout time.Duration
}

// Run executes targets serially, in deterministic topological order
// (the serial runner).
func (r *Runner) Run(ctx context.Context, targets []*graph.Task) (*Report, error) {
	if len(targets) == 0 {
		return newReport(), nil
	}
	byHash := tasksByHash(r.Tasks)
	order := discover(targets)
	report := newReport()

	for _, node := range order {
		if ctx.Err() != nil {
			report.Nodes[node.Hash()] = NodeReport{Hash: node.Hash(), Outcome: NodeCancelled}
			continue
		}
		predHashes := predecessorHashes(node)
		preds := make(map[metadata.Hash]NodeReport, len(predHashes))
		for _, ph := range predHashes {
			if pr, ok := report.Nodes[ph]; ok {
				preds[ph] = pr
			}
		}
		report.Nodes[node.Hash()] = r.evaluate(ctx, node, byHash, preds)
	}
	return report, nil
}

// evaluate computes one node's NodeReport: leaf assumption if no Task was
// constructed for it this run, otherwise the complete/blocked/run sequence
// of the topological order. predReports is a snapshot of this node's direct
// predecessors' already-finalised reports — passing a snapshot rather than
// the live, still-growing Report lets the parallel runner call evaluate
// concurrently from worker goroutines without touching a shared map.
func (r *Runner) evaluate(ctx context.Context, node metadata.Node, byHash map[metadata.Hash]*graph.Task, predReports map[metadata.Hash]NodeReport) NodeReport {
	h := node.Hash()
	task, ok := byHash[h]
	if !ok {
		return r.evaluateLeaf(ctx, node)
	}

	complete, err := task.Complete(ctx)
	if err != nil {
		return NodeReport{Hash: h, Name: task.Name, Outcome: NodeFailed, Err: err}
	}
	if complete {
		return NodeReport{Hash: h, Name: task.Name, Outcome: NodeSkipped}
	}

	for _, edge := range task.Output().Predecessors {
		pred, ok := predReports[edge.Node.Hash()]
		if !ok || !terminalOK(pred.Outcome) {
			return NodeReport{Hash: h, Name: task.Name, Outcome: NodeBlockedUpstream}
		}
	}

	runCtx := ctx
	cancel := func() {}
	if r.PerTaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.PerTaskTimeout)
	}
	res := task.Run(runCtx)
	timedOut := runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	cancel()
	if timedOut {
		return NodeReport{Hash: h, Name: task.Name, Outcome: NodeFailed, Err: fmt.Errorf("runner: task %q: %w", task.Name, context.DeadlineExceeded)}
	}

	switch res.Outcome {
	case graph.Success:
		return NodeReport{Hash: h, Name: task.Name, Outcome: NodeSuccess}
	case graph.AlreadyComplete:
		return NodeReport{Hash: h, Name: task.Name, Outcome: NodeSkipped}
	default:
		return NodeReport{Hash: h, Name: task.Name, Outcome: NodeFailed, Err: res.Err}
	}
}

// evaluateLeaf assumes a metadata-only ancestor is usable if its owning
// engine reports it exists; there is no constructed Task to ask for a
// checker, so completeness is never independently verified — only
// existence is (an assumed IrregularChecker when no owning
// checker is available, which for a never-constructed Task collapses to
// "exists").
func (r *Runner) evaluateLeaf(ctx context.Context, node metadata.Node) NodeReport {
	h := node.Hash()
	md, ok := node.(*metadata.Metadata)
	if !ok {
		return NodeReport{Hash: h, Outcome: NodeFailed, Err: fmt.Errorf("runner: leaf node %s carries no engine identity to check", h)}
	}

	eng := r.Engines[md.EngineID]
	if eng == nil {
		return NodeReport{Hash: h, Name: md.Name, Outcome: NodeFailed, Err: fmt.Errorf("runner: no engine registered for id %q (leaf %s)", md.EngineID, md.Name)}
	}
	exists, err := eng.Exists(ctx, md)
	if err != nil {
		return NodeReport{Hash: h, Name: md.Name, Outcome: NodeFailed, Err: err}
	}
	if !exists {
		return NodeReport{Hash: h, Name: md.Name, Outcome: NodeFailed, Err: fmt.Errorf("runner: leaf assumption %s (%s) does not exist in its engine", md.Name, h)}
	}
	return NodeReport{Hash: h, Name: md.Name, Outcome: NodeLeafAssumed}
}
