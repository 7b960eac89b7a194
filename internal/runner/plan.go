package runner

import (
	"context"

	"tsgraph/internal/graph"
	"tsgraph/internal/metadata"
)

// PlanStep is one node's dry-run disposition: whether Run would invoke it
// and why.
type PlanStep struct {
	Hash       metadata.Hash
	Name       string
	WouldRun   bool
	Reason     string
	IsLeaf     bool
}

// Plan reports, without writing anything or invoking any user function,
// what a real Run over targets would do to each node: skip it (already
// complete, or a leaf assumption that exists), or run it. Unlike Run, a
// failing Complete check on one node does not block evaluation of the
// others, since nothing here executes.
func (r *Runner) Plan(ctx context.Context, targets []*graph.Task) ([]PlanStep, error) {
	byHash := tasksByHash(r.Tasks)
	order := discover(targets)
	steps := make([]PlanStep, 0, len(order))

	for _, node := range order {
		h := node.Hash()
		task, ok := byHash[h]
		if !ok {
			md, isMD := node.(*metadata.Metadata)
			step := PlanStep{Hash: h, IsLeaf: true}
			if isMD {
				step.Name = md.Name
				if eng := r.Engines[md.EngineID]; eng != nil {
					exists, err := eng.Exists(ctx, md)
					switch {
					case err != nil:
						step.Reason = "leaf existence check failed: " + err.Error()
					case exists:
						step.Reason = "leaf assumption satisfied"
					default:
						step.WouldRun = false
						step.Reason = "leaf assumption missing from its engine"
					}
				} else {
					step.Reason = "no engine registered for leaf's engine_id"
				}
			}
			steps = append(steps, step)
			continue
		}

		complete, err := task.Complete(ctx)
		step := PlanStep{Hash: h, Name: task.Name}
		switch {
		case err != nil:
			step.Reason = "completion check failed: " + err.Error()
		case complete:
			step.Reason = "already complete"
		default:
			step.WouldRun = true
			step.Reason = "target range not yet covered"
		}
		steps = append(steps, step)
	}
	return steps, nil
}
