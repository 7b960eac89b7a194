package runner

import (
	"context"

	"tsgraph/internal/graph"
	"tsgraph/internal/metadata"
)

// RunParallel executes targets with a pool of workers workers, dispatching
// a node as soon as every direct predecessor it has in this run's graph has
// reported a terminal outcome. Dispatch and
// bookkeeping (indegree counts, the growing Report) all live on the calling
// goroutine; only task.Complete/task.Run execute concurrently, bounded by
// a semaphore-gated worker pool.
func (r *Runner) RunParallel(ctx context.Context, targets []*graph.Task, workers int) (*Report, error) {
	if workers <= 0 {
		workers = 1
	}
	if len(targets) == 0 {
		return newReport(), nil
	}

	byHash := tasksByHash(r.Tasks)
	order := discover(targets)
	report := newReport()

	nodeByHash := make(map[metadata.Hash]metadata.Node, len(order))
	for _, n := range order {
		nodeByHash[n.Hash()] = n
	}

	indegree := make(map[metadata.Hash]int, len(order))
	dependents := make(map[metadata.Hash][]metadata.Hash, len(order))
	for _, n := range order {
		h := n.Hash()
		for _, ph := range predecessorHashes(n) {
			if _, known := nodeByHash[ph]; known {
				indegree[h]++
				dependents[ph] = append(dependents[ph], h)
			}
		}
	}

	type outcome struct {
		hash metadata.Hash
		rep  NodeReport
	}
	results := make(chan outcome, len(order))
	sem := make(chan struct{}, workers)

	dispatch := func(h metadata.Hash) {
		node := nodeByHash[h]
		predHashes := predecessorHashes(node)
		preds := make(map[metadata.Hash]NodeReport, len(predHashes))
		for _, ph := range predHashes {
			if pr, ok := report.Nodes[ph]; ok {
				preds[ph] = pr
			}
		}

		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			var rep NodeReport
			if ctx.Err() != nil {
				rep = NodeReport{Hash: h, Outcome: NodeCancelled}
			} else {
				rep = r.evaluate(ctx, node, byHash, preds)
			}
			results <- outcome{hash: h, rep: rep}
		}()
	}

	remaining := len(order)
	for _, n := range order {
		if indegree[n.Hash()] == 0 {
			dispatch(n.Hash())
		}
	}

	for remaining > 0 {
		out := <-results
		remaining--
		report.Nodes[out.hash] = out.rep
		for _, depHash := range dependents[out.hash] {
			indegree[depHash]--
			if indegree[depHash] == 0 {
				dispatch(depHash)
			}
		}
	}

	return report, nil
}
