package runner

import (
	"bytes"
	"sort"

	"tsgraph/internal/graph"
	"tsgraph/internal/metadata"
)

// discover walks every target's predecessor metadata and returns the
// unique set of nodes (by hash) in dependency-before-dependent order
// (graph discovery plus topological order). Targets are
// processed in hash order first so that, combined with Walk's own
// post-order and per-hash dedup, the merged sequence is identical across
// runs given identical inputs (tie-breaking and determinism).
func discover(targets []*graph.Task) []metadata.Node {
	sorted := make([]*graph.Task, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool {
		return hashLess(sorted[i].Output().Hash(), sorted[j].Output().Hash())
	})

	seen := make(map[metadata.Hash]bool)
	var order []metadata.Node
	for _, t := range sorted {
		for _, n := range t.Output().Walk() {
			h := n.Hash()
			if seen[h] {
				continue
			}
			seen[h] = true
			order = append(order, n)
		}
	}
	return order
}

func hashLess(a, b metadata.Hash) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// tasksByHash indexes the full universe of constructed Tasks for this run
// by their output hash, so discovery can tell "a Task exists for this
// metadata" from "this metadata is a leaf assumption".
func tasksByHash(tasks []*graph.Task) map[metadata.Hash]*graph.Task {
	out := make(map[metadata.Hash]*graph.Task, len(tasks))
	for _, t := range tasks {
		out[t.Output().Hash()] = t
	}
	return out
}

// predecessorHashes returns n's direct predecessor hashes, regardless of
// whether n is a full Metadata or a Stub.
func predecessorHashes(n metadata.Node) []metadata.Hash {
	var preds []metadata.PredecessorEdge
	switch v := n.(type) {
	case *metadata.Metadata:
		preds = v.Predecessors
	case *metadata.Stub:
		preds = v.Predecessors
	default:
		return nil
	}
	out := make([]metadata.Hash, len(preds))
	for i, e := range preds {
		out[i] = e.Node.Hash()
	}
	return out
}
