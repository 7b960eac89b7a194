package metadata

import "testing"

func mustNew(t *testing.T, name, version string, params map[string]interface{}, preds map[string]Node) *Metadata {
	t.Helper()
	md, err := New(name, version, false, "t", params, preds, "memory:test")
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	return md
}

func TestHashIndependentOfConstructionOrder(t *testing.T) {
	parentA := mustNew(t, "bars", "v1", map[string]interface{}{"symbol": "AAPL"}, nil)
	parentB := mustNew(t, "bars", "v1", map[string]interface{}{"symbol": "AAPL"}, nil)

	childParams1 := map[string]interface{}{"window": 20, "kind": "sma"}
	childParams2 := map[string]interface{}{"kind": "sma", "window": 20}

	child1 := mustNew(t, "ma", "v1", childParams1, map[string]Node{"price": parentA})
	child2 := mustNew(t, "ma", "v1", childParams2, map[string]Node{"price": parentB})

	if child1.Hash() != child2.Hash() {
		t.Fatal("hash must not depend on params map insertion order or object identity of equal predecessors")
	}
}

func TestStubHashMatchesFull(t *testing.T) {
	parent := mustNew(t, "bars", "v1", map[string]interface{}{"symbol": "AAPL"}, nil)
	child := mustNew(t, "ma", "v1", map[string]interface{}{"window": 20}, map[string]Node{"price": parent})

	stub := StubOf(child)
	if stub.Hash() != child.Hash() {
		t.Fatal("stub hash must equal the full metadata's hash")
	}

	// And the predecessor inside the stub must also itself be stubbed with a matching hash.
	if len(stub.Predecessors) != 1 {
		t.Fatalf("expected 1 predecessor, got %d", len(stub.Predecessors))
	}
	if stub.Predecessors[0].Node.Hash() != parent.Hash() {
		t.Fatal("stubbed predecessor hash mismatch")
	}
	if _, ok := stub.Predecessors[0].Node.(*Stub); !ok {
		t.Fatal("a Stub's predecessors must themselves be Stubs")
	}
}

func TestWalkVisitsEachDistinctNodeOnce(t *testing.T) {
	shared := mustNew(t, "bars", "v1", map[string]interface{}{"symbol": "AAPL"}, nil)
	left := mustNew(t, "ret", "v1", map[string]interface{}{"n": 1}, map[string]Node{"price": shared})
	right := mustNew(t, "vol", "v1", map[string]interface{}{"n": 2}, map[string]Node{"price": shared})
	top := mustNew(t, "combo", "v1", nil, map[string]Node{"a": left, "b": right})

	nodes := top.Walk()
	seen := map[Hash]int{}
	for _, n := range nodes {
		seen[n.Hash()]++
	}
	for h, count := range seen {
		if count != 1 {
			t.Fatalf("node %s visited %d times, want 1", h, count)
		}
	}
	if seen[shared.Hash()] != 1 {
		t.Fatal("shared predecessor must appear exactly once despite two parents")
	}
	// Post-order: top must be last.
	if nodes[len(nodes)-1].Hash() != top.Hash() {
		t.Fatal("expected post-order walk with top last")
	}
}

func TestReplacePredecessorIsFunctional(t *testing.T) {
	oldParent := mustNew(t, "bars", "v1", map[string]interface{}{"symbol": "AAPL"}, nil)
	newParent := mustNew(t, "bars", "v1", map[string]interface{}{"symbol": "MSFT"}, nil)
	child := mustNew(t, "ma", "v1", map[string]interface{}{"window": 20}, map[string]Node{"price": oldParent})

	updated, err := child.ReplacePredecessor("price", newParent)
	if err != nil {
		t.Fatal(err)
	}

	if child.Predecessors[0].Node.Hash() != oldParent.Hash() {
		t.Fatal("original metadata's predecessor must be unchanged")
	}
	if updated.Predecessors[0].Node.Hash() != newParent.Hash() {
		t.Fatal("replaced metadata must reference the new predecessor")
	}
	if updated.Hash() == child.Hash() {
		t.Fatal("replacing a predecessor must change the hash")
	}
}

func TestInvalidParameterIsFatal(t *testing.T) {
	type weird struct{ X int }
	_, err := New("x", "v1", false, "t", map[string]interface{}{"bad": weird{}}, nil, "memory:test")
	if err == nil {
		t.Fatal("expected InvalidParameter error for unnormalisable param")
	}
}

func TestTupleVsMapDistinguishedInIdentity(t *testing.T) {
	a := mustNew(t, "x", "v1", map[string]interface{}{"p": []int{1, 2}}, nil)
	b := mustNew(t, "x", "v1", map[string]interface{}{"p": map[string]interface{}{"0": 1, "1": 2}}, nil)
	if a.Hash() == b.Hash() {
		t.Fatal("tuple and map params must not collide in identity hash")
	}
}
