package metadata

import "tsgraph/internal/param"

// Stub is a DatasetMetadata whose predecessors are themselves Stubs: it
// carries the same identity fields as the full Metadata but never
// transitively materialises the ancestor graph. Its hash equals the hash of
// the full Metadata it refers to, because the hash is computed
// from the same fields in the same way, and a predecessor edge only ever
// contributes its Node's Hash() — never its full content — to the parent's
// digest.
type Stub struct {
	Name         string
	Version      string
	Static       bool
	TimeLevel    string
	Params       param.Value
	Predecessors []PredecessorEdge
	EngineID     string
}

func (s *Stub) isNode() {}

// Hash returns the same digest the full Metadata would produce.
func (s *Stub) Hash() Hash {
	return computeHash(s.Name, s.Version, s.Static, s.TimeLevel, s.Params, s.Predecessors, s.EngineID)
}

// StubOf builds the stub view of md: same identity fields, predecessors
// recursively stubbed.
func StubOf(md *Metadata) *Stub {
	edges := make([]PredecessorEdge, len(md.Predecessors))
	for i, e := range md.Predecessors {
		var stubNode Node
		switch v := e.Node.(type) {
		case *Metadata:
			stubNode = StubOf(v)
		case *Stub:
			stubNode = v
		}
		edges[i] = PredecessorEdge{Key: e.Key, Node: stubNode}
	}
	return &Stub{
		Name:         md.Name,
		Version:      md.Version,
		Static:       md.Static,
		TimeLevel:    md.TimeLevel,
		Params:       md.Params,
		Predecessors: edges,
		EngineID:     md.EngineID,
	}
}
