// Package metadata implements DatasetMetadata: the immutable, content-addressed
// identity of a dataset node, embedding its predecessor graph by value.
package metadata

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"tsgraph/internal/param"
)

// ErrInvalidParameter is returned when a metadata's params cannot be
// normalised or hashed. Construction failure is fatal.
var ErrInvalidParameter = errors.New("metadata: invalid parameter")

// Hash is a 32-byte content digest of a DatasetMetadata (or its Stub).
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Metadata is the immutable identity of a dataset node. Predecessors are
// embedded by value so the whole graph is a single hashable tree.
type Metadata struct {
	Name         string
	Version      string
	Static       bool
	TimeLevel    string // empty/unused when Static
	Params       param.Value // always KindMap
	Predecessors []PredecessorEdge
	EngineID     string

	hash    Hash
	hashSet bool
}

// PredecessorEdge names one predecessor within a parent-name-sorted edge list.
// A slice (not a map) so the canonical encoding doesn't need to re-derive
// sort order from a Go map with no iteration guarantee.
type PredecessorEdge struct {
	Key  string
	Node Node
}

// Node is anything with a stable Hash and the shape needed to walk and
// re-serialise the predecessor graph: both Metadata and Stub implement it,
// which is what lets a Stub stand in for an unmaterialised ancestor without
// changing the hash of anything that references it.
type Node interface {
	Hash() Hash
	isNode()
}

// New constructs a DatasetMetadata, normalising params and validating that
// every predecessor is acyclic-safe (no predecessor may reference a node
// whose hash equals an ancestor's hash already on the current construction
// path — enforced by the caller supplying only already-built Nodes, which by
// construction cannot reference something not yet built).
func New(name, version string, static bool, timeLevel string, params map[string]interface{}, predecessors map[string]Node, engineID string) (*Metadata, error) {
	normParams, err := param.NormaliseMap(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParameter, err)
	}

	keys := make([]string, 0, len(predecessors))
	for k := range predecessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	edges := make([]PredecessorEdge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, PredecessorEdge{Key: k, Node: predecessors[k]})
	}

	md := &Metadata{
		Name:         name,
		Version:      version,
		Static:       static,
		TimeLevel:    timeLevel,
		Params:       normParams,
		Predecessors: edges,
		EngineID:      engineID,
	}
	md.hash = computeHash(md.Name, md.Version, md.Static, md.TimeLevel, md.Params, md.Predecessors, md.EngineID)
	md.hashSet = true
	return md, nil
}

func (md *Metadata) isNode() {}

// Hash returns the stable content digest. Independent of construction order,
// map insertion order, and of whether predecessors are full Metadata or Stubs
// (identity, not content).
func (md *Metadata) Hash() Hash {
	if !md.hashSet {
		md.hash = computeHash(md.Name, md.Version, md.Static, md.TimeLevel, md.Params, md.Predecessors, md.EngineID)
		md.hashSet = true
	}
	return md.hash
}

// Equals reports full structural equality, including the predecessor subgraph.
func (md *Metadata) Equals(other *Metadata) bool {
	if other == nil {
		return false
	}
	return md.Hash() == other.Hash()
}

// Walk returns the predecessor graph in depth-first post-order, visiting each
// distinct node once by hash.
func (md *Metadata) Walk() []Node {
	seen := make(map[Hash]bool)
	var out []Node
	var visit func(n Node)
	visit = func(n Node) {
		h := n.Hash()
		if seen[h] {
			return
		}
		var preds []PredecessorEdge
		switch v := n.(type) {
		case *Metadata:
			preds = v.Predecessors
		case *Stub:
			preds = v.Predecessors
		}
		for _, e := range preds {
			visit(e.Node)
		}
		seen[h] = true
		out = append(out, n)
	}
	visit(md)
	return out
}

// ReplacePredecessor returns a new Metadata with the predecessor named key
// swapped for newNode. md itself, and its own predecessors map, are
// unmodified (a functional update).
func (md *Metadata) ReplacePredecessor(key string, newNode Node) (*Metadata, error) {
	found := false
	edges := make([]PredecessorEdge, len(md.Predecessors))
	for i, e := range md.Predecessors {
		if e.Key == key {
			edges[i] = PredecessorEdge{Key: key, Node: newNode}
			found = true
		} else {
			edges[i] = e
		}
	}
	if !found {
		return nil, fmt.Errorf("metadata: no predecessor named %q", key)
	}
	out := &Metadata{
		Name:         md.Name,
		Version:      md.Version,
		Static:       md.Static,
		TimeLevel:    md.TimeLevel,
		Params:       md.Params,
		Predecessors: edges,
		EngineID:     md.EngineID,
	}
	out.hash = computeHash(out.Name, out.Version, out.Static, out.TimeLevel, out.Params, out.Predecessors, out.EngineID)
	out.hashSet = true
	return out, nil
}

func computeHash(name, version string, static bool, timeLevel string, params param.Value, predecessors []PredecessorEdge, engineID string) Hash {
	h := sha256.New()
	writeString(h, name)
	writeString(h, version)
	if static {
		writeByte(h, 1)
	} else {
		writeByte(h, 0)
	}
	writeString(h, timeLevel)
	param.WriteCanonical(h, params)
	writeUint64(h, uint64(len(predecessors)))
	for _, e := range predecessors {
		writeString(h, e.Key)
		ph := e.Node.Hash()
		h.Write(ph[:])
	}
	writeString(h, engineID)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
