package metadata

// HashRef is a Node that carries only a precomputed Hash, with none of the
// identity fields that would be needed to recompute it. It lets a
// document-store engine reconstruct a Stub's predecessor edges from a
// persisted list of predecessor hashes without re-fetching (or even being
// able to re-fetch) each predecessor's own content — exactly the
// "pulling a node's metadata must not transitively materialise the ancestor
// graph" requirement without forcing a full Metadata load.
type HashRef struct {
	H Hash
}

func (r HashRef) Hash() Hash { return r.H }
func (r HashRef) isNode()    {}
