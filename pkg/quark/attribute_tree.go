package quark

import "strings"

// Quark is a stable integer handle to one node of the attribute namespace.
type Quark int

// Root is the implicit parent of every top-level attribute.
const Root Quark = -1

// PathResolver maps (parent, segment) pairs to quarks, creating them on demand.
// Handles are never renamed or removed during a construction run.
type PathResolver interface {
	GetOrCreate(parent Quark, segment string) Quark
}

type node struct {
	name     string
	parent   Quark
	children []Quark
}

type childKey struct {
	parent  Quark
	segment string
}

// AttributeTree is an append-only PathResolver. Quarks are allocated densely from 0 in creation order.
// Not safe for concurrent writers.
type AttributeTree struct {
	nodes    []node
	index    map[childKey]Quark
	topLevel []Quark
}

func NewAttributeTree() *AttributeTree {
	return &AttributeTree{
		index: make(map[childKey]Quark),
	}
}

func (at *AttributeTree) GetOrCreate(parent Quark, segment string) Quark {
	key := childKey{parent: parent, segment: segment}
	if q, ok := at.index[key]; ok {
		return q
	}
	q := Quark(len(at.nodes))
	at.nodes = append(at.nodes, node{name: segment, parent: parent})
	at.index[key] = q
	if parent == Root {
		at.topLevel = append(at.topLevel, q)
	} else {
		at.nodes[parent].children = append(at.nodes[parent].children, q)
	}
	return q
}

// GetOrCreatePath resolves every segment in turn starting from parent.
func (at *AttributeTree) GetOrCreatePath(parent Quark, segments ...string) Quark {
	q := parent
	for _, segment := range segments {
		q = at.GetOrCreate(q, segment)
	}
	return q
}

// Find returns the quark of an absolute path without creating anything.
func (at *AttributeTree) Find(segments ...string) (Quark, bool) {
	q := Root
	for _, segment := range segments {
		next, ok := at.index[childKey{parent: q, segment: segment}]
		if !ok {
			return Root, false
		}
		q = next
	}
	return q, len(segments) > 0
}

func (at *AttributeTree) Contains(q Quark) bool {
	return q >= 0 && int(q) < len(at.nodes)
}

func (at *AttributeTree) Name(q Quark) string {
	if !at.Contains(q) {
		return ""
	}
	return at.nodes[q].name
}

func (at *AttributeTree) Parent(q Quark) Quark {
	if !at.Contains(q) {
		return Root
	}
	return at.nodes[q].parent
}

// Children returns the direct children of q in creation order. Root lists the top-level attributes.
func (at *AttributeTree) Children(q Quark) []Quark {
	var children []Quark
	if q == Root {
		children = at.topLevel
	} else if at.Contains(q) {
		children = at.nodes[q].children
	}
	out := make([]Quark, len(children))
	copy(out, children)
	return out
}

// Path returns the segments from the top level down to q.
func (at *AttributeTree) Path(q Quark) []string {
	var path []string
	for cur := q; at.Contains(cur); cur = at.nodes[cur].parent {
		path = append(path, at.nodes[cur].name)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func (at *AttributeTree) FullPath(q Quark) string {
	return strings.Join(at.Path(q), "/")
}

// Depth is the number of segments in the path of q.
func (at *AttributeTree) Depth(q Quark) int {
	depth := 0
	for cur := q; at.Contains(cur); cur = at.nodes[cur].parent {
		depth++
	}
	return depth
}

// IsDescendant reports whether q lies in the subtree rooted at ancestor, ancestor included.
func (at *AttributeTree) IsDescendant(q Quark, ancestor Quark) bool {
	if ancestor == Root {
		return at.Contains(q)
	}
	for cur := q; at.Contains(cur); cur = at.nodes[cur].parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

func (at *AttributeTree) Len() int {
	return len(at.nodes)
}
