package service

import (
	"github.com/Avi18971911/spanlife/pkg/quark"
	"github.com/Avi18971911/spanlife/pkg/state"
)

// TreeConstructorService rebuilds span trees from the spans subtree of a constructed store.
type TreeConstructorService struct {
}

func NewTreeConstructorService() *TreeConstructorService {
	return &TreeConstructorService{}
}

// ConstructTrees returns the root spans of every trace, traces and children in creation order.
// A span path that never held an interval, such as the placeholder of a dangling end, is left out.
func (tcs *TreeConstructorService) ConstructTrees(tree *quark.AttributeTree, intervals []state.Interval) []*TreeNode {
	byQuark := make(map[quark.Quark]state.Interval, len(intervals))
	for _, interval := range intervals {
		// the first interval of a quark is the span itself
		if _, ok := byQuark[interval.Quark]; !ok {
			byQuark[interval.Quark] = interval
		}
	}

	var roots []*TreeNode
	for _, traceQuark := range tree.Children(quark.Root) {
		for _, child := range tree.Children(traceQuark) {
			if tree.Name(child) != state.SpansAttribute {
				continue
			}
			traceID := tree.Name(traceQuark)
			for _, spanQuark := range tree.Children(child) {
				if node := tcs.constructNode(tree, byQuark, traceID, spanQuark, nil); node != nil {
					roots = append(roots, node)
				}
			}
		}
	}
	return roots
}

func (tcs *TreeConstructorService) constructNode(
	tree *quark.AttributeTree,
	byQuark map[quark.Quark]state.Interval,
	traceID string,
	q quark.Quark,
	parent *TreeNode,
) *TreeNode {
	interval, ok := byQuark[q]
	if !ok {
		return nil
	}
	node := &TreeNode{
		TraceID:  traceID,
		SpanID:   tree.Name(q),
		Quark:    q,
		Interval: interval,
		Parent:   parent,
	}
	for _, child := range tree.Children(q) {
		if childNode := tcs.constructNode(tree, byQuark, traceID, child, node); childNode != nil {
			node.Children = append(node.Children, childNode)
		}
	}
	return node
}

type TreeNode struct {
	TraceID  string
	SpanID   string
	Quark    quark.Quark
	Interval state.Interval
	Children []*TreeNode
	Parent   *TreeNode
}

// Walk visits node and its descendants depth first, passing the depth below node.
func (tn *TreeNode) Walk(visit func(node *TreeNode, depth int)) {
	tn.walk(visit, 0)
}

func (tn *TreeNode) walk(visit func(node *TreeNode, depth int), depth int) {
	visit(tn, depth)
	for _, child := range tn.Children {
		child.walk(visit, depth+1)
	}
}
