package core

import (
	"fmt"
	"sort"
)

// PathSeparator joins ancestor names into a full path. Consumers split on
// this exact token, so it is part of the wire contract.
const PathSeparator = " / "

// CategoryNode wraps a CategoryRecord with its linked children and the
// annotations computed by Resolve. Children are ordered by ascending id so
// that forest output and pagination are reproducible across calls.
type CategoryNode struct {
	CategoryRecord

	Children []*CategoryNode

	// FullPath and DescendantIDs are populated by Resolve after a
	// successful build. DescendantIDs includes the node's own id.
	FullPath      string
	DescendantIDs map[int64]struct{}
}

// BuildForest links a flat snapshot of category rows into a forest.
//
// Records are indexed by id in one pass; each record attaches to its parent
// when the parent exists in the same snapshot and is promoted to a root
// otherwise. Duplicate ids and parent cycles (including self references)
// reject the entire input with no partial forest.
func BuildForest(records []CategoryRecord) ([]*CategoryNode, error) {
	if len(records) == 0 {
		return nil, nil
	}

	index := make(map[int64]*CategoryNode, len(records))
	for _, rec := range records {
		if _, dup := index[rec.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, rec.ID)
		}
		index[rec.ID] = &CategoryNode{CategoryRecord: rec}
	}

	// Walk every parent chain before linking anything. Reaching an already
	// visited id means the chain loops; a missing parent ends the chain.
	for _, rec := range records {
		visited := make(map[int64]struct{})
		id := rec.ID
		for {
			visited[id] = struct{}{}
			node := index[id]
			if node.ParentID == nil {
				break
			}
			parentID := *node.ParentID
			if _, ok := index[parentID]; !ok {
				break
			}
			if _, seen := visited[parentID]; seen {
				return nil, fmt.Errorf("%w: id %d", ErrCycleDetected, parentID)
			}
			id = parentID
		}
	}

	var roots []*CategoryNode
	for _, rec := range records {
		node := index[rec.ID]
		if rec.ParentID != nil {
			if parent, ok := index[*rec.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
			// Declared parent missing from the snapshot: promoted to root.
		}
		roots = append(roots, node)
	}

	sortByID(roots)
	for _, node := range index {
		sortByID(node.Children)
	}
	return roots, nil
}

func sortByID(nodes []*CategoryNode) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

// Resolve annotates FullPath and DescendantIDs for every node under root
// in a single post-order pass. Call it once per root after BuildForest.
func Resolve(root *CategoryNode) {
	resolveNode(root, "")
}

// ResolveForest resolves every root of a built forest.
func ResolveForest(forest []*CategoryNode) {
	for _, root := range forest {
		Resolve(root)
	}
}

func resolveNode(n *CategoryNode, prefix string) {
	if prefix == "" {
		n.FullPath = n.Name
	} else {
		n.FullPath = prefix + PathSeparator + n.Name
	}
	n.DescendantIDs = map[int64]struct{}{n.ID: {}}
	for _, child := range n.Children {
		resolveNode(child, n.FullPath)
		for id := range child.DescendantIDs {
			n.DescendantIDs[id] = struct{}{}
		}
	}
}

// FindNode returns the node with the given id anywhere in the forest, or
// nil when absent.
func FindNode(forest []*CategoryNode, id int64) *CategoryNode {
	for _, root := range forest {
		if found := findNode(root, id); found != nil {
			return found
		}
	}
	return nil
}

func findNode(n *CategoryNode, id int64) *CategoryNode {
	if n.ID == id {
		return n
	}
	for _, child := range n.Children {
		if found := findNode(child, id); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits every node of the forest depth-first, parents before children.
func Walk(forest []*CategoryNode, visit func(*CategoryNode)) {
	for _, root := range forest {
		walkNode(root, visit)
	}
}

func walkNode(n *CategoryNode, visit func(*CategoryNode)) {
	visit(n)
	for _, child := range n.Children {
		walkNode(child, visit)
	}
}
