package core

import "strings"

// Search returns a pruned forest containing the nodes whose name or
// description matches the query (case-insensitive substring) plus the
// ancestors needed to reach them. The input forest is not mutated: kept
// nodes are shallow copies with pruned child lists. An empty query returns
// the forest unchanged.
func Search(forest []*CategoryNode, query string) []*CategoryNode {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return forest
	}
	var pruned []*CategoryNode
	for _, root := range forest {
		if kept := pruneNode(root, q); kept != nil {
			pruned = append(pruned, kept)
		}
	}
	return pruned
}

// pruneNode keeps a node when it matches directly or any child survived
// pruning. Non-matching siblings without matching descendants are dropped.
func pruneNode(n *CategoryNode, q string) *CategoryNode {
	var kept []*CategoryNode
	for _, child := range n.Children {
		if k := pruneNode(child, q); k != nil {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 && !matches(n, q) {
		return nil
	}
	clone := *n
	clone.Children = kept
	return &clone
}

func matches(n *CategoryNode, q string) bool {
	return strings.Contains(strings.ToLower(n.Name), q) ||
		strings.Contains(strings.ToLower(n.Description), q)
}
