package campaign

// FindNextOfType walks downstream from startID along outgoing edges and
// returns the first reachable node of the requested type, depth-first in
// edge declaration order. There is no shortest-path guarantee: when a
// logic node forks, the first-declared branch is searched to exhaustion
// before the second. Returns nil when nothing reachable matches.
//
// Campaign graphs are expected to be acyclic, but the visited set makes
// termination unconditional if a cycle ever slips through the builder.
func FindNextOfType(nodes []Node, edges []Edge, startID string, t NodeType) *Node {
	return walk(nodes, edges, startID, t, downstream, map[string]bool{})
}

// FindUpstreamOfType mirrors FindNextOfType along incoming edges.
func FindUpstreamOfType(nodes []Node, edges []Edge, startID string, t NodeType) *Node {
	return walk(nodes, edges, startID, t, upstream, map[string]bool{})
}

type direction int

const (
	downstream direction = iota
	upstream
)

func walk(nodes []Node, edges []Edge, fromID string, t NodeType, dir direction, visited map[string]bool) *Node {
	if visited[fromID] {
		return nil
	}
	visited[fromID] = true

	for i := range edges {
		var nextID string
		switch {
		case dir == downstream && edges[i].Source == fromID:
			nextID = edges[i].Target
		case dir == upstream && edges[i].Target == fromID:
			nextID = edges[i].Source
		default:
			continue
		}

		var next *Node
		for j := range nodes {
			if nodes[j].ID == nextID {
				next = &nodes[j]
				break
			}
		}
		if next == nil {
			continue
		}
		if next.Type == t {
			return next
		}
		if found := walk(nodes, edges, nextID, t, dir, visited); found != nil {
			return found
		}
	}
	return nil
}
