package dag

// FindCycle returns the node IDs along one dependency cycle, with the first
// ID repeated at the end, or nil when the graph is acyclic.
//
// The scheduler does not need this to detect cycles: a cycle simply leaves
// its members Pending forever and the run ends CYCLE_OR_INCOMPLETE. FindCycle
// exists so that diagnostics and the validate command can name the culprits.
func (g *Graph) FindCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.order))
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range g.nodes[id].Dependents {
			switch color[child] {
			case white:
				if dfs(child) {
					return true
				}
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == child {
						cycle = append(append([]string{}, stack[i:]...), child)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// Acyclic reports whether the graph contains no dependency cycle.
func (g *Graph) Acyclic() bool { return g.FindCycle() == nil }
