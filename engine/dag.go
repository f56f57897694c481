package engine

// ValidationOutcome is the result of running the DAG validator over a
// workflow's nodes and edges.
type ValidationOutcome struct {
	Valid          bool
	ExecutionOrder []string
	Errors         []string
}

// ValidateDAG checks graph integrity and produces a topological
// linearization of the nodes.
//
// It rejects edges whose endpoints are not node IDs, rejects self-loops,
// and runs Kahn's algorithm to detect cycles. When multiple nodes have
// in-degree zero at the same point, the tie-break is insertion order of
// nodes (the order nodes[] was given in), not ID or label. ValidateDAG is
// pure: it never mutates its inputs and always returns, even on a cyclic
// or malformed graph.
func ValidateDAG(nodes []WorkflowNode, edges []WorkflowEdge) ValidationOutcome {
	var errs []string

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			errs = append(errs, "duplicate node id: "+n.ID)
			continue
		}
		index[n.ID] = i
	}

	children := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}

	for _, e := range edges {
		if _, ok := index[e.Source]; !ok {
			errs = append(errs, "edge source is not a node: "+e.Source)
			continue
		}
		if _, ok := index[e.Target]; !ok {
			errs = append(errs, "edge target is not a node: "+e.Target)
			continue
		}
		if e.Source == e.Target {
			errs = append(errs, "self-loop not allowed: "+e.Source)
			continue
		}
		children[e.Source] = append(children[e.Source], e.Target)
		inDegree[e.Target]++
	}

	if len(errs) > 0 {
		return ValidationOutcome{Valid: false, ExecutionOrder: nil, Errors: errs}
	}

	// Kahn's algorithm, seeding the ready queue in nodes[] insertion order
	// so tie-breaks among simultaneous in-degree-zero nodes are deterministic.
	remaining := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		remaining[k] = v
	}

	var queue []string
	for _, n := range nodes {
		if remaining[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, child := range children[id] {
			remaining[child]--
			if remaining[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(nodes) {
		return ValidationOutcome{
			Valid:          false,
			ExecutionOrder: []string{},
			Errors:         []string{"cycle detected in workflow graph"},
		}
	}

	return ValidationOutcome{Valid: true, ExecutionOrder: order, Errors: nil}
}
