package engine

// Wave is one topological level: a set of nodes whose parents have all been
// resolved by the end of the previous wave.
type Wave struct {
	Level int
	Nodes []string
}

// PlanWaves assigns each node a level L(n) = max(L(parent)+1) over its
// parents, defaulting to 0 for nodes with no parents, then groups nodes by
// level while preserving the given topological order within each level.
//
// order must already be a valid topological linearization (the output of
// ValidateDAG); PlanWaves does not itself detect cycles.
//
// Waves exist to expose parallelism potential to implementations and to the
// "scheduler.waves" knowledge entry; the reference engine still executes
// nodes sequentially in topological order within and across waves, so wave
// membership never changes observable step order.
func PlanWaves(order []string, edges []WorkflowEdge) []Wave {
	parents := make(map[string][]string)
	for _, e := range edges {
		parents[e.Target] = append(parents[e.Target], e.Source)
	}

	level := make(map[string]int, len(order))
	for _, id := range order {
		maxParentLevel := -1
		for _, p := range parents[id] {
			if l, ok := level[p]; ok && l > maxParentLevel {
				maxParentLevel = l
			}
		}
		level[id] = maxParentLevel + 1
	}

	maxLevel := -1
	for _, l := range level {
		if l > maxLevel {
			maxLevel = l
		}
	}

	waves := make([]Wave, maxLevel+1)
	for l := range waves {
		waves[l].Level = l
	}
	for _, id := range order {
		l := level[id]
		waves[l].Nodes = append(waves[l].Nodes, id)
	}

	return waves
}

// WaveSummary renders waves into the compact form stored under
// knowledge["scheduler.waves"] for observability.
func WaveSummary(waves []Wave) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(waves))
	for _, w := range waves {
		out = append(out, map[string]interface{}{
			"level": w.Level,
			"nodes": w.Nodes,
		})
	}
	return out
}
