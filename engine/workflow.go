package engine

// WorkflowNode is one node of a persisted workflow, as loaded through the
// persistence port. Position and Config are opaque to the engine beyond the
// node type's own Validate/Execute.
type WorkflowNode struct {
	ID       string
	Type     string
	Label    string
	Position map[string]interface{}
	Config   NodeConfig
}

// WorkflowEdge connects two nodes. Condition selects which branch of a
// fan-out is taken; see MatchCondition.
type WorkflowEdge struct {
	ID        string
	Source    string
	Target    string
	Condition string
}

// Workflow is the minimal view of a persisted workflow the engine needs:
// its nodes and edges. Everything else (name, owner, version, timestamps)
// lives behind the persistence port.
type Workflow struct {
	ID    string
	Nodes []WorkflowNode
	Edges []WorkflowEdge
}
