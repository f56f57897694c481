package nodes

import (
	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/knowledge"
	"github.com/flowforge/workflowengine/llm"
)

// Dependencies bundles the external ports node implementations need. A nil
// Router or KnowledgePort is valid: the llm/knowledge-ingest node types then
// fail their Execute call with a descriptive error instead of panicking,
// so a registry can still be built (and every other node type used) in a
// deployment that hasn't wired one of those ports yet.
type Dependencies struct {
	Router        *llm.Router
	KnowledgePort knowledge.Port
}

// Register builds every built-in node definition and registers each into
// reg, returning the first registration error encountered (each node type
// tag must be unique, so this only fails on a programming error).
func Register(reg *engine.Registry, deps Dependencies) error {
	if err := registerTriggers(reg); err != nil {
		return err
	}

	defs := []engine.NodeDefinition{
		newLLMNode(deps.Router),
		newHTTPNode(),
		newTransformNode(),
		newCodeNode(),
		newDataCleanerNode(),
		newJSONValidatorNode(),
		newConditionNode(),
		newMemoryReadNode(),
		newMemoryWriteNode(),
		newEvaluationNode(),
		newControlNode(),
		newKnowledgeIngestNode(deps.KnowledgePort),
		newKnowledgeRetrieveNode(),
		newOutputNode(),
		newLogNode(),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
