package nodes

import (
	"context"

	"github.com/flowforge/workflowengine/engine"
)

// newOutputNode builds the "output" node definition: a terminal marker that
// passes its input through unchanged. Workflows route their final result to
// one or more output nodes; the node itself performs no work.
func newOutputNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type: "output",
		Validate: func(engine.NodeConfig) engine.ValidationResult {
			return valid()
		},
		Execute: func(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
			return engine.Output{Data: cloneMap(in.Data)}, nil
		},
	}
}

// newLogNode builds the "log" node definition: passes its input through
// unchanged, recording a message (templated via the caller's logger, not
// here) under "_log" for downstream inspection or test assertions.
func newLogNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type: "log",
		Validate: func(engine.NodeConfig) engine.ValidationResult {
			return valid()
		},
		Execute: func(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
			config, _ := in.Metadata["config"].(engine.NodeConfig)
			data := cloneMap(in.Data)
			data["_log"] = map[string]interface{}{
				"level":   getString(config, "level", "info"),
				"message": getString(config, "message", ""),
			}
			return engine.Output{Data: data}, nil
		},
	}
}
