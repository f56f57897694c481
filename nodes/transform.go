package nodes

import (
	"context"
	"fmt"

	"github.com/flowforge/workflowengine/engine"
	"github.com/itchyny/gojq"
)

// newTransformNode builds the "transformer"/"code" node definition: a
// sandboxed transform over the input, expressed as a jq program evaluated
// against the assembled input data. jq has no filesystem, network, or
// process access, making it a safe evaluation target for workflow-authored
// expressions without a custom interpreter.
func newTransformNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "transformer",
		Validate: validateTransformConfig,
		Execute:  executeTransform,
	}
}

// newCodeNode registers "code" as an alias of "transformer": both read
// their jq program from the same "expression" config key.
func newCodeNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "code",
		Validate: validateTransformConfig,
		Execute:  executeTransform,
	}
}

func validateTransformConfig(config engine.NodeConfig) engine.ValidationResult {
	expr := getString(config, "expression", "")
	if expr == "" {
		return valid("transformer node requires \"expression\"")
	}
	if _, err := gojq.Parse(expr); err != nil {
		return valid(fmt.Sprintf("transformer node has invalid expression: %v", err))
	}
	return valid()
}

func executeTransform(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	nodeID, _ := in.Metadata["nodeId"].(string)
	expr := getString(config, "expression", "")

	query, err := gojq.Parse(expr)
	if err != nil {
		return engine.Output{}, fmt.Errorf("transform node %q: failed to parse expression: %w", nodeID, err)
	}

	iter := query.Run(toJQInput(in.Data))
	v, ok := iter.Next()
	if !ok {
		return engine.Output{Data: map[string]interface{}{}}, nil
	}
	if err, ok := v.(error); ok {
		return engine.Output{}, fmt.Errorf("transform node %q: expression error: %w", nodeID, err)
	}

	data, ok := v.(map[string]interface{})
	if !ok {
		data = map[string]interface{}{"result": v}
	}
	return engine.Output{Data: data}, nil
}

// toJQInput copies the top level of data into a fresh map[string]any for
// gojq; nested values are passed through unchanged, not converted.
func toJQInput(data map[string]interface{}) interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
