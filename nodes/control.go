package nodes

import (
	"context"
	"fmt"

	"github.com/flowforge/workflowengine/engine"
)

var controlActions = map[string]bool{
	"increment-retry": true, "increment-loop": true,
	"reset-retry": true, "reset-loop": true,
	"set-max-retries": true, "set-max-loops": true,
	"terminate": true, "clear-terminate": true,
}

// newControlNode builds the "execution-control" node definition: mutates
// context.control per a single configured action, optionally recording
// memory["control.terminateReason"] when terminating.
func newControlNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type: "execution-control",
		Validate: func(config engine.NodeConfig) engine.ValidationResult {
			action := getString(config, "action", "")
			if !controlActions[action] {
				return valid("execution-control node has unknown action: " + action)
			}
			return valid()
		},
		Execute: executeControl,
	}
}

func executeControl(_ context.Context, in engine.Input, ec *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	action := getString(config, "action", "")

	current := ec.ControlSnapshot()
	control := map[string]interface{}{
		"loopCount":  current.LoopCount,
		"retryCount": current.RetryCount,
		"maxLoops":   current.MaxLoops,
		"maxRetries": current.MaxRetries,
		"terminate":  current.Terminate,
	}
	memory := map[string]interface{}{}

	switch action {
	case "increment-retry":
		control["retryCount"] = current.RetryCount + 1
	case "increment-loop":
		control["loopCount"] = current.LoopCount + 1
	case "reset-retry":
		control["retryCount"] = 0
	case "reset-loop":
		control["loopCount"] = 0
	case "set-max-retries":
		control["maxRetries"] = getInt(config, "value", current.MaxRetries)
	case "set-max-loops":
		control["maxLoops"] = getInt(config, "value", current.MaxLoops)
	case "terminate":
		control["terminate"] = true
		if reason := getString(config, "reason", ""); reason != "" {
			memory["control.terminateReason"] = reason
		}
	case "clear-terminate":
		control["terminate"] = false
	default:
		return engine.Output{}, fmt.Errorf("execution-control node: unknown action %q", action)
	}

	patch := map[string]interface{}{"control": control}
	if len(memory) > 0 {
		patch["memory"] = memory
	}

	return engine.Output{
		Data:     cloneMap(in.Data),
		Metadata: map[string]interface{}{"contextPatch": patch},
	}, nil
}
