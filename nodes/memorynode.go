package nodes

import (
	"context"

	"github.com/flowforge/workflowengine/engine"
)

// newMemoryReadNode builds the "memory-read" node definition: reads
// context.memory at a (possibly dotted, opaquely-keyed) key and writes it
// into the output under that same key.
func newMemoryReadNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type: "memory-read",
		Validate: func(config engine.NodeConfig) engine.ValidationResult {
			if getString(config, "key", "") == "" {
				return valid("memory-read node requires \"key\"")
			}
			return valid()
		},
		Execute: func(_ context.Context, in engine.Input, ec *engine.ExecutionContext) (engine.Output, error) {
			config, _ := in.Metadata["config"].(engine.NodeConfig)
			key := getString(config, "key", "")
			value, _ := ec.GetMemory(key)
			data := cloneMap(in.Data)
			data[key] = value
			return engine.Output{Data: data}, nil
		},
	}
}

// newMemoryWriteNode builds the "memory-write" node definition: mutates
// context.memory at "key" per "operation" ∈ {set, merge, append, clear}.
func newMemoryWriteNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type: "memory-write",
		Validate: func(config engine.NodeConfig) engine.ValidationResult {
			var errs []string
			if getString(config, "key", "") == "" {
				errs = append(errs, "memory-write node requires \"key\"")
			}
			switch getString(config, "operation", "set") {
			case "set", "merge", "append", "clear":
			default:
				errs = append(errs, "memory-write node has unknown operation")
			}
			return valid(errs...)
		},
		Execute: executeMemoryWrite,
	}
}

func executeMemoryWrite(_ context.Context, in engine.Input, ec *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	key := getString(config, "key", "")
	operation := getString(config, "operation", "set")
	value := config["value"]

	var result interface{}
	switch operation {
	case "clear":
		result = nil
	case "append":
		existing, _ := ec.GetMemory(key)
		items, _ := existing.([]interface{})
		result = append(append([]interface{}{}, items...), value)
	case "merge":
		existing, _ := ec.GetMemory(key)
		existingMap, _ := existing.(map[string]interface{})
		merged := cloneMap(existingMap)
		if incoming, ok := value.(map[string]interface{}); ok {
			for k, v := range incoming {
				merged[k] = v
			}
		}
		result = merged
	default: // set
		result = value
	}

	return engine.Output{
		Data:     cloneMap(in.Data),
		Metadata: map[string]interface{}{"contextPatch": map[string]interface{}{"memory": map[string]interface{}{key: result}}},
	}, nil
}
