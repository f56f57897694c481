package nodes

import (
	"context"

	"github.com/flowforge/workflowengine/engine"
)

// registerTriggers wires manual-trigger, webhook-trigger, and
// schedule-trigger: all three simply hand the assembled input data
// (the job's trigger payload, for a root node) straight through as output.
func registerTriggers(reg *engine.Registry) error {
	for _, t := range []string{"manual-trigger", "webhook-trigger", "schedule-trigger"} {
		def := engine.NodeDefinition{
			Type: t,
			Validate: func(config engine.NodeConfig) engine.ValidationResult {
				return valid()
			},
			Execute: func(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
				return engine.Output{Data: cloneMap(in.Data)}, nil
			},
		}
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
