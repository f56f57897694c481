package nodes

import (
	"context"

	"github.com/flowforge/workflowengine/engine"
)

// newEvaluationNode builds the "evaluation" node definition: runs a list of
// checks against the value at "valuePath", writing
// {passed, score, totalChecks, passedChecks, checks[]} under "_evaluation".
// If requestRetryOnFail is set and the evaluation fails, it asks the runner
// to retry this node.
func newEvaluationNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "evaluation",
		Validate: validateEvaluationConfig,
		Execute:  executeEvaluation,
	}
}

func validateEvaluationConfig(config engine.NodeConfig) engine.ValidationResult {
	var errs []string
	if getString(config, "valuePath", "") == "" {
		errs = append(errs, "evaluation node requires \"valuePath\"")
	}
	if len(getSlice(config, "checks")) == 0 {
		errs = append(errs, "evaluation node requires at least one entry in \"checks\"")
	}
	return valid(errs...)
}

func executeEvaluation(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	valuePath := getString(config, "valuePath", "")
	actual := in.Data[valuePath]

	var checks []map[string]interface{}
	passedCount := 0
	for _, raw := range getSlice(config, "checks") {
		c, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		operator, _ := c["type"].(string)
		expected := c["value"]
		passed, err := evalOperator(operator, actual, expected)
		if err != nil {
			passed = false
		}
		if passed {
			passedCount++
		}
		checks = append(checks, map[string]interface{}{"type": operator, "value": expected, "passed": passed})
	}

	total := len(checks)
	score := 0.0
	if total > 0 {
		score = float64(passedCount) / float64(total)
	}
	allPassed := total > 0 && passedCount == total

	data := cloneMap(in.Data)
	data["_evaluation"] = map[string]interface{}{
		"passed":       allPassed,
		"score":        score,
		"totalChecks":  total,
		"passedChecks": passedCount,
		"checks":       checks,
	}

	if !allPassed && getBool(config, "requestRetryOnFail", false) {
		return engine.Output{Data: data, Metadata: retryMetadata("evaluation failed")}, nil
	}
	return engine.Output{Data: data}, nil
}
