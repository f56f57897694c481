package nodes

import (
	"context"
	"fmt"

	"github.com/flowforge/workflowengine/engine"
	"github.com/go-playground/validator/v10"
)

// fieldValidator checks already-decoded values against validator/v10 tags
// via Var, since a node's field set is dynamic (unlike the library's usual
// struct-tag use).
var fieldValidator = validator.New()

// newJSONValidatorNode builds the "json-validator" node definition: checks
// required fields are present and, for fields with a declared type,
// checks the decoded value is of that type. strict mode fails the node on
// any violation; otherwise violations are reported under "_validation"
// and the input passes through.
func newJSONValidatorNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "json-validator",
		Validate: validateJSONValidatorConfig,
		Execute:  executeJSONValidator,
	}
}

func validateJSONValidatorConfig(config engine.NodeConfig) engine.ValidationResult {
	if getSlice(config, "requiredFields") == nil && getMap(config, "fieldTypes") == nil {
		return valid("json-validator node requires \"requiredFields\" or \"fieldTypes\"")
	}
	return valid()
}

func executeJSONValidator(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	nodeID, _ := in.Metadata["nodeId"].(string)
	strict := getBool(config, "strict", false)

	var violations []string

	for _, raw := range getSlice(config, "requiredFields") {
		field, _ := raw.(string)
		if field == "" {
			continue
		}
		if _, ok := in.Data[field]; !ok {
			violations = append(violations, fmt.Sprintf("missing required field %q", field))
		}
	}

	for field, rawType := range getMap(config, "fieldTypes") {
		wantType, _ := rawType.(string)
		value, present := in.Data[field]
		if !present {
			continue
		}
		if !checkFieldType(value, wantType) {
			violations = append(violations, fmt.Sprintf("field %q expected type %q", field, wantType))
		}
	}

	if len(violations) > 0 && strict {
		return engine.Output{}, fmt.Errorf("json-validator node %q: %d violation(s): %v", nodeID, len(violations), violations)
	}

	data := cloneMap(in.Data)
	data["_validation"] = map[string]interface{}{
		"valid":      len(violations) == 0,
		"violations": violations,
	}
	return engine.Output{Data: data}, nil
}

func checkFieldType(value interface{}, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int, int64:
			return fieldValidator.Var(value, "numeric") == nil
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}
