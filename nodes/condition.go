package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/workflowengine/engine"
)

// newConditionNode builds the "condition" node definition: evaluates
// (field, operator, value) against the input data, writes
// "_condition.result" (and, if configured, "_route"), for downstream edges
// to branch on via MatchCondition.
func newConditionNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "condition",
		Validate: validateConditionConfig,
		Execute:  executeCondition,
	}
}

var conditionOperators = map[string]bool{
	"equals": true, "notEquals": true, "contains": true, "notContains": true,
	"greaterThan": true, "lessThan": true, "greaterThanOrEqual": true, "lessThanOrEqual": true,
	"isEmpty": true, "isNotEmpty": true,
}

func validateConditionConfig(config engine.NodeConfig) engine.ValidationResult {
	var errs []string
	if getString(config, "field", "") == "" {
		errs = append(errs, "condition node requires \"field\"")
	}
	op := getString(config, "operator", "")
	if !conditionOperators[op] {
		errs = append(errs, "condition node has unknown operator: "+op)
	}
	return valid(errs...)
}

func executeCondition(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	field := getString(config, "field", "")
	operator := getString(config, "operator", "")
	expected := config["value"]

	actual := in.Data[field]
	result, err := evalOperator(operator, actual, expected)
	if err != nil {
		return engine.Output{}, fmt.Errorf("condition node: %w", err)
	}

	data := cloneMap(in.Data)
	data["_condition"] = map[string]interface{}{"result": result, "field": field, "operator": operator}
	if route := getString(config, "routeOnPass", ""); route != "" && result {
		data["_route"] = route
	} else if route := getString(config, "routeOnFail", ""); route != "" && !result {
		data["_route"] = route
	}
	return engine.Output{Data: data}, nil
}

func evalOperator(operator string, actual, expected interface{}) (bool, error) {
	switch operator {
	case "isEmpty":
		return isEmptyValue(actual), nil
	case "isNotEmpty":
		return !isEmptyValue(actual), nil
	case "equals":
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected), nil
	case "notEquals":
		return fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected), nil
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)), nil
	case "notContains":
		return !strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)), nil
	case "greaterThan", "lessThan", "greaterThanOrEqual", "lessThanOrEqual":
		a, aok := asFloat(actual)
		b, bok := asFloat(expected)
		if !aok || !bok {
			return false, fmt.Errorf("operator %q requires numeric operands", operator)
		}
		switch operator {
		case "greaterThan":
			return a > b, nil
		case "lessThan":
			return a < b, nil
		case "greaterThanOrEqual":
			return a >= b, nil
		default:
			return a <= b, nil
		}
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

func isEmptyValue(v interface{}) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return vv == ""
	case []interface{}:
		return len(vv) == 0
	case map[string]interface{}:
		return len(vv) == 0
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case string:
		f, err := strconv.ParseFloat(vv, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
