package nodes

import (
	"context"
	"testing"

	"github.com/flowforge/workflowengine/engine"
)

func execInput(data map[string]interface{}, config engine.NodeConfig) engine.Input {
	return engine.Input{Data: data, Metadata: map[string]interface{}{"config": config, "nodeId": "n1", "nodeType": "condition"}}
}

func TestConditionValidateRequiresFieldAndKnownOperator(t *testing.T) {
	r := validateConditionConfig(engine.NodeConfig{})
	if r.Valid {
		t.Fatalf("expected missing field/operator to be invalid")
	}

	r = validateConditionConfig(engine.NodeConfig{"field": "x", "operator": "bogus"})
	if r.Valid {
		t.Fatalf("expected unknown operator to be invalid")
	}

	r = validateConditionConfig(engine.NodeConfig{"field": "x", "operator": "equals"})
	if !r.Valid {
		t.Fatalf("expected a valid config to pass: %v", r.Errors)
	}
}

func TestConditionExecuteEqualsTrue(t *testing.T) {
	cfg := engine.NodeConfig{"field": "status", "operator": "equals", "value": "ok"}
	out, err := executeCondition(context.Background(), execInput(map[string]interface{}{"status": "ok"}, cfg), nil)
	if err != nil {
		t.Fatal(err)
	}
	cond := out.Data["_condition"].(map[string]interface{})
	if cond["result"] != true {
		t.Fatalf("expected result true, got %v", cond["result"])
	}
}

func TestConditionExecuteRoutesOnPassAndFail(t *testing.T) {
	cfgPass := engine.NodeConfig{"field": "status", "operator": "equals", "value": "ok", "routeOnPass": "urgent"}
	out, err := executeCondition(context.Background(), execInput(map[string]interface{}{"status": "ok"}, cfgPass), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data["_route"] != "urgent" {
		t.Fatalf("expected route urgent on pass, got %v", out.Data["_route"])
	}

	cfgFail := engine.NodeConfig{"field": "status", "operator": "equals", "value": "ok", "routeOnFail": "fallback"}
	out, err = executeCondition(context.Background(), execInput(map[string]interface{}{"status": "nope"}, cfgFail), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data["_route"] != "fallback" {
		t.Fatalf("expected route fallback on fail, got %v", out.Data["_route"])
	}
}

func TestConditionExecuteNumericComparisons(t *testing.T) {
	cfg := engine.NodeConfig{"field": "count", "operator": "greaterThan", "value": float64(5)}
	out, err := executeCondition(context.Background(), execInput(map[string]interface{}{"count": float64(10)}, cfg), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data["_condition"].(map[string]interface{})["result"] != true {
		t.Fatalf("expected 10 > 5 to be true")
	}
}

func TestConditionExecuteNonNumericComparisonErrors(t *testing.T) {
	cfg := engine.NodeConfig{"field": "count", "operator": "greaterThan", "value": "five"}
	_, err := executeCondition(context.Background(), execInput(map[string]interface{}{"count": "ten"}, cfg), nil)
	if err == nil {
		t.Fatalf("expected an error for non-numeric operands")
	}
}

func TestConditionIsEmptyIsNotEmpty(t *testing.T) {
	cfg := engine.NodeConfig{"field": "items", "operator": "isEmpty"}
	out, err := executeCondition(context.Background(), execInput(map[string]interface{}{"items": []interface{}{}}, cfg), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data["_condition"].(map[string]interface{})["result"] != true {
		t.Fatalf("expected empty slice to satisfy isEmpty")
	}
}
