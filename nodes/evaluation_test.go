package nodes

import (
	"context"
	"testing"

	"github.com/flowforge/workflowengine/engine"
)

func TestEvaluationValidateRequiresValuePathAndChecks(t *testing.T) {
	r := validateEvaluationConfig(engine.NodeConfig{})
	if r.Valid {
		t.Fatalf("expected missing valuePath/checks to be invalid")
	}
	r = validateEvaluationConfig(engine.NodeConfig{
		"valuePath": "answer",
		"checks":    []interface{}{map[string]interface{}{"type": "isNotEmpty"}},
	})
	if !r.Valid {
		t.Fatalf("expected a valid config to pass: %v", r.Errors)
	}
}

func TestEvaluationAllChecksPass(t *testing.T) {
	in := engine.Input{
		Data: map[string]interface{}{"answer": "42"},
		Metadata: map[string]interface{}{"config": engine.NodeConfig{
			"valuePath": "answer",
			"checks": []interface{}{
				map[string]interface{}{"type": "isNotEmpty"},
				map[string]interface{}{"type": "equals", "value": "42"},
			},
		}},
	}
	out, err := executeEvaluation(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	eval := out.Data["_evaluation"].(map[string]interface{})
	if eval["passed"] != true || eval["score"] != 1.0 || eval["totalChecks"] != 2 || eval["passedChecks"] != 2 {
		t.Fatalf("expected all checks to pass, got %v", eval)
	}
}

func TestEvaluationPartialFailureComputesScore(t *testing.T) {
	in := engine.Input{
		Data: map[string]interface{}{"answer": "42"},
		Metadata: map[string]interface{}{"config": engine.NodeConfig{
			"valuePath": "answer",
			"checks": []interface{}{
				map[string]interface{}{"type": "isNotEmpty"},
				map[string]interface{}{"type": "equals", "value": "43"},
			},
		}},
	}
	out, err := executeEvaluation(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	eval := out.Data["_evaluation"].(map[string]interface{})
	if eval["passed"] != false || eval["score"] != 0.5 || eval["passedChecks"] != 1 {
		t.Fatalf("expected half the checks to pass, got %v", eval)
	}
}

func TestEvaluationRequestsRetryOnFail(t *testing.T) {
	in := engine.Input{
		Data: map[string]interface{}{"answer": "wrong"},
		Metadata: map[string]interface{}{"config": engine.NodeConfig{
			"valuePath":          "answer",
			"requestRetryOnFail": true,
			"checks":             []interface{}{map[string]interface{}{"type": "equals", "value": "right"}},
		}},
	}
	out, err := executeEvaluation(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	retry, ok := out.Metadata["retry"].(map[string]interface{})
	if !ok || retry["requested"] != true {
		t.Fatalf("expected a retry to be requested on failure, got %v", out.Metadata)
	}
}

func TestEvaluationDoesNotRetryWhenNotRequested(t *testing.T) {
	in := engine.Input{
		Data: map[string]interface{}{"answer": "wrong"},
		Metadata: map[string]interface{}{"config": engine.NodeConfig{
			"valuePath": "answer",
			"checks":    []interface{}{map[string]interface{}{"type": "equals", "value": "right"}},
		}},
	}
	out, err := executeEvaluation(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Metadata != nil {
		t.Fatalf("expected no retry metadata when requestRetryOnFail is unset, got %v", out.Metadata)
	}
}
