package engine

import "testing"

func TestMatchConditionAlwaysVariants(t *testing.T) {
	for _, c := range []string{"", "always", "ANY", "Always"} {
		if !MatchCondition(c, nil) {
			t.Fatalf("condition %q should always match", c)
		}
	}
}

func TestMatchConditionTrueFalseFromConditionResult(t *testing.T) {
	out := map[string]interface{}{"_condition": map[string]interface{}{"result": true}}
	if !MatchCondition("true", out) {
		t.Fatalf("expected true branch to match a true condition result")
	}
	if MatchCondition("false", out) {
		t.Fatalf("expected false branch to not match a true condition result")
	}
}

func TestMatchConditionTrueFalseFallsBackToEvaluationPassed(t *testing.T) {
	out := map[string]interface{}{"_evaluation": map[string]interface{}{"passed": false}}
	if MatchCondition("true", out) {
		t.Fatalf("expected true branch to not match when evaluation failed")
	}
	if !MatchCondition("false", out) {
		t.Fatalf("expected false branch to match when evaluation failed")
	}
}

func TestMatchConditionPassFail(t *testing.T) {
	out := map[string]interface{}{"_evaluation": map[string]interface{}{"passed": true}}
	if !MatchCondition("pass", out) {
		t.Fatalf("expected pass to match a passed evaluation")
	}
	if MatchCondition("fail", out) {
		t.Fatalf("expected fail to not match a passed evaluation")
	}
}

func TestMatchConditionRoutesAreCaseInsensitive(t *testing.T) {
	out := map[string]interface{}{"_route": "Urgent"}
	if !MatchCondition("urgent", out) {
		t.Fatalf("expected route match to be case-insensitive")
	}
	if MatchCondition("other", out) {
		t.Fatalf("expected a non-matching route to fail")
	}
}

func TestMatchConditionRouteFallsBackToBranchAndPlainRoute(t *testing.T) {
	branchOut := map[string]interface{}{"_branch": map[string]interface{}{"route": "left"}}
	if !MatchCondition("left", branchOut) {
		t.Fatalf("expected _branch.route to be consulted")
	}

	plainOut := map[string]interface{}{"route": "right"}
	if !MatchCondition("right", plainOut) {
		t.Fatalf("expected plain route key to be consulted")
	}
}

func TestMatchConditionUnresolvableRouteFails(t *testing.T) {
	if MatchCondition("urgent", map[string]interface{}{}) {
		t.Fatalf("expected no route info to fail the match")
	}
}
