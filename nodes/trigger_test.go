package nodes

import (
	"context"
	"testing"

	"github.com/flowforge/workflowengine/engine"
)

func TestRegisterTriggersRegistersAllThreeTypes(t *testing.T) {
	reg := engine.NewRegistry()
	if err := registerTriggers(reg); err != nil {
		t.Fatalf("registerTriggers: %v", err)
	}
	for _, ty := range []string{"manual-trigger", "webhook-trigger", "schedule-trigger"} {
		if _, err := reg.Resolve(ty); err != nil {
			t.Fatalf("expected %s to be registered: %v", ty, err)
		}
	}
}

func TestTriggerNodePassesDataThrough(t *testing.T) {
	reg := engine.NewRegistry()
	if err := registerTriggers(reg); err != nil {
		t.Fatal(err)
	}
	def, err := reg.Resolve("manual-trigger")
	if err != nil {
		t.Fatal(err)
	}
	out, err := def.Execute(context.Background(), engine.Input{Data: map[string]interface{}{"foo": "bar"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Data["foo"] != "bar" {
		t.Fatalf("expected trigger data to pass through, got %v", out.Data)
	}
}
