package nodes

import (
	"context"
	"testing"

	"github.com/flowforge/workflowengine/engine"
)

func TestOutputNodePassesDataThrough(t *testing.T) {
	def := newOutputNode()
	out, err := def.Execute(context.Background(), engine.Input{Data: map[string]interface{}{"result": 42}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data["result"] != 42 {
		t.Fatalf("expected data to pass through unchanged, got %v", out.Data)
	}
}

func TestOutputNodeValidateAlwaysValid(t *testing.T) {
	def := newOutputNode()
	if !def.Validate(engine.NodeConfig{}).Valid {
		t.Fatalf("expected output node to have no required config")
	}
}

func TestLogNodeRecordsLevelAndMessage(t *testing.T) {
	def := newLogNode()
	in := engine.Input{
		Data:     map[string]interface{}{"x": 1},
		Metadata: map[string]interface{}{"config": engine.NodeConfig{"level": "warn", "message": "careful"}},
	}
	out, err := def.Execute(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	log := out.Data["_log"].(map[string]interface{})
	if log["level"] != "warn" || log["message"] != "careful" {
		t.Fatalf("expected level/message to be recorded, got %v", log)
	}
	if out.Data["x"] != 1 {
		t.Fatalf("expected original data preserved alongside _log, got %v", out.Data)
	}
}

func TestLogNodeDefaultsLevelToInfo(t *testing.T) {
	def := newLogNode()
	in := engine.Input{Data: map[string]interface{}{}, Metadata: map[string]interface{}{"config": engine.NodeConfig{}}}
	out, err := def.Execute(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	log := out.Data["_log"].(map[string]interface{})
	if log["level"] != "info" {
		t.Fatalf("expected default level info, got %v", log["level"])
	}
}
