package nodes

import (
	"context"
	"testing"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/knowledge"
)

func TestKnowledgeIngestValidateRequiresContent(t *testing.T) {
	r := validateKnowledgeIngestConfig(engine.NodeConfig{})
	if r.Valid {
		t.Fatalf("expected missing contentField/contentText to be invalid")
	}
}

func TestKnowledgeIngestValidateRejectsUnknownScopeType(t *testing.T) {
	r := validateKnowledgeIngestConfig(engine.NodeConfig{"contentText": "hi", "scopeType": "bogus"})
	if r.Valid {
		t.Fatalf("expected unknown scopeType to be invalid")
	}
}

func TestKnowledgeIngestCallsPortAndReportsResult(t *testing.T) {
	store := knowledge.NewStore()
	in := engine.Input{
		Data: map[string]interface{}{},
		Metadata: map[string]interface{}{
			"config":     engine.NodeConfig{"contentText": "alpha beta gamma delta", "corpusId": "docs"},
			"workflowId": "wf-1",
			"nodeId":     "n1",
		},
	}
	out, err := executeKnowledgeIngest(context.Background(), store, in)
	if err != nil {
		t.Fatal(err)
	}
	ingest := out.Data["_ingest"].(map[string]interface{})
	if ingest["corpusId"] != "docs" {
		t.Fatalf("expected corpusId docs, got %v", ingest)
	}
	if ingest["chunkCount"].(int) < 1 {
		t.Fatalf("expected at least one chunk ingested, got %v", ingest)
	}
}

func TestKnowledgeIngestNilPortErrors(t *testing.T) {
	in := engine.Input{Data: map[string]interface{}{}, Metadata: map[string]interface{}{"config": engine.NodeConfig{"contentText": "x"}}}
	_, err := executeKnowledgeIngest(context.Background(), nil, in)
	if err == nil {
		t.Fatalf("expected an error when no knowledge port is configured")
	}
}

func TestKnowledgeRetrieveValidateRequiresRetrievers(t *testing.T) {
	r := validateKnowledgeRetrieveConfig(engine.NodeConfig{})
	if r.Valid {
		t.Fatalf("expected missing retrieval plan to be invalid")
	}
	r = validateKnowledgeRetrieveConfig(engine.NodeConfig{"retrieval": map[string]interface{}{"retrievers": []interface{}{}}})
	if r.Valid {
		t.Fatalf("expected an empty retrievers list to be invalid")
	}
}

func TestKnowledgeRetrieveRekeysInjectedDataToOutputKey(t *testing.T) {
	in := engine.Input{
		Data: map[string]interface{}{"retrieval": map[string]interface{}{"matches": []interface{}{"m1"}}},
		Metadata: map[string]interface{}{
			"config": engine.NodeConfig{
				"retrieval": map[string]interface{}{"retrievers": []interface{}{map[string]interface{}{"key": "docs"}}},
			},
		},
	}
	out, err := executeKnowledgeRetrieve(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, present := out.Data["retrieval"]; present {
		t.Fatalf("expected the original injectAs key to be removed, got %v", out.Data)
	}
	if _, ok := out.Data["_knowledge"]; !ok {
		t.Fatalf("expected the data rekeyed under the default outputKey, got %v", out.Data)
	}
}

func TestKnowledgeRetrieveRespectsCustomInjectAsAndOutputKey(t *testing.T) {
	in := engine.Input{
		Data: map[string]interface{}{"kbResult": map[string]interface{}{"matches": []interface{}{"m1"}}},
		Metadata: map[string]interface{}{
			"config": engine.NodeConfig{
				"outputKey": "context",
				"retrieval": map[string]interface{}{
					"injectAs":   "kbResult",
					"retrievers": []interface{}{map[string]interface{}{"key": "docs"}},
				},
			},
		},
	}
	out, err := executeKnowledgeRetrieve(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Data["context"]; !ok {
		t.Fatalf("expected data rekeyed under the custom outputKey, got %v", out.Data)
	}
}
