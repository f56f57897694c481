package nodes

import (
	"context"
	"fmt"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/knowledge"
)

// newKnowledgeIngestNode builds the "knowledge-ingest" node definition: calls
// knowledge.Port.Ingest with scope resolved from config (user/workflow/
// execution). If corpusId is left empty the port auto-creates (and reuses) a
// runtime corpus for that scope.
func newKnowledgeIngestNode(port knowledge.Port) engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "knowledge-ingest",
		Validate: validateKnowledgeIngestConfig,
		Execute: func(ctx context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
			return executeKnowledgeIngest(ctx, port, in)
		},
	}
}

func validateKnowledgeIngestConfig(config engine.NodeConfig) engine.ValidationResult {
	var errs []string
	if getString(config, "contentField", "") == "" && getString(config, "contentText", "") == "" {
		errs = append(errs, "knowledge-ingest node requires \"contentField\" or \"contentText\"")
	}
	switch getString(config, "scopeType", "workflow") {
	case "user", "workflow", "execution":
	default:
		errs = append(errs, "knowledge-ingest node has unknown scopeType")
	}
	return valid(errs...)
}

func executeKnowledgeIngest(ctx context.Context, port knowledge.Port, in engine.Input) (engine.Output, error) {
	if port == nil {
		return engine.Output{}, fmt.Errorf("knowledge-ingest node: no knowledge port configured")
	}
	config, _ := in.Metadata["config"].(engine.NodeConfig)

	content := getString(config, "contentText", "")
	if field := getString(config, "contentField", ""); field != "" {
		content = formatAny(in.Data[field])
	}
	title := getString(config, "title", "")
	if titleField := getString(config, "titleField", ""); titleField != "" {
		title = formatAny(in.Data[titleField])
	}

	scopeType := getString(config, "scopeType", "workflow")
	executionID, _ := in.Metadata["executionId"].(string)
	workflowID, _ := in.Metadata["workflowId"].(string)
	userID, _ := in.Metadata["userId"].(string)
	nodeID, _ := in.Metadata["nodeId"].(string)
	nodeType, _ := in.Metadata["nodeType"].(string)

	req := knowledge.IngestRequest{
		ExecutionID:      executionID,
		WorkflowID:       workflowID,
		UserID:           userID,
		NodeID:           nodeID,
		NodeType:         nodeType,
		Title:            title,
		ContentText:      content,
		SourceType:       getString(config, "sourceType", "workflow-node"),
		CorpusID:         getString(config, "corpusId", ""),
		ScopeType:        scopeType,
		WorkflowIDScope:  workflowID,
		ExecutionIDScope: executionID,
	}

	result, err := port.Ingest(ctx, req)
	if err != nil {
		return engine.Output{}, fmt.Errorf("knowledge-ingest node: %w", err)
	}

	data := cloneMap(in.Data)
	data["_ingest"] = map[string]interface{}{
		"corpusId":   result.CorpusID,
		"documentId": result.DocumentID,
		"chunkCount": result.ChunkCount,
		"status":     result.Status,
	}
	return engine.Output{Data: data}, nil
}

// newKnowledgeRetrieveNode builds the "knowledge-retrieve" node definition.
// Retrieval itself runs generically for any node carrying a "retrieval"
// config key (see engine.Runner.injectRetrieval, invoked before Execute);
// this node's job is just to republish whatever landed under the plan's
// injectAs key (default "retrieval") at the node's own configured
// "outputKey" (default "_knowledge"), so downstream nodes get a stable,
// predictable field name regardless of how the retrieval plan was wired.
func newKnowledgeRetrieveNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "knowledge-retrieve",
		Validate: validateKnowledgeRetrieveConfig,
		Execute:  executeKnowledgeRetrieve,
	}
}

func validateKnowledgeRetrieveConfig(config engine.NodeConfig) engine.ValidationResult {
	retrievalCfg := getMap(config, "retrieval")
	if retrievalCfg == nil {
		return valid("knowledge-retrieve node requires a \"retrieval\" plan")
	}
	retrievers := getSlice(retrievalCfg, "retrievers")
	if len(retrievers) == 0 {
		return valid("knowledge-retrieve node's retrieval plan requires at least one entry in \"retrievers\"")
	}
	return valid()
}

func executeKnowledgeRetrieve(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	outputKey := getString(config, "outputKey", "_knowledge")

	injectAs := "retrieval"
	if retrievalCfg := getMap(config, "retrieval"); retrievalCfg != nil {
		if s := getString(retrievalCfg, "injectAs", ""); s != "" {
			injectAs = s
		}
	}

	data := cloneMap(in.Data)
	if v, ok := data[injectAs]; ok && injectAs != outputKey {
		data[outputKey] = v
		delete(data, injectAs)
	}
	return engine.Output{Data: data}, nil
}
