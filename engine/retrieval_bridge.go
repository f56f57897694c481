package engine

import (
	"context"
	"time"

	"github.com/flowforge/workflowengine/knowledge"
	"github.com/flowforge/workflowengine/retrieval"
)

// injectRetrieval inspects node.Config["retrieval"] for a retrieval plan; if
// present, it runs the orchestrator, threads the execution's shared budget
// through (copied in, copied back), emits one retrieval.Event per attempt
// via cb, merges the resulting QueryResult into data under the plan's
// injectAs key (defaulting to "retrieval"), and patches a compact summary
// (strategy, selected retriever, retrievers tried, match count) into
// knowledge under "retrieval.<nodeID>".
func (r *Runner) injectRetrieval(ctx context.Context, node WorkflowNode, data map[string]interface{}, ec *ExecutionContext, cb Callbacks) error {
	raw, ok := node.Config["retrieval"].(map[string]interface{})
	if !ok || r.retriever == nil {
		return nil
	}

	plan := planConfigFromRaw(raw)
	if len(plan.Retrievers) == 0 {
		return nil
	}

	preferredKey := ""
	if plan.PreferredRetrieverMemoryKey != "" {
		if v, ok := ec.GetMemory(plan.PreferredRetrieverMemoryKey); ok {
			if s, ok := v.(string); ok {
				preferredKey = s
			}
		}
	}

	ec.mu.Lock()
	budget := retrieval.Budget{
		TotalRequests:   ec.Retrieval.TotalRequests,
		TotalSuccesses:  ec.Retrieval.TotalSuccesses,
		TotalEmpties:    ec.Retrieval.TotalEmpties,
		TotalFailures:   ec.Retrieval.TotalFailures,
		TotalDurationMs: ec.Retrieval.TotalDurationMs,
		MaxRequests:     ec.Retrieval.MaxRequests,
		MaxFailures:     ec.Retrieval.MaxFailures,
		MaxDurationMs:   ec.Retrieval.MaxDurationMs,
	}
	ec.mu.Unlock()

	req := retrieval.Request{
		ExecutionID:  r.identities.ExecutionID,
		WorkflowID:   r.identities.WorkflowID,
		UserID:       r.identities.UserID,
		NodeID:       node.ID,
		NodeType:     node.Type,
		Input:        data,
		Config:       plan,
		PreferredKey: preferredKey,
	}

	result, err := r.retriever.Run(ctx, req, &budget, func(ev retrieval.Event) {
		cb.retrievalEvent(ev)
	})

	now := time.Now()
	ec.ApplyPatch(ContextPatch{Retrieval: &RetrievalBudgetState{
		TotalRequests:   budget.TotalRequests,
		TotalSuccesses:  budget.TotalSuccesses,
		TotalEmpties:    budget.TotalEmpties,
		TotalFailures:   budget.TotalFailures,
		TotalDurationMs: budget.TotalDurationMs,
		MaxRequests:     budget.MaxRequests,
		MaxFailures:     budget.MaxFailures,
		MaxDurationMs:   budget.MaxDurationMs,
	}}, now)

	if err != nil {
		return &RetrievalBudgetError{Message: err.Error()}
	}

	injectAs := plan.InjectAs
	if injectAs == "" {
		injectAs = "retrieval"
	}
	data[injectAs] = map[string]interface{}{
		"query":   result.Query,
		"topK":    result.TopK,
		"matches": matchesToMaps(result.Matches),
		"orchestration": map[string]interface{}{
			"strategy":             string(result.Orchestration.Strategy),
			"speculative":          result.Orchestration.Speculative,
			"retrieversTried":      result.Orchestration.RetrieversTried,
			"selectedRetrieverKey": result.Orchestration.SelectedRetrieverKey,
			"branchCount":          result.Orchestration.BranchCount,
		},
	}
	ec.ApplyPatch(ContextPatch{Knowledge: map[string]interface{}{
		"retrieval." + node.ID: map[string]interface{}{
			"strategy":             string(result.Orchestration.Strategy),
			"selectedRetrieverKey": result.Orchestration.SelectedRetrieverKey,
			"retrieversTried":      result.Orchestration.RetrieversTried,
			"matchesCount":         len(result.Matches),
		},
	}}, now)
	return nil
}

func matchesToMaps(matches []knowledge.Match) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]interface{}{
			"chunkId":    m.ChunkID,
			"corpusId":   m.CorpusID,
			"documentId": m.DocumentID,
			"chunkIndex": m.ChunkIndex,
			"score":      m.Score,
			"content":    m.Content,
			"title":      m.Title,
			"sourceType": m.SourceType,
			"metadata":   m.Metadata,
		})
	}
	return out
}

func planConfigFromRaw(raw map[string]interface{}) retrieval.PlanConfig {
	plan := retrieval.PlanConfig{}

	if s, ok := raw["strategy"].(string); ok {
		plan.Strategy = retrieval.Strategy(s)
	}
	if b, ok := raw["speculative"].(bool); ok {
		plan.Speculative = b
	}
	if s, ok := raw["preferredRetrieverMemoryKey"].(string); ok {
		plan.PreferredRetrieverMemoryKey = s
	}
	if s, ok := raw["injectAs"].(string); ok {
		plan.InjectAs = s
	}

	rawRetrievers, _ := raw["retrievers"].([]interface{})
	for _, rr := range rawRetrievers {
		rm, ok := rr.(map[string]interface{})
		if !ok {
			continue
		}
		rc := retrieval.RetrieverConfig{FailOnError: false}
		if s, ok := rm["key"].(string); ok {
			rc.Key = s
		}
		if s, ok := rm["queryTemplate"].(string); ok {
			rc.QueryTemplate = s
		}
		if s, ok := rm["fallbackTemplate"].(string); ok {
			rc.FallbackTemplate = s
		}
		if v, ok := toInt(rm["topK"]); ok {
			rc.TopK = v
		}
		if v, ok := toInt(rm["maxRetries"]); ok {
			rc.MaxRetries = v
		}
		if v, ok := toInt(rm["retryDelayMs"]); ok {
			rc.RetryDelayMs = v
		}
		if v, ok := toInt(rm["minMatches"]); ok {
			rc.MinMatches = v
		}
		if f, ok := rm["minScore"].(float64); ok {
			rc.MinScore = f
		}
		if b, ok := rm["failOnError"].(bool); ok {
			rc.FailOnError = b
		}
		if s, ok := rm["corpusId"].(string); ok {
			rc.CorpusID = s
		}
		if sm, ok := rm["scope"].(map[string]interface{}); ok {
			if s, ok := sm["type"].(string); ok {
				rc.Scope.Type = s
			}
			if s, ok := sm["workflowIdScope"].(string); ok {
				rc.Scope.WorkflowIDScope = s
			}
			if s, ok := sm["executionIdScope"].(string); ok {
				rc.Scope.ExecutionIDScope = s
			}
		}
		plan.Retrievers = append(plan.Retrievers, rc)
	}

	return plan
}
