package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/llm"
	"github.com/flowforge/workflowengine/retrieval"
)

const defaultLLMTimeout = 60 * time.Second

// newLLMNode builds the "llm" node definition bound to router: it resolves
// the prompt (inline or promptTemplate with {{…}} interpolation against the
// input data), appends auto-detected upstream file-upload and _knowledge
// sections, calls the LLM port, and — if a configured quality check fails —
// asks the runner to retry.
func newLLMNode(router *llm.Router) engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "llm",
		Validate: validateLLMConfig,
		Execute: func(ctx context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
			return executeLLM(ctx, router, in)
		},
	}
}

func validateLLMConfig(config engine.NodeConfig) engine.ValidationResult {
	var errs []string
	if getString(config, "prompt", "") == "" && getString(config, "promptTemplate", "") == "" {
		errs = append(errs, "llm node requires either \"prompt\" or \"promptTemplate\"")
	}
	if getString(config, "provider", "") == "" {
		errs = append(errs, "llm node requires \"provider\"")
	}
	return valid(errs...)
}

func executeLLM(ctx context.Context, router *llm.Router, in engine.Input) (engine.Output, error) {
	if router == nil {
		return engine.Output{}, fmt.Errorf("llm node: no LLM router configured")
	}

	config, _ := in.Metadata["config"].(engine.NodeConfig)
	nodeID, _ := in.Metadata["nodeId"].(string)
	userID, _ := in.Metadata["userId"].(string)

	prompt := resolvePrompt(config, in.Data)
	prompt = appendAutoSections(prompt, in.Data)

	provider := getString(config, "provider", "")
	model := getString(config, "model", "")
	fallback := stringSlice(getSlice(config, "fallbackProviders"))

	timeoutMs := getInt(config, "timeoutMs", int(defaultLLMTimeout/time.Millisecond))
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	messages := []llm.Message{}
	if systemPrompt := getString(config, "systemPrompt", ""); systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	out, err := router.Chat(callCtx, userID, provider, model, fallback, messages, nil)
	if err != nil {
		return engine.Output{}, fmt.Errorf("llm node %q: %w", nodeID, err)
	}

	data := map[string]interface{}{
		"content":  out.Text,
		"model":    out.Model,
		"provider": out.Provider,
	}
	if len(out.ToolCalls) > 0 {
		calls := make([]map[string]interface{}, len(out.ToolCalls))
		for i, tc := range out.ToolCalls {
			calls[i] = map[string]interface{}{"name": tc.Name, "input": tc.Input}
		}
		data["toolCalls"] = calls
	}

	if requiredText := getString(config, "qualityCheckRequiredText", ""); requiredText != "" {
		if !strings.Contains(out.Text, requiredText) {
			return engine.Output{Data: data, Metadata: retryMetadata("quality check failed: required text not found")}, nil
		}
	}
	if minLen := getInt(config, "qualityCheckMinLength", 0); minLen > 0 {
		if len(out.Text) < minLen {
			return engine.Output{Data: data, Metadata: retryMetadata("quality check failed: response shorter than qualityCheckMinLength")}, nil
		}
	}

	return engine.Output{Data: data}, nil
}

func retryMetadata(reason string) map[string]interface{} {
	return map[string]interface{}{
		"retry": map[string]interface{}{"requested": true, "reason": reason},
	}
}

// resolvePrompt prefers an inline "prompt", falling back to "promptTemplate"
// interpolated against data using the same {{a.b.c}} syntax the retrieval
// orchestrator uses for query templates.
func resolvePrompt(config engine.NodeConfig, data map[string]interface{}) string {
	if p := getString(config, "prompt", ""); p != "" {
		return p
	}
	return retrieval.Interpolate(getString(config, "promptTemplate", ""), data)
}

// appendAutoSections appends a formatted "Attached files:" section when
// upstream data carries a "_fileUpload" key, and a "Relevant context:"
// section when it carries "_knowledge" matches — the two auto-detected
// context kinds the llm node folds into its prompt without explicit
// per-node wiring.
func appendAutoSections(prompt string, data map[string]interface{}) string {
	var sb strings.Builder
	sb.WriteString(prompt)

	if files, ok := data["_fileUpload"]; ok {
		sb.WriteString("\n\nAttached files:\n")
		sb.WriteString(formatAny(files))
	}

	if kn, ok := data["_knowledge"].(map[string]interface{}); ok {
		if matches, ok := kn["matches"].([]interface{}); ok && len(matches) > 0 {
			sb.WriteString("\n\nRelevant context:\n")
			for _, m := range matches {
				if mm, ok := m.(map[string]interface{}); ok {
					if content, ok := mm["content"].(string); ok {
						sb.WriteString("- ")
						sb.WriteString(content)
						sb.WriteString("\n")
					}
				}
			}
		}
	}

	return sb.String()
}

func formatAny(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

func stringSlice(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
