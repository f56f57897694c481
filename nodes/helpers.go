// Package nodes implements the built-in node type library: trigger, llm,
// http-request, transformer/code, data-cleaner, json-validator, condition,
// memory-read/memory-write, evaluation, execution-control,
// knowledge-ingest/knowledge-retrieve, and output/log. Register wires the
// full set into an engine.Registry.
package nodes

import "github.com/flowforge/workflowengine/engine"

func getString(c engine.NodeConfig, key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

func getBool(c engine.NodeConfig, key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

func getInt(c engine.NodeConfig, key string, def int) int {
	if v, ok := toInt(c[key]); ok {
		return v
	}
	return def
}

func getFloat(c engine.NodeConfig, key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func getMap(c engine.NodeConfig, key string) map[string]interface{} {
	if v, ok := c[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func getSlice(c engine.NodeConfig, key string) []interface{} {
	if v, ok := c[key].([]interface{}); ok {
		return v
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// cloneMap returns a shallow copy of m, or an empty map when m is nil.
func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// valid is sugar for a ValidationResult that carries zero or more errors;
// Valid is true exactly when errs is empty.
func valid(errs ...string) engine.ValidationResult {
	return engine.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
