package nodes

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/flowforge/workflowengine/engine"
)

var (
	piiEmailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	piiPhonePattern = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	piiSSNPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	specialChars    = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
)

// newDataCleanerNode builds the "data-cleaner" node definition: an ordered
// list of operations (trim, normalize-case, remove-special-chars,
// remove-duplicates, mask-pii, validate-json) applied to the configured
// fields of the input data, in the order given.
func newDataCleanerNode() engine.NodeDefinition {
	return engine.NodeDefinition{
		Type:     "data-cleaner",
		Validate: validateDataCleanerConfig,
		Execute:  executeDataCleaner,
	}
}

func validateDataCleanerConfig(config engine.NodeConfig) engine.ValidationResult {
	ops := getSlice(config, "operations")
	if len(ops) == 0 {
		return valid("data-cleaner node requires at least one entry in \"operations\"")
	}
	var errs []string
	for i, raw := range ops {
		op, ok := raw.(map[string]interface{})
		if !ok {
			errs = append(errs, "data-cleaner operation must be an object")
			continue
		}
		t, _ := op["type"].(string)
		switch t {
		case "trim", "normalize-case", "remove-special-chars", "remove-duplicates", "mask-pii", "validate-json":
		default:
			errs = append(errs, "data-cleaner operation "+strconv.Itoa(i)+" has unknown type: "+t)
		}
	}
	return valid(errs...)
}

func executeDataCleaner(_ context.Context, in engine.Input, _ *engine.ExecutionContext) (engine.Output, error) {
	config, _ := in.Metadata["config"].(engine.NodeConfig)
	data := cloneMap(in.Data)
	var cleanerErrors []string

	for _, raw := range getSlice(config, "operations") {
		op, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		t, _ := op["type"].(string)
		field, _ := op["field"].(string)
		if field == "" {
			continue
		}

		switch t {
		case "trim":
			if s, ok := data[field].(string); ok {
				data[field] = strings.TrimSpace(s)
			}
		case "normalize-case":
			if s, ok := data[field].(string); ok {
				mode, _ := op["case"].(string)
				if mode == "upper" {
					data[field] = strings.ToUpper(s)
				} else {
					data[field] = strings.ToLower(s)
				}
			}
		case "remove-special-chars":
			if s, ok := data[field].(string); ok {
				data[field] = specialChars.ReplaceAllString(s, "")
			}
		case "remove-duplicates":
			if items, ok := data[field].([]interface{}); ok {
				data[field] = dedupe(items)
			}
		case "mask-pii":
			if s, ok := data[field].(string); ok {
				data[field] = maskPII(s)
			}
		case "validate-json":
			if s, ok := data[field].(string); ok {
				if !json.Valid([]byte(s)) {
					cleanerErrors = append(cleanerErrors, field+" is not valid JSON")
				}
			}
		}
	}

	if len(cleanerErrors) > 0 {
		data["_cleanerErrors"] = cleanerErrors
	}
	return engine.Output{Data: data}, nil
}

func dedupe(items []interface{}) []interface{} {
	seen := make(map[string]bool, len(items))
	out := make([]interface{}, 0, len(items))
	for _, it := range items {
		key := formatAny(it)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

func maskPII(s string) string {
	s = piiEmailPattern.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = piiSSNPattern.ReplaceAllString(s, "[REDACTED_SSN]")
	s = piiPhonePattern.ReplaceAllString(s, "[REDACTED_PHONE]")
	return s
}
