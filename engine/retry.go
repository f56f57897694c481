package engine

import "time"

// RetryPolicy configures a node's per-step retry behaviour, resolved from
// nodeConfig.retryPolicy (plus legacy flat keys — see ResolveRetryPolicy).
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	DelayMs     int

	RetryOnError         bool
	RetryOnDirective     bool
	FailOnMaxAttempts    bool
	IncrementLoopOnRetry bool
}

// DefaultRetryPolicy is applied to nodes with no retryPolicy config at all:
// one attempt, no retries.
var DefaultRetryPolicy = RetryPolicy{
	Enabled:           false,
	MaxAttempts:       1,
	DelayMs:           0,
	RetryOnError:      false,
	FailOnMaxAttempts: true,
}

// ResolveRetryPolicy reads nodeConfig.retryPolicy, falling back to legacy
// flat keys (retryEnabled, maxAttempts, retryDelayMs, retryOnError,
// incrementLoopOnRetry) carried directly on the node config for nodes
// authored before retryPolicy was nested. MaxAttempts is clamped to [1,10],
// defaulting to 3 when retries are enabled and 1 otherwise.
func ResolveRetryPolicy(config NodeConfig) RetryPolicy {
	policy := DefaultRetryPolicy

	raw, hasNested := config["retryPolicy"].(map[string]interface{})
	if !hasNested {
		raw = map[string]interface{}{}
		if v, ok := config["retryEnabled"]; ok {
			raw["enabled"] = v
		}
		if v, ok := config["maxAttempts"]; ok {
			raw["maxAttempts"] = v
		}
		if v, ok := config["retryDelayMs"]; ok {
			raw["delayMs"] = v
		}
		if v, ok := config["retryOnError"]; ok {
			raw["retryOnError"] = v
		}
		if v, ok := config["incrementLoopOnRetry"]; ok {
			raw["incrementLoopOnRetry"] = v
		}
	}

	if v, ok := raw["enabled"].(bool); ok {
		policy.Enabled = v
	}
	if policy.Enabled {
		policy.MaxAttempts = 3
	}
	if v, ok := toInt(raw["maxAttempts"]); ok {
		policy.MaxAttempts = v
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.MaxAttempts > 10 {
		policy.MaxAttempts = 10
	}

	if v, ok := toInt(raw["delayMs"]); ok {
		policy.DelayMs = v
	}
	if policy.DelayMs < 0 {
		policy.DelayMs = 0
	}
	if policy.DelayMs > 10000 {
		policy.DelayMs = 10000
	}

	if v, ok := raw["retryOnError"].(bool); ok {
		policy.RetryOnError = v
	} else if policy.Enabled {
		policy.RetryOnError = true
	}
	if v, ok := raw["retryOnDirective"].(bool); ok {
		policy.RetryOnDirective = v
	} else {
		policy.RetryOnDirective = true
	}
	if v, ok := raw["failOnMaxAttempts"].(bool); ok {
		policy.FailOnMaxAttempts = v
	} else {
		policy.FailOnMaxAttempts = true
	}
	if v, ok := raw["incrementLoopOnRetry"].(bool); ok {
		policy.IncrementLoopOnRetry = v
	}

	return policy
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

// DelayDuration converts DelayMs to a time.Duration.
func (p RetryPolicy) DelayDuration() time.Duration {
	return time.Duration(p.DelayMs) * time.Millisecond
}
