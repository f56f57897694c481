// Package retrieval implements the multi-retriever orchestration layer:
// template interpolation, strategy resolution (single, merge,
// first-non-empty, best-score, adaptive), speculative-vs-sequential plan
// evaluation, and aggregate per-execution budget enforcement.
package retrieval

import (
	"strconv"

	"github.com/flowforge/workflowengine/knowledge"
)

// Strategy names the policy used to combine multiple retriever plans.
type Strategy string

const (
	StrategySingle        Strategy = "single"
	StrategyMerge         Strategy = "merge"
	StrategyFirstNonEmpty Strategy = "first-non-empty"
	StrategyBestScore     Strategy = "best-score"
	StrategyAdaptive      Strategy = "adaptive"
)

// Scope narrows where a retriever looks for a corpus.
type Scope struct {
	Type             string
	WorkflowIDScope  string
	ExecutionIDScope string
}

// RetrieverConfig is one named query plan against the knowledge port.
type RetrieverConfig struct {
	Key              string
	QueryTemplate    string
	FallbackTemplate string
	TopK             int
	MaxRetries       int
	RetryDelayMs     int
	MinMatches       int
	MinScore         float64
	FailOnError      bool
	Scope            Scope
	CorpusID         string
}

// PlanConfig is the per-node configuration a node opts into when it wants
// engine-mediated retrieval.
type PlanConfig struct {
	Retrievers                  []RetrieverConfig
	Strategy                    Strategy
	Speculative                 bool
	PreferredRetrieverMemoryKey string
	InjectAs                    string
}

// Orchestration describes how a QueryResult was produced.
type Orchestration struct {
	Strategy             Strategy
	Speculative          bool
	RetrieversTried      []string
	SelectedRetrieverKey string
	BranchCount          int
}

// QueryResult is what the orchestrator hands back to the node runner for
// injection into the downstream node's input.
type QueryResult struct {
	Query         string
	TopK          int
	Matches       []knowledge.Match
	Orchestration Orchestration
}

// EventStatus is the outcome of one retriever attempt.
type EventStatus string

const (
	EventSuccess EventStatus = "success"
	EventEmpty   EventStatus = "empty"
	EventFailed  EventStatus = "failed"
)

// Event is emitted once per retriever attempt, including budget-denied
// attempts.
type Event struct {
	NodeID           string
	NodeType         string
	Query            string
	TopK             int
	Attempt          int
	MaxAttempts      int
	Status           EventStatus
	MatchesCount     int
	DurationMs       int
	ErrorMessage     string
	ScopeType        string
	CorpusID         string
	WorkflowIDScope  string
	ExecutionIDScope string
	Strategy         Strategy
	RetrieverKey     string
	BranchIndex      int
	Selected         bool
}

// Budget is the aggregate per-execution retrieval budget: running counters
// plus the caps checked before every retrieve call.
type Budget struct {
	TotalRequests   int
	TotalSuccesses  int
	TotalEmpties    int
	TotalFailures   int
	TotalDurationMs int

	MaxRequests   int
	MaxFailures   int
	MaxDurationMs int
}

// exceeded reports whether any cap has already been hit, with a message
// naming which one.
func (b Budget) exceeded() (bool, string) {
	if b.MaxRequests > 0 && b.TotalRequests >= b.MaxRequests {
		return true, "retrieval budget exceeded: maxRequests reached (" + strconv.Itoa(b.MaxRequests) + ")"
	}
	if b.MaxFailures > 0 && b.TotalFailures >= b.MaxFailures {
		return true, "retrieval budget exceeded: maxFailures reached (" + strconv.Itoa(b.MaxFailures) + ")"
	}
	if b.MaxDurationMs > 0 && b.TotalDurationMs >= b.MaxDurationMs {
		return true, "retrieval budget exceeded: maxDurationMs reached (" + strconv.Itoa(b.MaxDurationMs) + ")"
	}
	return false, ""
}
