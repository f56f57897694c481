package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/workflowengine/knowledge"
)

// Request bundles everything one engine-mediated retrieval call for a
// single node needs.
type Request struct {
	ExecutionID  string
	WorkflowID   string
	UserID       string
	NodeID       string
	NodeType     string
	Input        map[string]interface{}
	Config       PlanConfig
	PreferredKey string // resolved from memory[PreferredRetrieverMemoryKey] by the caller
}

// EmitFunc receives one Event per retriever attempt, including
// budget-denied attempts.
type EmitFunc func(Event)

// Orchestrator resolves retriever plans against a knowledge.Port, applying
// the configured strategy, speculative/sequential scheduling, and the
// aggregate per-execution budget.
type Orchestrator struct {
	port knowledge.Port
	mu   sync.Mutex // serializes budget counter updates and event emission
}

// NewOrchestrator builds an Orchestrator backed by the given knowledge port.
func NewOrchestrator(port knowledge.Port) *Orchestrator {
	return &Orchestrator{port: port}
}

type planOutcome struct {
	config  RetrieverConfig
	query   string
	topK    int
	matches []knowledge.Match
	status  EventStatus
	fatal   error
	events  []Event // every attempt's event for this plan, in attempt order
}

// emitOutcomes flushes every outcome's accumulated events, in outcome
// order, marking the last event of whichever outcome's retriever key
// matches selectedKey as Selected. An empty selectedKey (merge strategy, or
// any outcome set ending in a fatal error) marks nothing as selected.
func emitOutcomes(outcomes []planOutcome, selectedKey string, emit EmitFunc) {
	for _, oc := range outcomes {
		for i, ev := range oc.events {
			if selectedKey != "" && oc.config.Key == selectedKey && i == len(oc.events)-1 {
				ev.Selected = true
			}
			emit(ev)
		}
	}
}

// Run executes req.Config's plans against budget, emitting one Event per
// attempt via emit, and returns the QueryResult selected by req.Config's
// strategy. A non-nil error is always fatal (budget exceeded with
// failOnError, or every plan exhausted with failOnError under
// first-non-empty).
func (o *Orchestrator) Run(ctx context.Context, req Request, budget *Budget, emit EmitFunc) (QueryResult, error) {
	retrievers := req.Config.Retrievers
	if len(retrievers) == 0 {
		return QueryResult{}, nil
	}

	strategy := req.Config.Strategy
	if strategy == "" {
		strategy = StrategySingle
	}

	ordered := orderRetrievers(retrievers, strategy, req.PreferredKey)

	switch strategy {
	case StrategySingle:
		outcome := o.runPlan(ctx, req, ordered[0], 0, budget)
		selectedKey := outcome.config.Key
		if outcome.fatal != nil {
			selectedKey = ""
		}
		emitOutcomes([]planOutcome{outcome}, selectedKey, emit)
		return o.finish(strategy, false, []planOutcome{outcome}, outcome.config.Key, outcome.fatal)

	case StrategyMerge:
		outcomes, err := o.runAll(ctx, req, ordered, budget)
		if err != nil {
			emitOutcomes(outcomes, "", emit)
			return QueryResult{}, err
		}
		result, err := o.mergeResult(outcomes)
		emitOutcomes(outcomes, "", emit)
		return result, err

	case StrategyBestScore:
		outcomes, err := o.runAll(ctx, req, ordered, budget)
		if err != nil {
			emitOutcomes(outcomes, "", emit)
			return QueryResult{}, err
		}
		result, err := o.bestScoreResult(outcomes)
		emitOutcomes(outcomes, result.Orchestration.SelectedRetrieverKey, emit)
		return result, err

	case StrategyFirstNonEmpty, StrategyAdaptive:
		return o.firstNonEmpty(ctx, req, ordered, budget, emit)

	default:
		outcome := o.runPlan(ctx, req, ordered[0], 0, budget)
		selectedKey := outcome.config.Key
		if outcome.fatal != nil {
			selectedKey = ""
		}
		emitOutcomes([]planOutcome{outcome}, selectedKey, emit)
		return o.finish(strategy, false, []planOutcome{outcome}, outcome.config.Key, outcome.fatal)
	}
}

// orderRetrievers applies the adaptive reorder (preferred key first) ahead
// of first-non-empty evaluation. Every other strategy uses config order.
func orderRetrievers(retrievers []RetrieverConfig, strategy Strategy, preferredKey string) []RetrieverConfig {
	if strategy != StrategyAdaptive || preferredKey == "" {
		return retrievers
	}
	out := make([]RetrieverConfig, 0, len(retrievers))
	var preferred *RetrieverConfig
	for i := range retrievers {
		if retrievers[i].Key == preferredKey {
			r := retrievers[i]
			preferred = &r
			continue
		}
		out = append(out, retrievers[i])
	}
	if preferred == nil {
		return retrievers
	}
	return append([]RetrieverConfig{*preferred}, out...)
}

// runAll runs every plan, concurrently if req.Config.Speculative, else in
// order. single is always sequential by construction (it only ever calls
// runPlan once from Run).
func (o *Orchestrator) runAll(ctx context.Context, req Request, retrievers []RetrieverConfig, budget *Budget) ([]planOutcome, error) {
	outcomes := make([]planOutcome, len(retrievers))

	if req.Config.Speculative {
		var wg sync.WaitGroup
		for i, rc := range retrievers {
			wg.Add(1)
			go func(idx int, cfg RetrieverConfig) {
				defer wg.Done()
				outcomes[idx] = o.runPlan(ctx, req, cfg, idx, budget)
			}(i, rc)
		}
		wg.Wait()
	} else {
		for i, rc := range retrievers {
			outcomes[i] = o.runPlan(ctx, req, rc, i, budget)
		}
	}

	for _, oc := range outcomes {
		if oc.fatal != nil {
			return outcomes, oc.fatal
		}
	}
	return outcomes, nil
}

// firstNonEmpty runs plans (concurrently or sequentially per
// req.Config.Speculative) and selects the first — in ordering order — whose
// result satisfies its minMatches, falling back to the last result if none
// qualify.
func (o *Orchestrator) firstNonEmpty(ctx context.Context, req Request, retrievers []RetrieverConfig, budget *Budget, emit EmitFunc) (QueryResult, error) {
	var outcomes []planOutcome

	if req.Config.Speculative {
		var err error
		outcomes, err = o.runAll(ctx, req, retrievers, budget)
		if err != nil {
			emitOutcomes(outcomes, "", emit)
			return QueryResult{}, err
		}
	} else {
		for i, rc := range retrievers {
			oc := o.runPlan(ctx, req, rc, i, budget)
			outcomes = append(outcomes, oc)
			if oc.fatal != nil {
				emitOutcomes(outcomes, "", emit)
				return QueryResult{}, oc.fatal
			}
			if oc.status == EventSuccess {
				break
			}
		}
	}

	for _, oc := range outcomes {
		if oc.status == EventSuccess {
			result, err := o.finish(StrategyFirstNonEmpty, req.Config.Speculative, outcomes, oc.config.Key, nil)
			emitOutcomes(outcomes, oc.config.Key, emit)
			return result, err
		}
	}

	if len(outcomes) == 0 {
		return QueryResult{}, nil
	}
	last := outcomes[len(outcomes)-1]
	if last.config.FailOnError {
		emitOutcomes(outcomes, "", emit)
		return QueryResult{}, &NoResultError{Strategy: StrategyFirstNonEmpty}
	}
	result, err := o.finish(StrategyFirstNonEmpty, req.Config.Speculative, outcomes, "", nil)
	result.Query, result.TopK, result.Matches = last.query, last.topK, last.matches
	emitOutcomes(outcomes, "", emit)
	return result, err
}

// NoResultError is returned by first-non-empty/adaptive when no plan
// satisfies its minMatches and the last-tried retriever has failOnError set.
type NoResultError struct {
	Strategy Strategy
}

func (e *NoResultError) Error() string {
	return "no retriever produced a satisfying result for strategy " + string(e.Strategy)
}

func (o *Orchestrator) mergeResult(outcomes []planOutcome) (QueryResult, error) {
	byChunk := make(map[string]knowledge.Match)
	topK := 0
	for _, oc := range outcomes {
		if oc.topK > topK {
			topK = oc.topK
		}
		for _, m := range oc.matches {
			existing, ok := byChunk[m.ChunkID]
			if !ok || m.Score > existing.Score {
				byChunk[m.ChunkID] = m
			}
		}
	}
	merged := make([]knowledge.Match, 0, len(byChunk))
	for _, m := range byChunk {
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}

	query := ""
	if len(outcomes) > 0 {
		query = outcomes[0].query
	}
	result, _ := o.finish(StrategyMerge, false, outcomes, "", nil)
	result.Query = query
	result.TopK = topK
	result.Matches = merged
	return result, nil
}

// bestScoreResult picks the plan whose top-1 match has the highest score,
// ties broken by larger total match count, then by retriever key
// lexicographic order.
func (o *Orchestrator) bestScoreResult(outcomes []planOutcome) (QueryResult, error) {
	bestIdx := -1
	for i, oc := range outcomes {
		if len(oc.matches) == 0 {
			continue
		}
		if bestIdx == -1 {
			bestIdx = i
			continue
		}
		best := outcomes[bestIdx]
		bestTop := best.matches[0].Score
		curTop := oc.matches[0].Score
		switch {
		case curTop > bestTop:
			bestIdx = i
		case curTop == bestTop && len(oc.matches) > len(best.matches):
			bestIdx = i
		case curTop == bestTop && len(oc.matches) == len(best.matches) && oc.config.Key < best.config.Key:
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		if len(outcomes) == 0 {
			return QueryResult{}, nil
		}
		bestIdx = 0
	}
	return o.finish(StrategyBestScore, false, outcomes, outcomes[bestIdx].config.Key, nil)
}

// finish assembles a QueryResult from the selected outcome, or from
// whichever single outcome matches selectedKey; callers that need a custom
// merged match set (merge strategy) overwrite Query/TopK/Matches
// afterwards.
func (o *Orchestrator) finish(strategy Strategy, speculative bool, outcomes []planOutcome, selectedKey string, fatal error) (QueryResult, error) {
	if fatal != nil {
		return QueryResult{}, fatal
	}

	tried := make([]string, 0, len(outcomes))
	var selected *planOutcome
	for i, oc := range outcomes {
		tried = append(tried, oc.config.Key)
		if oc.config.Key == selectedKey {
			selected = &outcomes[i]
		}
	}
	if selected == nil && len(outcomes) > 0 {
		selected = &outcomes[0]
	}

	result := QueryResult{
		Orchestration: Orchestration{
			Strategy:             strategy,
			Speculative:          speculative,
			RetrieversTried:      tried,
			SelectedRetrieverKey: selectedKey,
			BranchCount:          len(outcomes),
		},
	}
	if selected != nil {
		result.Query = selected.query
		result.TopK = selected.topK
		result.Matches = selected.matches
	}
	return result, nil
}

// runPlan executes one retriever's full attempt sequence: the primary
// query up to 1+MaxRetries times, then one fallback attempt if the primary
// never succeeded and a FallbackTemplate is configured.
func (o *Orchestrator) runPlan(ctx context.Context, req Request, rc RetrieverConfig, branchIndex int, budget *Budget) planOutcome {
	query := Interpolate(rc.QueryTemplate, req.Input)
	topK := rc.TopK
	if topK <= 0 {
		topK = 5
	}

	maxAttempts := 1 + rc.MaxRetries
	if rc.FallbackTemplate != "" {
		maxAttempts++
	}

	var last planOutcome
	var events []Event
	attempt := 0

	for a := 0; a < 1+rc.MaxRetries; a++ {
		attempt++
		last = o.attempt(ctx, req, rc, query, topK, attempt, maxAttempts, branchIndex, budget)
		events = append(events, last.events...)
		if last.fatal != nil || last.status == EventSuccess {
			last.events = events
			return last
		}
		if a < rc.MaxRetries {
			sleep(rc.RetryDelayMs)
		}
	}

	if last.status != EventSuccess && rc.FallbackTemplate != "" {
		attempt++
		fallbackQuery := Interpolate(rc.FallbackTemplate, req.Input)
		last = o.attempt(ctx, req, rc, fallbackQuery, topK, attempt, maxAttempts, branchIndex, budget)
		events = append(events, last.events...)
	}

	last.events = events
	return last
}

func sleep(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

// attempt performs exactly one retrieve call (or a budget-denied refusal)
// and builds exactly one Event for it; the caller is responsible for
// emitting it once the cross-retriever selection decision is known.
func (o *Orchestrator) attempt(ctx context.Context, req Request, rc RetrieverConfig, query string, topK, attemptNum, maxAttempts, branchIndex int, budget *Budget) planOutcome {
	base := planOutcome{config: rc, query: query, topK: topK}

	o.mu.Lock()
	exceeded, msg := budget.exceeded()
	o.mu.Unlock()

	if exceeded {
		ev := Event{
			NodeID: req.NodeID, NodeType: req.NodeType, Query: query, TopK: topK,
			Attempt: attemptNum, MaxAttempts: maxAttempts, Status: EventFailed,
			ErrorMessage: msg, ScopeType: rc.Scope.Type, CorpusID: rc.CorpusID,
			WorkflowIDScope: rc.Scope.WorkflowIDScope, ExecutionIDScope: rc.Scope.ExecutionIDScope,
			Strategy: req.Config.Strategy, RetrieverKey: rc.Key, BranchIndex: branchIndex,
		}
		base.events = []Event{ev}

		base.status = EventFailed
		if rc.FailOnError {
			base.fatal = &RetrievalBudgetExceededError{Message: msg}
		}
		return base
	}

	start := time.Now()
	result, err := o.port.Retrieve(ctx, knowledge.RetrieveRequest{
		ExecutionID: req.ExecutionID, WorkflowID: req.WorkflowID, UserID: req.UserID,
		NodeID: req.NodeID, NodeType: req.NodeType, Query: query, TopK: topK,
		CorpusID: rc.CorpusID, ScopeType: rc.Scope.Type,
		WorkflowIDScope: rc.Scope.WorkflowIDScope, ExecutionIDScope: rc.Scope.ExecutionIDScope,
		RetrieverKey: rc.Key, RetrievalStrategy: string(req.Config.Strategy), BranchIndex: branchIndex,
	})
	durationMs := int(time.Since(start).Milliseconds())

	var status EventStatus
	var errMsg string
	var matches []knowledge.Match

	if err != nil {
		status = EventFailed
		errMsg = err.Error()
	} else {
		matches = filterByScore(result.Matches, rc.MinScore)
		if len(matches) >= rc.MinMatches {
			status = EventSuccess
		} else {
			status = EventEmpty
		}
	}

	o.mu.Lock()
	budget.TotalRequests++
	budget.TotalDurationMs += durationMs
	switch status {
	case EventSuccess:
		budget.TotalSuccesses++
	case EventEmpty:
		budget.TotalEmpties++
	case EventFailed:
		budget.TotalFailures++
	}
	o.mu.Unlock()

	base.events = []Event{{
		NodeID: req.NodeID, NodeType: req.NodeType, Query: query, TopK: topK,
		Attempt: attemptNum, MaxAttempts: maxAttempts, Status: status,
		MatchesCount: len(matches), DurationMs: durationMs, ErrorMessage: errMsg,
		ScopeType: rc.Scope.Type, CorpusID: rc.CorpusID,
		WorkflowIDScope: rc.Scope.WorkflowIDScope, ExecutionIDScope: rc.Scope.ExecutionIDScope,
		Strategy: req.Config.Strategy, RetrieverKey: rc.Key, BranchIndex: branchIndex,
	}}

	base.status = status
	base.matches = matches
	if status == EventFailed && rc.FailOnError {
		base.fatal = &RetrievalBudgetExceededError{Message: errMsg}
	}
	return base
}

// RetrievalBudgetExceededError (and plain retrieval failures promoted to
// fatal by a retriever's FailOnError) is what Run returns when a retriever
// configured as fail-on-error cannot produce a result.
type RetrievalBudgetExceededError struct {
	Message string
}

func (e *RetrievalBudgetExceededError) Error() string { return e.Message }

func filterByScore(matches []knowledge.Match, minScore float64) []knowledge.Match {
	if minScore <= 0 {
		return matches
	}
	out := make([]knowledge.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= minScore {
			out = append(out, m)
		}
	}
	return out
}
