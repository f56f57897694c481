// Package knowledge defines the narrow retrieve/ingest port the retrieval
// orchestrator and knowledge-retrieve/knowledge-ingest nodes consume, plus a
// deterministic in-memory implementation suitable for tests and
// single-process deployments.
package knowledge

import "context"

// Match is one retrieved chunk.
type Match struct {
	ChunkID    string
	CorpusID   string
	DocumentID string
	ChunkIndex int
	Score      float64
	Content    string
	Title      string
	SourceType string
	Metadata   map[string]interface{}
}

// RetrieveRequest describes one retrieval call. ScopeType is one of "user",
// "workflow", "execution"; the matching *Scope field narrows the corpus
// search accordingly.
type RetrieveRequest struct {
	ExecutionID       string
	WorkflowID        string
	UserID            string
	NodeID            string
	NodeType          string
	Query             string
	TopK              int
	CorpusID          string
	ScopeType         string
	WorkflowIDScope   string
	ExecutionIDScope  string
	RetrieverKey      string
	RetrievalStrategy string
	BranchIndex       int
}

// RetrieveResult is the raw result of one retrieval call, before the
// orchestrator applies a strategy across multiple retriever plans.
type RetrieveResult struct {
	Query   string
	TopK    int
	Matches []Match
}

// IngestRequest describes a document to chunk, embed, and store.
type IngestRequest struct {
	ExecutionID      string
	WorkflowID       string
	UserID           string
	NodeID           string
	NodeType         string
	Title            string
	ContentText      string
	SourceType       string
	CorpusID         string
	ScopeType        string
	WorkflowIDScope  string
	ExecutionIDScope string
	Metadata         map[string]interface{}
}

// IngestResult reports where a document landed.
type IngestResult struct {
	CorpusID   string
	DocumentID string
	ChunkCount int
	Status     string
}

// Port is the engine's view of the knowledge subsystem: a black box with
// query and ingest operations. Embedding computation and corpus storage
// details live entirely behind implementations of this interface.
type Port interface {
	Retrieve(ctx context.Context, req RetrieveRequest) (RetrieveResult, error)
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
}
