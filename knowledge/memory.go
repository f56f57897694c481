package knowledge

import (
	"context"
	"crypto/sha256"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Corpus groups documents under a user, workflow, or execution scope.
type Corpus struct {
	ID               string
	UserID           string
	ScopeType        string
	WorkflowIDScope  string
	ExecutionIDScope string
}

// Document is one ingested piece of content, split into Chunks.
type Document struct {
	ID         string
	CorpusID   string
	Title      string
	SourceType string
	Metadata   map[string]interface{}
}

// Chunk carries a precomputed embedding alongside its text.
type Chunk struct {
	ID         string
	DocumentID string
	CorpusID   string
	Index      int
	Content    string
	Embedding  []float64
}

const embeddingDims = 64

// embed computes a deterministic hash-based embedding: text is tokenized on
// whitespace, each token is hashed into a bucket in a fixed-size vector, and
// the vector is L2-normalized. Two pieces of text sharing vocabulary land
// closer together under cosine similarity; this needs no model weights or
// network calls, which is exactly what makes it suitable as the engine's
// default pluggable retriever.
func embed(text string) []float64 {
	vec := make([]float64, embeddingDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		bucket := int(sum[0])<<8 | int(sum[1])
		bucket %= embeddingDims
		sign := 1.0
		if sum[2]%2 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func cosine(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// Store is an in-memory Port implementation: a process-local index of
// corpora, documents, and chunks, searched by deterministic hash-based
// embedding similarity. It is the engine's default knowledge backend and is
// also used directly in tests.
type Store struct {
	mu       sync.RWMutex
	corpora  map[string]Corpus
	docs     map[string]Document
	chunks   map[string][]Chunk // corpusID -> chunks
	runtimeC map[string]string  // scope key -> auto-created runtime corpus ID
}

// NewStore creates an empty in-memory knowledge store.
func NewStore() *Store {
	return &Store{
		corpora:  make(map[string]Corpus),
		docs:     make(map[string]Document),
		chunks:   make(map[string][]Chunk),
		runtimeC: make(map[string]string),
	}
}

// CreateCorpus registers a new corpus scoped as given and returns its ID.
func (s *Store) CreateCorpus(userID, scopeType, workflowIDScope, executionIDScope string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.corpora[id] = Corpus{
		ID:               id,
		UserID:           userID,
		ScopeType:        scopeType,
		WorkflowIDScope:  workflowIDScope,
		ExecutionIDScope: executionIDScope,
	}
	return id
}

func scopeKey(userID, scopeType, workflowIDScope, executionIDScope string) string {
	return strings.Join([]string{userID, scopeType, workflowIDScope, executionIDScope}, "|")
}

// resolveCorpus finds an explicit corpus, or auto-creates (and remembers)
// one runtime corpus per distinct scope — the open question in DESIGN.md
// answered in favor of the source's behavior.
func (s *Store) resolveCorpus(corpusID, userID, scopeType, workflowIDScope, executionIDScope string) string {
	if corpusID != "" {
		return corpusID
	}
	key := scopeKey(userID, scopeType, workflowIDScope, executionIDScope)

	s.mu.RLock()
	existing, ok := s.runtimeC[key]
	s.mu.RUnlock()
	if ok {
		return existing
	}

	id := s.CreateCorpus(userID, scopeType, workflowIDScope, executionIDScope)
	s.mu.Lock()
	if existing, ok := s.runtimeC[key]; ok {
		// Lost the race to another concurrent ingest; keep the first winner
		// and discard the corpus we just created (it stays empty, harmless).
		id = existing
	} else {
		s.runtimeC[key] = id
	}
	s.mu.Unlock()
	return id
}

// Ingest chunks ContentText by paragraph, embeds each chunk, and stores it
// under the resolved corpus.
func (s *Store) Ingest(_ context.Context, req IngestRequest) (IngestResult, error) {
	corpusID := s.resolveCorpus(req.CorpusID, req.UserID, req.ScopeType, req.WorkflowIDScope, req.ExecutionIDScope)

	docID := uuid.NewString()
	doc := Document{
		ID:         docID,
		CorpusID:   corpusID,
		Title:      req.Title,
		SourceType: req.SourceType,
		Metadata:   req.Metadata,
	}

	paragraphs := splitParagraphs(req.ContentText)
	chunks := make([]Chunk, 0, len(paragraphs))
	for i, p := range paragraphs {
		chunks = append(chunks, Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			CorpusID:   corpusID,
			Index:      i,
			Content:    p,
			Embedding:  embed(p),
		})
	}

	s.mu.Lock()
	s.docs[docID] = doc
	s.chunks[corpusID] = append(s.chunks[corpusID], chunks...)
	s.mu.Unlock()

	return IngestResult{
		CorpusID:   corpusID,
		DocumentID: docID,
		ChunkCount: len(chunks),
		Status:     "ingested",
	}, nil
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = append(out, strings.TrimSpace(text))
	}
	return out
}

// Retrieve embeds the query and ranks every chunk in the resolved corpus by
// cosine similarity, returning the top K.
func (s *Store) Retrieve(_ context.Context, req RetrieveRequest) (RetrieveResult, error) {
	corpusID := req.CorpusID
	if corpusID == "" {
		key := scopeKey(req.UserID, req.ScopeType, req.WorkflowIDScope, req.ExecutionIDScope)
		s.mu.RLock()
		corpusID = s.runtimeC[key]
		s.mu.RUnlock()
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	if corpusID == "" {
		return RetrieveResult{Query: req.Query, TopK: topK}, nil
	}

	qvec := embed(req.Query)

	s.mu.RLock()
	chunks := append([]Chunk(nil), s.chunks[corpusID]...)
	docs := s.docs
	s.mu.RUnlock()

	type scored struct {
		chunk Chunk
		score float64
	}
	results := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, scored{chunk: c, score: cosine(qvec, c.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if len(results) > topK {
		results = results[:topK]
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		title := ""
		sourceType := ""
		var meta map[string]interface{}
		if d, ok := docs[r.chunk.DocumentID]; ok {
			title = d.Title
			sourceType = d.SourceType
			meta = d.Metadata
		}
		matches = append(matches, Match{
			ChunkID:    r.chunk.ID,
			CorpusID:   r.chunk.CorpusID,
			DocumentID: r.chunk.DocumentID,
			ChunkIndex: r.chunk.Index,
			Score:      r.score,
			Content:    r.chunk.Content,
			Title:      title,
			SourceType: sourceType,
			Metadata:   meta,
		})
	}

	return RetrieveResult{Query: req.Query, TopK: topK, Matches: matches}, nil
}
