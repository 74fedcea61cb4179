// Package service orchestrates the retrieval pipeline: encode the query,
// fetch nearest-neighbor candidates, normalize and threshold, select a
// diverse subset, and assemble the context document.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalmind/satrag/internal/cache"
	"github.com/orbitalmind/satrag/internal/config"
	"github.com/orbitalmind/satrag/internal/embedder"
	"github.com/orbitalmind/satrag/internal/llm"
	"github.com/orbitalmind/satrag/internal/retrieval"
	"github.com/orbitalmind/satrag/internal/vectorstore"
)

// RetrievalService runs the context-retrieval pipeline against its
// collaborators. Independent calls share no mutable state; the optional
// context slot is the only cross-request memory and is best-effort only.
type RetrievalService struct {
	embedder embedder.Embedder
	source   vectorstore.CandidateSource
	llm      llm.LLM
	cfg      *config.Config
	slot     *cache.ContextSlot
	logger   *slog.Logger
}

// Option is a functional option for configuring RetrievalService.
type Option func(*RetrievalService)

// WithContextCache attaches a single-slot retrieval cache. Query reuses the
// cached document when the question text matches exactly.
func WithContextCache(slot *cache.ContextSlot) Option {
	return func(s *RetrievalService) {
		s.slot = slot
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *RetrievalService) {
		s.logger = logger
	}
}

// NewRetrievalService creates a new RetrievalService.
func NewRetrievalService(
	emb embedder.Embedder,
	source vectorstore.CandidateSource,
	llmClient llm.LLM,
	cfg *config.Config,
	opts ...Option,
) *RetrievalService {
	s := &RetrievalService{
		embedder: emb,
		source:   source,
		llm:      llmClient,
		cfg:      cfg,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RetrieveRequest asks for a context document for one question. Zero-valued
// fields fall back to the configured defaults; pointer fields distinguish
// "not set" from a meaningful zero (lambda 0 and cap 0 are both valid).
type RetrieveRequest struct {
	Query         string   `json:"query"`
	Dataset       string   `json:"dataset,omitempty"`
	Kinds         []string `json:"kinds,omitempty"`
	Candidates    int      `json:"candidates,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	PerGroupCap   *int     `json:"per_group_cap,omitempty"`
	Lambda        *float64 `json:"mmr_lambda,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
	Cite          *bool    `json:"cite,omitempty"`
	Header        *string  `json:"header,omitempty"`
	Footer        *string  `json:"footer,omitempty"`
}

// RetrieveResult is the outcome of one retrieval. Empty set with no error is
// the explicit "no context available" outcome, distinct from failure.
type RetrieveResult struct {
	QueryID   string                `json:"query_id"`
	Document  string                `json:"document"`
	Selection []retrieval.Candidate `json:"selection"`
	Empty     bool                  `json:"empty"`

	// Diagnostics
	PoolSize      int           `json:"pool_size"`
	FilteredSize  int           `json:"filtered_size"`
	RetrievalTime time.Duration `json:"retrieval_time"`
}

// QueryRequest retrieves context and generates an answer from it.
type QueryRequest struct {
	RetrieveRequest

	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// QueryResult carries the generated answer plus the selection it was
// grounded on.
type QueryResult struct {
	QueryID        string                `json:"query_id"`
	Answer         string                `json:"answer"`
	Sources        []retrieval.Candidate `json:"sources"`
	NoContext      bool                  `json:"no_context"`
	CacheHit       bool                  `json:"cache_hit"`
	RetrievalTime  time.Duration         `json:"retrieval_time"`
	GenerationTime time.Duration         `json:"generation_time"`
}

// retrieveOptions are the fully resolved knobs for one retrieval.
type retrieveOptions struct {
	kinds         []string
	dataset       string
	candidates    int
	selection     retrieval.SelectionConfig
	minSimilarity *float64
	assemble      retrieval.AssembleOptions
}

// resolveOptions merges request overrides over the configured defaults and
// validates the result. Invalid parameters are rejected here, before the
// algorithm runs.
func (s *RetrievalService) resolveOptions(req RetrieveRequest) (retrieveOptions, error) {
	if strings.TrimSpace(req.Query) == "" {
		return retrieveOptions{}, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}

	opts := retrieveOptions{
		kinds:      s.cfg.Kinds(),
		dataset:    req.Dataset,
		candidates: s.cfg.DefaultCandidates,
		selection: retrieval.SelectionConfig{
			K:           s.cfg.DefaultTopK,
			Lambda:      s.cfg.DefaultLambda,
			PerGroupCap: s.cfg.DefaultPerGroupCap,
		},
		assemble: retrieval.AssembleOptions{
			Header: s.cfg.ContextHeader,
			Footer: s.cfg.ContextFooter,
			Cite:   s.cfg.CiteSources,
		},
	}

	if s.cfg.DefaultMinSimilarity > 0 {
		min := s.cfg.DefaultMinSimilarity
		opts.minSimilarity = &min
	}

	if len(req.Kinds) > 0 {
		opts.kinds = req.Kinds
	}
	if req.Candidates > 0 {
		opts.candidates = req.Candidates
	}
	if req.TopK > 0 {
		opts.selection.K = req.TopK
	}
	if req.PerGroupCap != nil {
		opts.selection.PerGroupCap = *req.PerGroupCap
	}
	if req.Lambda != nil {
		opts.selection.Lambda = *req.Lambda
	}
	if req.MinSimilarity != nil {
		opts.minSimilarity = req.MinSimilarity
	}
	if req.Cite != nil {
		opts.assemble.Cite = *req.Cite
	}
	if req.Header != nil {
		opts.assemble.Header = *req.Header
	}
	if req.Footer != nil {
		opts.assemble.Footer = *req.Footer
	}

	if err := opts.selection.Validate(); err != nil {
		return retrieveOptions{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if opts.candidates < 0 {
		return retrieveOptions{}, fmt.Errorf("%w: candidate pool must not be negative", ErrInvalidRequest)
	}

	return opts, nil
}

// Retrieve runs the full pipeline for one question and returns the assembled
// context document with its selection and diagnostics.
func (s *RetrievalService) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	opts, err := s.resolveOptions(req)
	if err != nil {
		return nil, err
	}

	queryID := uuid.New().String()
	start := time.Now()

	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, upstream("embedder", err)
	}

	rows, err := s.source.Search(ctx, vector, vectorstore.Filters{
		Kinds:   opts.kinds,
		Dataset: opts.dataset,
	}, opts.candidates)
	if err != nil {
		return nil, upstream("candidate source", err)
	}

	candidates := retrieval.Normalize(rows, nil, opts.minSimilarity)
	selection := retrieval.Select(candidates, opts.selection)

	result := &RetrieveResult{
		QueryID:       queryID,
		Selection:     selection,
		PoolSize:      len(rows),
		FilteredSize:  len(candidates),
		RetrievalTime: time.Since(start),
	}

	if len(selection) == 0 {
		// No context available. Not an error.
		result.Empty = true
	} else {
		result.Document = retrieval.Assemble(selection, opts.assemble)
	}

	s.logger.Debug("retrieval complete",
		"query_id", queryID,
		"pool", result.PoolSize,
		"after_threshold", result.FilteredSize,
		"selected", len(selection),
		"duration", result.RetrievalTime,
	)

	return result, nil
}

// prepareQuery resolves the context for one question: cached retrieval when
// the slot holds this exact query text, a fresh Retrieve otherwise. It returns
// the partially filled result (id, sources, retrieval diagnostics) and the
// prompt to hand to the generator.
func (s *RetrievalService) prepareQuery(ctx context.Context, req QueryRequest) (*QueryResult, string, error) {
	result := &QueryResult{}

	var document string
	var selection []retrieval.Candidate

	if s.slot != nil {
		if entry, ok := s.slot.Get(req.Query); ok {
			document = entry.Document
			selection = entry.Selection
			result.CacheHit = true
		}
	}

	if !result.CacheHit {
		retrieved, err := s.Retrieve(ctx, req.RetrieveRequest)
		if err != nil {
			return nil, "", err
		}
		document = retrieved.Document
		selection = retrieved.Selection
		result.QueryID = retrieved.QueryID
		result.RetrievalTime = retrieved.RetrievalTime

		if s.slot != nil {
			s.slot.Put(req.Query, cache.Entry{Document: document, Selection: selection})
		}
	} else {
		result.QueryID = uuid.New().String()
	}

	result.Sources = selection
	result.NoContext = len(selection) == 0

	return result, buildAnswerPrompt(req.Query, document), nil
}

// Query retrieves context for the question and asks the generator to answer
// from it. When a context slot is attached and holds this exact question,
// the cached retrieval is reused instead of recomputed.
func (s *RetrievalService) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	result, prompt, err := s.prepareQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	genStart := time.Now()
	answer, err := s.llm.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, upstream("llm", err)
	}
	result.GenerationTime = time.Since(genStart)
	result.Answer = answer

	s.logger.Debug("query complete",
		"query_id", result.QueryID,
		"cache_hit", result.CacheHit,
		"sources", len(result.Sources),
		"generation_time", result.GenerationTime,
	)

	return result, nil
}

// QueryStreamEvent is one event of a streaming query: a generated token, a
// mid-stream failure, or the final result carrying the full answer, sources
// and timings. Exactly one of the fields is set.
type QueryStreamEvent struct {
	Token string
	Err   error
	Final *QueryResult
}

// QueryStream is Query with the generation streamed token by token. Retrieval
// runs up front (errors surface before any event is emitted); the returned
// channel then carries tokens as the generator produces them and is closed
// after the final event.
func (s *RetrievalService) QueryStream(ctx context.Context, req QueryRequest) (<-chan QueryStreamEvent, error) {
	result, prompt, err := s.prepareQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	genStart := time.Now()
	chunks, err := s.llm.GenerateStream(ctx, prompt, llm.GenerateOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, upstream("llm", err)
	}

	events := make(chan QueryStreamEvent)
	go func() {
		defer close(events)

		var answer strings.Builder
		for chunk := range chunks {
			if chunk.Error != nil {
				events <- QueryStreamEvent{Err: upstream("llm", chunk.Error)}
				return
			}
			if chunk.Token != "" {
				answer.WriteString(chunk.Token)
				events <- QueryStreamEvent{Token: chunk.Token}
			}
		}

		result.Answer = answer.String()
		result.GenerationTime = time.Since(genStart)

		s.logger.Debug("streaming query complete",
			"query_id", result.QueryID,
			"cache_hit", result.CacheHit,
			"sources", len(result.Sources),
			"generation_time", result.GenerationTime,
		)

		events <- QueryStreamEvent{Final: result}
	}()

	return events, nil
}

// buildAnswerPrompt frames the assembled context and the question for the
// generator. The context document already carries its own header and footer
// instructions.
func buildAnswerPrompt(question, document string) string {
	var sb strings.Builder

	if document != "" {
		sb.WriteString(document)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("(no retrieved context available)\n\n")
	}

	sb.WriteString("## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n\n## Answer (be brief and direct)\n")

	return sb.String()
}
