package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/orbitalmind/satrag/internal/cache"
	"github.com/orbitalmind/satrag/internal/config"
	"github.com/orbitalmind/satrag/internal/llm"
	"github.com/orbitalmind/satrag/internal/retrieval"
	"github.com/orbitalmind/satrag/internal/vectorstore"
)

// fakeEmbedder returns a fixed vector.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

// fakeSource returns canned rows.
type fakeSource struct {
	rows    []retrieval.Row
	err     error
	filters vectorstore.Filters
	limit   int
}

func (f *fakeSource) Search(ctx context.Context, vector []float32, filters vectorstore.Filters, limit int) ([]retrieval.Row, error) {
	f.filters = filters
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func testConfig() *config.Config {
	return &config.Config{
		CandidateSource:      "pgvector",
		LLMBackend:           "mock",
		DefaultCandidates:    80,
		DefaultTopK:          12,
		DefaultPerGroupCap:   2,
		DefaultLambda:        0.5,
		DefaultMinSimilarity: 0, // disabled unless a test opts in
		DefaultKinds:         "table,column,key,info",
		CiteSources:          true,
		ContextHeader:        "H",
		ContextFooter:        "F",
	}
}

func testRows() []retrieval.Row {
	return []retrieval.Row{
		{ID: "c1", Group: "itemA", Kind: "table", Name: "missions", Index: 0, Text: "alpha", Distance: 0.1},
		{ID: "c2", Group: "itemA", Kind: "table", Name: "missions", Index: 1, Text: "beta", Distance: 0.15},
		{ID: "c3", Group: "itemB", Kind: "info", Name: "sat-info", Index: 0, Text: "gamma", Distance: 0.2},
	}
}

func newTestService(rows []retrieval.Row, opts ...Option) (*RetrievalService, *fakeEmbedder, *fakeSource, *llm.MockClient) {
	emb := &fakeEmbedder{}
	src := &fakeSource{rows: rows}
	mock := llm.NewMockClient()
	svc := NewRetrievalService(emb, src, mock, testConfig(), opts...)
	return svc, emb, src, mock
}

func TestRetrieve_HappyPath(t *testing.T) {
	svc, _, src, _ := newTestService(testRows())

	result, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if result.Empty {
		t.Fatal("unexpected empty result")
	}
	if result.PoolSize != 3 || result.FilteredSize != 3 {
		t.Errorf("unexpected diagnostics: pool=%d filtered=%d", result.PoolSize, result.FilteredSize)
	}
	if len(result.Selection) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(result.Selection))
	}
	if result.Selection[0].ID != "c1" {
		t.Errorf("expected most similar candidate first, got %s", result.Selection[0].ID)
	}
	if !strings.HasPrefix(result.Document, "H\n\n--- Retrieved context ---") {
		t.Errorf("document missing header/marker: %q", result.Document)
	}
	if !strings.Contains(result.Document, "[table:missions#0]\nalpha") {
		t.Errorf("document missing cited fragment: %q", result.Document)
	}
	if src.limit != 80 {
		t.Errorf("expected configured candidate pool 80, got %d", src.limit)
	}
	if result.QueryID == "" {
		t.Error("expected a query id")
	}
}

func TestRetrieve_PassesFilters(t *testing.T) {
	svc, _, src, _ := newTestService(testRows())

	_, err := svc.Retrieve(context.Background(), RetrieveRequest{
		Query:   "q",
		Dataset: "sat-info",
		Kinds:   []string{"info"},
	})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if src.filters.Dataset != "sat-info" {
		t.Errorf("dataset filter not forwarded: %+v", src.filters)
	}
	if len(src.filters.Kinds) != 1 || src.filters.Kinds[0] != "info" {
		t.Errorf("kind filter not forwarded: %+v", src.filters)
	}
}

func TestRetrieve_EmptyPoolIsNotAnError(t *testing.T) {
	svc, _, _, _ := newTestService(nil)

	result, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q"})
	if err != nil {
		t.Fatalf("empty pool must not be an error: %v", err)
	}
	if !result.Empty {
		t.Error("expected explicit empty outcome")
	}
	if result.Document != "" {
		t.Errorf("expected empty document, got %q", result.Document)
	}
}

func TestRetrieve_ThresholdProducesEmptyOutcome(t *testing.T) {
	svc, _, _, _ := newTestService([]retrieval.Row{
		{ID: "far", Group: "a", Distance: 0.9}, // sim 0.1
	})
	min := 0.6

	result, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", MinSimilarity: &min})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !result.Empty {
		t.Error("expected empty outcome when nothing survives the threshold")
	}
	if result.PoolSize != 1 || result.FilteredSize != 0 {
		t.Errorf("diagnostics wrong: pool=%d filtered=%d", result.PoolSize, result.FilteredSize)
	}
}

func TestRetrieve_PerGroupCapOverride(t *testing.T) {
	svc, _, _, _ := newTestService(testRows())
	groupCap := 1

	result, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", PerGroupCap: &groupCap})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	counts := make(map[string]int)
	for _, c := range result.Selection {
		counts[c.Group]++
	}
	for g, n := range counts {
		if n > 1 {
			t.Errorf("group %s exceeds overridden cap: %d", g, n)
		}
	}
}

func TestRetrieve_LambdaZeroOverrideIsHonored(t *testing.T) {
	// A pointer to zero must not fall back to the configured default.
	svc, _, _, _ := newTestService(testRows())
	lambda := 0.0

	result, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", Lambda: &lambda, TopK: 2})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	// Seed c1 (itemA); with lambda 0 the itemB candidate must beat c2.
	if result.Selection[1].ID != "c3" {
		t.Errorf("lambda=0 override ignored; second pick was %s", result.Selection[1].ID)
	}
}

func TestRetrieve_RejectsInvalidConfig(t *testing.T) {
	svc, _, _, _ := newTestService(testRows())
	badLambda := 1.5

	_, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", Lambda: &badLambda})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}

	negCap := -1
	_, err = svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", PerGroupCap: &negCap})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for negative cap, got %v", err)
	}
}

func TestRetrieve_RejectsEmptyQuery(t *testing.T) {
	svc, _, _, _ := newTestService(testRows())

	_, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "   "})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRetrieve_EmbedderFailureIsUpstream(t *testing.T) {
	svc, emb, _, _ := newTestService(testRows())
	emb.err = errors.New("connection refused")

	_, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q"})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Collaborator != "embedder" {
		t.Errorf("expected embedder collaborator, got %s", ue.Collaborator)
	}
}

func TestRetrieve_SourceFailureIsUpstream(t *testing.T) {
	svc, _, src, _ := newTestService(testRows())
	src.err = errors.New("timeout")

	_, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q"})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Collaborator != "candidate source" {
		t.Errorf("expected candidate source collaborator, got %s", ue.Collaborator)
	}
}

func TestQuery_GeneratesFromRetrievedContext(t *testing.T) {
	svc, _, _, mock := newTestService(testRows())
	mock.Response = "the answer"

	result, err := svc.Query(context.Background(), QueryRequest{
		RetrieveRequest: RetrieveRequest{Query: "what is up there?"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if result.Answer != "the answer" {
		t.Errorf("unexpected answer %q", result.Answer)
	}
	if len(result.Sources) != 3 {
		t.Errorf("expected 3 sources, got %d", len(result.Sources))
	}
	if !strings.Contains(mock.LastPrompt, "--- Retrieved context ---") {
		t.Errorf("prompt missing context document: %q", mock.LastPrompt)
	}
	if !strings.Contains(mock.LastPrompt, "## Question\nwhat is up there?") {
		t.Errorf("prompt missing question: %q", mock.LastPrompt)
	}
}

func TestQuery_NoContextOutcome(t *testing.T) {
	svc, _, _, mock := newTestService(nil)

	result, err := svc.Query(context.Background(), QueryRequest{
		RetrieveRequest: RetrieveRequest{Query: "q"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !result.NoContext {
		t.Error("expected no-context outcome")
	}
	if !strings.Contains(mock.LastPrompt, "(no retrieved context available)") {
		t.Errorf("prompt should state missing context: %q", mock.LastPrompt)
	}
}

func TestQuery_LLMFailureIsUpstream(t *testing.T) {
	svc, _, _, mock := newTestService(testRows())
	mock.Err = errors.New("model not loaded")

	_, err := svc.Query(context.Background(), QueryRequest{
		RetrieveRequest: RetrieveRequest{Query: "q"},
	})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Collaborator != "llm" {
		t.Errorf("expected llm collaborator, got %s", ue.Collaborator)
	}
}

func TestQuery_CacheHitSkipsRetrieval(t *testing.T) {
	slot := cache.NewContextSlot()
	svc, emb, _, _ := newTestService(testRows(), WithContextCache(slot))

	req := QueryRequest{RetrieveRequest: RetrieveRequest{Query: "same question"}}

	first, err := svc.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("first Query failed: %v", err)
	}
	if first.CacheHit {
		t.Error("first call must not hit the cache")
	}

	second, err := svc.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("second Query failed: %v", err)
	}
	if !second.CacheHit {
		t.Error("second call with identical query must hit the cache")
	}
	if emb.calls != 1 {
		t.Errorf("expected a single embedding call, got %d", emb.calls)
	}
	if len(second.Sources) != len(first.Sources) {
		t.Errorf("cached sources differ: %d vs %d", len(second.Sources), len(first.Sources))
	}
}

func TestQuery_DistinctQueryMissesCache(t *testing.T) {
	slot := cache.NewContextSlot()
	svc, emb, _, _ := newTestService(testRows(), WithContextCache(slot))

	if _, err := svc.Query(context.Background(), QueryRequest{RetrieveRequest: RetrieveRequest{Query: "one"}}); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	result, err := svc.Query(context.Background(), QueryRequest{RetrieveRequest: RetrieveRequest{Query: "two"}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if result.CacheHit {
		t.Error("distinct query must not hit the cache")
	}
	if emb.calls != 2 {
		t.Errorf("expected two embedding calls, got %d", emb.calls)
	}
}

func TestQuery_NoCacheConfigured(t *testing.T) {
	svc, emb, _, _ := newTestService(testRows())

	req := QueryRequest{RetrieveRequest: RetrieveRequest{Query: "q"}}
	for i := 0; i < 2; i++ {
		result, err := svc.Query(context.Background(), req)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if result.CacheHit {
			t.Error("cache hit without a configured slot")
		}
	}
	if emb.calls != 2 {
		t.Errorf("expected retrieval on every call, got %d embedding calls", emb.calls)
	}
}

// faultyStreamLLM starts streaming normally, then fails mid-generation.
type faultyStreamLLM struct {
	tokens []string
	err    error
}

func (f *faultyStreamLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return "", f.err
}

func (f *faultyStreamLLM) GenerateStream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	chunks := make(chan llm.StreamChunk, len(f.tokens)+1)
	for _, tok := range f.tokens {
		chunks <- llm.StreamChunk{Token: tok}
	}
	chunks <- llm.StreamChunk{Error: f.err}
	close(chunks)
	return chunks, nil
}

func TestQueryStream(t *testing.T) {
	svc, _, _, mock := newTestService(testRows())
	mock.Response = "streamed answer"

	events, err := svc.QueryStream(context.Background(), QueryRequest{
		RetrieveRequest: RetrieveRequest{Query: "what is up there?"},
	})
	if err != nil {
		t.Fatalf("QueryStream failed: %v", err)
	}

	var tokens strings.Builder
	var final *QueryResult
	for event := range events {
		switch {
		case event.Err != nil:
			t.Fatalf("unexpected stream error: %v", event.Err)
		case event.Final != nil:
			final = event.Final
		default:
			tokens.WriteString(event.Token)
		}
	}

	if tokens.String() != "streamed answer" {
		t.Errorf("expected streamed tokens, got %q", tokens.String())
	}
	if final == nil {
		t.Fatal("expected a final event")
	}
	if final.Answer != "streamed answer" {
		t.Errorf("final answer = %q, want streamed tokens", final.Answer)
	}
	if len(final.Sources) == 0 {
		t.Error("expected sources on the final event")
	}
	if final.QueryID == "" {
		t.Error("expected a query id on the final event")
	}
}

func TestQueryStream_UpstreamError(t *testing.T) {
	svc, _, _, mock := newTestService(testRows())
	mock.Err = errors.New("model not loaded")

	_, err := svc.QueryStream(context.Background(), QueryRequest{
		RetrieveRequest: RetrieveRequest{Query: "q"},
	})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Collaborator != "llm" {
		t.Errorf("collaborator = %q, want llm", ue.Collaborator)
	}
}

func TestQueryStream_MidStreamError(t *testing.T) {
	faulty := &faultyStreamLLM{tokens: []string{"partial "}, err: errors.New("connection reset")}
	svc := NewRetrievalService(&fakeEmbedder{}, &fakeSource{rows: testRows()}, faulty, testConfig())

	events, err := svc.QueryStream(context.Background(), QueryRequest{
		RetrieveRequest: RetrieveRequest{Query: "q"},
	})
	if err != nil {
		t.Fatalf("QueryStream failed: %v", err)
	}

	var sawToken, sawFinal bool
	var streamErr error
	for event := range events {
		switch {
		case event.Err != nil:
			streamErr = event.Err
		case event.Final != nil:
			sawFinal = true
		default:
			sawToken = true
		}
	}

	if !sawToken {
		t.Error("expected tokens before the failure")
	}
	if sawFinal {
		t.Error("expected no final event after a mid-stream failure")
	}
	var ue *UpstreamError
	if !errors.As(streamErr, &ue) {
		t.Fatalf("expected UpstreamError from the stream, got %v", streamErr)
	}
}
