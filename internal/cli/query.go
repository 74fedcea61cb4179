package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbitalmind/satrag/internal/embedder"
	"github.com/orbitalmind/satrag/internal/llm"
	"github.com/orbitalmind/satrag/internal/service"
	"github.com/orbitalmind/satrag/internal/vectorstore"
)

var (
	queryText        string
	queryDataset     string
	queryKinds       string
	queryCandidates  int
	queryTopK        int
	queryPerGroupCap int
	queryLambda      float64
	queryMinSim      float64
	queryIVFProbes   int
	queryHNSWEf      int
	queryNoCite      bool
	querySavePrompt  string
	queryJSON        bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one retrieval and inspect the reranked selection",
	Long: `Embed the question, fetch nearest-neighbor candidates, rerank them with
MMR and the per-item cap, and print a debug table plus a preview of the
assembled prompt context.

Examples:
  ragquery query -q "What does Sentinel-2 provide?"
  ragquery query -q "cloud cover" --kinds info,table --min-sim 0.65 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "natural language question (required)")
	queryCmd.Flags().StringVar(&queryDataset, "dataset", "", "filter: only kind='info' items with this dataset id")
	queryCmd.Flags().StringVar(&queryKinds, "kinds", "", "comma-separated item kinds (default from config)")
	queryCmd.Flags().IntVar(&queryCandidates, "candidates", 0, "initial vector candidates before reranking (default from config)")
	queryCmd.Flags().IntVarP(&queryTopK, "topk", "k", 0, "final K after reranking (default from config)")
	queryCmd.Flags().IntVar(&queryPerGroupCap, "per-group-cap", -1, "max chunks per item in the final set, 0 = unlimited (default from config)")
	queryCmd.Flags().Float64Var(&queryLambda, "mmr", -1, "MMR lambda in 0..1, higher favors relevance over diversity (default from config)")
	queryCmd.Flags().Float64Var(&queryMinSim, "min-sim", -1, "drop candidates with similarity below this (sim = 1 - dist for cosine)")
	queryCmd.Flags().IntVar(&queryIVFProbes, "ivf-probes", 0, "SET LOCAL ivfflat.probes for the search")
	queryCmd.Flags().IntVar(&queryHNSWEf, "hnsw-ef", 0, "SET LOCAL hnsw.ef_search for the search")
	queryCmd.Flags().BoolVar(&queryNoCite, "no-cite", false, "omit [kind:name#ix] citation tags from the context")
	queryCmd.Flags().StringVar(&querySavePrompt, "save-prompt", "", "write the full context to this path")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the final selection as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if queryIVFProbes > 0 {
		cfg.IVFProbes = queryIVFProbes
	}
	if queryHNSWEf > 0 {
		cfg.HNSWEf = queryHNSWEf
	}

	source, closeSource, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaEmbeddingModel,
	})

	// Generation is not exercised by the harness.
	svc := service.NewRetrievalService(embed, source, llm.NewMockClient(), cfg)

	req := buildRetrieveRequest()

	fmt.Println(">>> embedding query ...")
	result, err := svc.Retrieve(ctx, req)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	printDebugTable(result)

	if querySavePrompt != "" {
		if err := os.WriteFile(querySavePrompt, []byte(result.Document), 0o644); err != nil {
			return fmt.Errorf("failed to save prompt: %w", err)
		}
		abs, err := filepath.Abs(querySavePrompt)
		if err != nil {
			abs = querySavePrompt
		}
		fmt.Printf("\nSaved prompt context to: %s\n", abs)
	}

	if queryJSON {
		fmt.Println("\n=== JSON ===")
		out, err := json.MarshalIndent(result.Selection, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode selection: %w", err)
		}
		fmt.Println(string(out))
	}

	fmt.Println("\n--- Prompt Context Preview ---")
	fmt.Println()
	fmt.Println(trim(result.Document, 800))
	fmt.Println("\n(Use --save-prompt to write the full context to a file.)")

	return nil
}

// buildRetrieveRequest maps the query flags onto a request. The sentinel
// defaults (-1) mark a knob as untouched so that 0 stays expressible:
// --per-group-cap 0 means unlimited, --mmr 0 means pure diversity, and
// --min-sim 0 enables the threshold at zero.
func buildRetrieveRequest() service.RetrieveRequest {
	req := service.RetrieveRequest{
		Query:      queryText,
		Dataset:    queryDataset,
		Candidates: queryCandidates,
		TopK:       queryTopK,
	}
	if queryKinds != "" {
		req.Kinds = splitKinds(queryKinds)
	}
	if queryPerGroupCap >= 0 {
		req.PerGroupCap = &queryPerGroupCap
	}
	if queryLambda >= 0 {
		req.Lambda = &queryLambda
	}
	if queryMinSim >= 0 {
		req.MinSimilarity = &queryMinSim
	}
	if queryNoCite {
		cite := false
		req.Cite = &cite
	}
	return req
}

func openSource(ctx context.Context) (vectorstore.CandidateSource, func(), error) {
	switch cfg.CandidateSource {
	case "pgvector":
		pg, err := vectorstore.NewPgVectorSource(ctx, vectorstore.PgVectorConfig{
			DatabaseURL: cfg.DatabaseURL,
			IVFProbes:   cfg.IVFProbes,
			HNSWEf:      cfg.HNSWEf,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		return pg, pg.Close, nil
	case "qdrant":
		qd, err := vectorstore.NewQdrantSource(ctx, cfg.QdrantGRPCURL, cfg.QdrantCollection)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		return qd, func() { _ = qd.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown candidate source %q", cfg.CandidateSource)
	}
}

func printDebugTable(result *service.RetrieveResult) {
	fmt.Println("\n=== Retrieval Debug ===")
	fmt.Printf("Query: %s\n", queryText)

	kinds := queryKinds
	if kinds == "" {
		kinds = cfg.DefaultKinds
	}
	dataset := queryDataset
	if dataset == "" {
		dataset = "(any)"
	}
	fmt.Printf("Filters: kinds=%s dataset=%s\n", kinds, dataset)
	if cfg.IVFProbes > 0 {
		fmt.Printf("ivfflat.probes=%d\n", cfg.IVFProbes)
	}
	if cfg.HNSWEf > 0 {
		fmt.Printf("hnsw.ef_search=%d\n", cfg.HNSWEf)
	}
	fmt.Printf("Candidates: %d  ->  After threshold: %d  ->  Final: %d\n",
		result.PoolSize, result.FilteredSize, len(result.Selection))

	fmt.Println("\nRank  sim     dist    kind    name                              ix   preview")
	fmt.Println("----  ------  ------  ------  --------------------------------  ---  -------------------------------")
	for i, c := range result.Selection {
		name := c.Name
		if len(name) > 30 {
			name = name[:30]
		}
		fmt.Printf("%4d  %.4f  %.4f  %-6s  %-30s  %3d  %s\n",
			i+1, c.Similarity, c.Distance, c.Kind, name, c.Index, trim(c.Text, 60))
	}
}

func splitKinds(s string) []string {
	parts := strings.Split(s, ",")
	kinds := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// trim flattens newlines and cuts the string for single-line display.
// Truncation counts runes so a multi-byte character is never split.
func trim(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "..."
}
