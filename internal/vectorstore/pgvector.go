package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitalmind/satrag/internal/retrieval"
)

// PgVectorConfig holds configuration for the pgvector candidate source.
type PgVectorConfig struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// IVFProbes sets ivfflat.probes for the search transaction when > 0.
	IVFProbes int

	// HNSWEf sets hnsw.ef_search for the search transaction when > 0.
	HNSWEf int
}

// PgVectorSource retrieves candidates from a Postgres database with the
// pgvector extension. It expects the ingestion schema: rag.rag_item holds
// parent items (id, kind, name, metadata jsonb) and rag.rag_chunk holds their
// embedded fragments (id, item_id, chunk_ix, chunk_text, embedding vector).
type PgVectorSource struct {
	pool      *pgxpool.Pool
	ivfProbes int
	hnswEf    int
}

// NewPgVectorSource creates a pgvector candidate source and verifies the
// connection.
func NewPgVectorSource(ctx context.Context, cfg PgVectorConfig) (*PgVectorSource, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PgVectorSource{
		pool:      pool,
		ivfProbes: cfg.IVFProbes,
		hnswEf:    cfg.HNSWEf,
	}, nil
}

// Close closes the connection pool.
func (s *PgVectorSource) Close() {
	s.pool.Close()
}

// Ping verifies the database connection.
func (s *PgVectorSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Search runs a cosine-distance KNN query over rag.rag_chunk and returns rows
// in ascending distance order. The ANN session knobs (ivfflat.probes,
// hnsw.ef_search) apply only to this search's transaction.
func (s *PgVectorSource) Search(ctx context.Context, vector []float32, filters Filters, limit int) ([]retrieval.Row, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// SET LOCAL does not take bind parameters; the values are validated ints.
	if s.ivfProbes > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", s.ivfProbes)); err != nil {
			return nil, fmt.Errorf("failed to set ivfflat.probes: %w", err)
		}
	}
	if s.hnswEf > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", s.hnswEf)); err != nil {
			return nil, fmt.Errorf("failed to set hnsw.ef_search: %w", err)
		}
	}

	qvec := pgvectorLiteral(vector)

	where := []string{}
	args := []any{qvec}
	if len(filters.Kinds) > 0 {
		args = append(args, filters.Kinds)
		where = append(where, fmt.Sprintf("i.kind = ANY($%d)", len(args)))
	}
	if filters.Dataset != "" {
		args = append(args, filters.Dataset)
		where = append(where, fmt.Sprintf("(i.kind <> 'info' OR i.metadata->>'dataset' = $%d)", len(args)))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, limit)
	sql := fmt.Sprintf(`
		SELECT c.id, i.id AS item_id, i.kind, i.name, c.chunk_ix, c.chunk_text,
		       (c.embedding <=> $1::vector) AS dist
		FROM rag.rag_chunk c
		JOIN rag.rag_item  i ON i.id = c.item_id
		%s
		ORDER BY c.embedding <=> $1::vector
		LIMIT $%d`, whereSQL, len(args))

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []retrieval.Row
	for rows.Next() {
		var r retrieval.Row
		if err := rows.Scan(&r.ID, &r.Group, &r.Kind, &r.Name, &r.Index, &r.Text, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return results, nil
}

// pgvectorLiteral renders a vector in pgvector's text format, e.g. [0.1,0.2].
func pgvectorLiteral(vector []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%.8f", v)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Ensure PgVectorSource implements CandidateSource.
var _ CandidateSource = (*PgVectorSource)(nil)
