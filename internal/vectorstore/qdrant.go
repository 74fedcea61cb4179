package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/orbitalmind/satrag/internal/retrieval"
)

// QdrantSource retrieves candidates from a Qdrant collection of cosine-metric
// dense vectors. Points carry the item identity in their payload: item_id,
// kind, name, chunk_ix, chunk_text.
type QdrantSource struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantSource creates a Qdrant candidate source.
// url should be in format "host:port" (e.g., "localhost:6334").
func NewQdrantSource(ctx context.Context, url, collection string) (*QdrantSource, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantSource{client: client, collection: collection}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantSource) Close() error {
	return s.client.Close()
}

// Ping checks that the configured collection exists.
func (s *QdrantSource) Ping(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return fmt.Errorf("collection %q does not exist", s.collection)
	}
	return nil
}

// Search queries the collection by dense vector and payload filters.
//
// Qdrant reports cosine similarity scores; they are converted back to cosine
// distance (dist = 1 - score) so the normalizer sees a single metric family
// regardless of which candidate source is configured.
func (s *QdrantSource) Search(ctx context.Context, vector []float32, filters Filters, limit int) ([]retrieval.Row, error) {
	if limit <= 0 {
		return nil, nil
	}

	var filter *qdrant.Filter
	var must []*qdrant.Condition
	if len(filters.Kinds) > 0 {
		must = append(must, qdrant.NewMatchKeywords("kind", filters.Kinds...))
	}
	if filters.Dataset != "" {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{
					Should: []*qdrant.Condition{
						qdrant.NewMatchExcept("kind", "info"),
						qdrant.NewMatch("dataset", filters.Dataset),
					},
				},
			},
		})
	}
	if len(must) > 0 {
		filter = &qdrant.Filter{Must: must}
	}

	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	rows := make([]retrieval.Row, 0, len(response))
	for _, point := range response {
		row := retrieval.Row{
			ID:       point.Id.GetUuid(),
			Distance: 1 - float64(point.Score),
		}

		if payload := point.Payload; payload != nil {
			if v, ok := payload["item_id"]; ok {
				row.Group = v.GetStringValue()
			}
			if v, ok := payload["kind"]; ok {
				row.Kind = v.GetStringValue()
			}
			if v, ok := payload["name"]; ok {
				row.Name = v.GetStringValue()
			}
			if v, ok := payload["chunk_ix"]; ok {
				row.Index = int(v.GetIntegerValue())
			}
			if v, ok := payload["chunk_text"]; ok {
				row.Text = v.GetStringValue()
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// Ensure QdrantSource implements CandidateSource.
var _ CandidateSource = (*QdrantSource)(nil)
