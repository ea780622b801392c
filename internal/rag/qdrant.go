package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/omnidesk/omnidesk/internal/config"
)

// QdrantRetriever searches a qdrant collection. Chunk text is read from the
// configured payload field.
type QdrantRetriever struct {
	client     *qdrant.Client
	collection string
	textField  string
}

func NewQdrantClient(cfg config.QdrantConfig) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant init: %w", err)
	}
	return client, nil
}

func NewQdrantRetriever(client *qdrant.Client, collection, textField string) *QdrantRetriever {
	if textField == "" {
		textField = "text"
	}
	return &QdrantRetriever{client: client, collection: collection, textField: textField}
}

func (r *QdrantRetriever) Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error) {
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}
	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]Chunk, 0, len(points))
	for _, p := range points {
		text := p.GetPayload()[r.textField].GetStringValue()
		if text == "" {
			continue
		}
		// qdrant scores cosine similarity; convert to distance.
		out = append(out, Chunk{Text: text, Score: 1 - float64(p.GetScore())})
	}
	SortByDistance(out)
	return out, nil
}

func (r *QdrantRetriever) Index(ctx context.Context, text string, embedding []float32) error {
	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(embedding...),
			Payload: qdrant.NewValueMap(map[string]any{r.textField: text}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}
