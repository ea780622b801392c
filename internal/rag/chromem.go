package rag

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// ChromemRetriever keeps knowledge in an embedded persistent chromem-go store.
type ChromemRetriever struct {
	mu  sync.RWMutex
	col *chromem.Collection
}

// NewChromemRetriever opens (or creates) the collection under dir. embed is
// used only when chromem needs to embed documents itself.
func NewChromemRetriever(dir, collection string, embed Embedder) (*ChromemRetriever, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create chromem dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem: %w", err)
	}
	var fn chromem.EmbeddingFunc
	if embed != nil {
		fn = func(ctx context.Context, text string) ([]float32, error) {
			return embed.Embed(ctx, text)
		}
	}
	col, err := db.GetOrCreateCollection(collection, nil, fn)
	if err != nil {
		return nil, fmt.Errorf("open chromem collection: %w", err)
	}
	return &ChromemRetriever{col: col}, nil
}

func (r *ChromemRetriever) Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}
	if n := r.col.Count(); n == 0 {
		return nil, nil
	} else if k > n {
		k = n
	}
	results, err := r.col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]Chunk, 0, len(results))
	for _, res := range results {
		out = append(out, Chunk{Text: res.Content, Score: 1 - float64(res.Similarity)})
	}
	SortByDistance(out)
	return out, nil
}

func (r *ChromemRetriever) Index(ctx context.Context, text string, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.col.AddDocument(ctx, chromem.Document{
		ID:        uuid.NewString(),
		Content:   text,
		Embedding: embedding,
	})
}
