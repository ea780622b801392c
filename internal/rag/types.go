// Package rag answers customer questions from retrieved knowledge chunks.
package rag

import (
	"context"
	"sort"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 10

// Chunk is one retrieved knowledge fragment. Score is a distance: lower is closer.
type Chunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Retriever finds the k chunks nearest to an embedding.
type Retriever interface {
	Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error)
}

// Indexer stores a chunk with its embedding.
type Indexer interface {
	Index(ctx context.Context, text string, embedding []float32) error
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SortByDistance orders chunks nearest first.
func SortByDistance(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score < chunks[j].Score })
}
