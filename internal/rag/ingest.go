package rag

import (
	"context"
	"fmt"
	"strings"
)

// DefaultChunkSize caps the rune length of an ingested chunk.
const DefaultChunkSize = 1000

// SplitDocument breaks text into paragraph-aligned chunks of at most size runes.
// Paragraphs longer than size are cut at rune boundaries.
func SplitDocument(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)
		for len(runes) > size {
			flush()
			chunks = append(chunks, string(runes[:size]))
			runes = runes[size:]
		}
		para = string(runes)
		if current.Len() > 0 && len([]rune(current.String()))+len(runes)+2 > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

// Ingest embeds and indexes each chunk. It stops at the first failure and
// reports how many chunks were stored.
func Ingest(ctx context.Context, emb Embedder, idx Indexer, chunks []string) (int, error) {
	for i, c := range chunks {
		vec, err := emb.Embed(ctx, c)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if err := idx.Index(ctx, c, vec); err != nil {
			return i, fmt.Errorf("index chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}
