package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/omnidesk/omnidesk/internal/db"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorRetriever searches a pgvector table with L2 distance.
type PGVectorRetriever struct {
	db    db.DBTX
	table string
}

func NewPGVectorRetriever(conn db.DBTX, table string) (*PGVectorRetriever, error) {
	if table == "" {
		table = "document_chunks"
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid knowledge table %q", table)
	}
	return &PGVectorRetriever{db: conn, table: table}, nil
}

func (r *PGVectorRetriever) Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error) {
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
SELECT chunk_text, search_vector <-> $1::vector AS distance
FROM `+r.table+`
ORDER BY distance
LIMIT $2`, VectorLiteral(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Text, &c.Score); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGVectorRetriever) Index(ctx context.Context, text string, embedding []float32) error {
	_, err := r.db.Exec(ctx, `INSERT INTO `+r.table+` (chunk_text, search_vector) VALUES ($1, $2::vector)`,
		text, VectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("pgvector index: %w", err)
	}
	return nil
}

// VectorLiteral renders an embedding in pgvector's text format.
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
