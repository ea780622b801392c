package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/message"
)

type scriptedGenerator struct {
	replies []string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

type stubEmbedder struct {
	queries []string
	err     error
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.queries = append(e.queries, text)
	return []float32{1, 0}, e.err
}

type stubRetriever struct {
	chunks []Chunk
	err    error
	k      int
}

func (r *stubRetriever) Search(_ context.Context, _ []float32, k int) ([]Chunk, error) {
	r.k = k
	return r.chunks, r.err
}

type staticFields struct{ required, optional []string }

func (f staticFields) FieldNames(context.Context) ([]string, []string) { return f.required, f.optional }

func history() []message.Message {
	return []message.Message{
		{SenderType: message.SenderCustomer, Content: "I want the HSK3 course"},
		{SenderType: message.SenderBot, Content: "Sure, online or offline?"},
	}
}

func TestRespondEmptyQuestion(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{}
	o := NewOrchestrator(logger.Discard(), gen, &stubEmbedder{}, &stubRetriever{}, nil, 0)
	assert.Equal(t, EmptyQuestionText, o.Respond(context.Background(), Request{Question: "   "}))
	assert.Empty(t, gen.prompts)
}

func TestRespondZeroChunksDeflectsWithoutGeneration(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{}
	ret := &stubRetriever{}
	o := NewOrchestrator(logger.Discard(), gen, &stubEmbedder{}, ret, nil, 0)

	got := o.Respond(context.Background(), Request{Question: "What is the fee?"})
	assert.Equal(t, DeflectionText, got)
	assert.Empty(t, gen.prompts)
	assert.Equal(t, DefaultTopK, ret.k)
}

func TestRespondUsesSearchKeyAndGroundedPrompt(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{replies: []string{"HSK3 fee", "  The HSK3 fee is 3,000,000 VND.  "}}
	emb := &stubEmbedder{}
	ret := &stubRetriever{chunks: []Chunk{{Text: "far", Score: 0.9}, {Text: "HSK3 fee: 3,000,000 VND", Score: 0.1}}}
	o := NewOrchestrator(logger.Discard(), gen, emb, ret, staticFields{required: []string{"name", "phone"}}, 5)

	got := o.Respond(context.Background(), Request{
		SessionID: 42,
		Question:  "How much is it?",
		Profile:   map[string]string{"name": "An"},
		History:   history(),
	})
	assert.Equal(t, "The HSK3 fee is 3,000,000 VND.", got)
	assert.Equal(t, []string{"HSK3 fee"}, emb.queries)
	assert.Equal(t, 5, ret.k)

	require.Len(t, gen.prompts, 2)
	answer := gen.prompts[1]
	assert.Less(t, strings.Index(answer, "HSK3 fee: 3,000,000"), strings.Index(answer, "far"), "nearest chunk first")
	assert.Contains(t, answer, "- name: An")
	assert.Contains(t, answer, "- phone (required)")
	assert.NotContains(t, answer, "- name (required)")
	assert.Contains(t, answer, "customer: How much is it?")
}

func TestRespondWithoutContextSkipsSearchKeyGeneration(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{replies: []string{"answer"}}
	emb := &stubEmbedder{}
	o := NewOrchestrator(logger.Discard(), gen, emb, &stubRetriever{chunks: []Chunk{{Text: "x"}}}, nil, 0)

	assert.Equal(t, "answer", o.Respond(context.Background(), Request{Question: "Hello"}))
	assert.Equal(t, []string{"Hello"}, emb.queries)
	assert.Len(t, gen.prompts, 1)
}

func TestRespondFailuresFallBack(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	cases := []struct {
		name string
		gen  *scriptedGenerator
		emb  *stubEmbedder
		ret  *stubRetriever
	}{
		{"embed", &scriptedGenerator{}, &stubEmbedder{err: boom}, &stubRetriever{}},
		{"search", &scriptedGenerator{}, &stubEmbedder{}, &stubRetriever{err: boom}},
		{"generate", &scriptedGenerator{err: boom}, &stubEmbedder{}, &stubRetriever{chunks: []Chunk{{Text: "x"}}}},
		{"empty answer", &scriptedGenerator{replies: []string{"  "}}, &stubEmbedder{}, &stubRetriever{chunks: []Chunk{{Text: "x"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := NewOrchestrator(logger.Discard(), tc.gen, tc.emb, tc.ret, nil, 0)
			assert.Equal(t, FallbackText, o.Respond(context.Background(), Request{Question: "q"}))
		})
	}
}

func TestSearchRetrievesWithoutGeneration(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{}
	emb := &stubEmbedder{}
	ret := &stubRetriever{chunks: []Chunk{{Text: "far", Score: 0.9}, {Text: "near", Score: 0.1}}}
	o := NewOrchestrator(logger.Discard(), gen, emb, ret, nil, 3)

	chunks, err := o.Search(context.Background(), "  học phí HSK3 ")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "near", chunks[0].Text)
	assert.Equal(t, []string{"học phí HSK3"}, emb.queries)
	assert.Equal(t, 3, ret.k)
	assert.Empty(t, gen.prompts)

	_, err = o.Search(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyQuery)

	emb.err = errors.New("quota")
	_, err = o.Search(context.Background(), "x")
	require.Error(t, err)
}
