package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/omnidesk/omnidesk/internal/message"
)

// Fixed replies used when no generated answer is available.
const (
	EmptyQuestionText = "Nội dung câu hỏi trống, vui lòng nhập lại."
	DeflectionText    = "Em cần kiểm tra lại thông tin này và sẽ phản hồi anh/chị sớm nhất ạ."
	FallbackText      = "Xin lỗi, hệ thống đang bận. Anh/chị vui lòng thử lại sau ạ."
)

var ErrEmptyQuery = errors.New("query is empty")

const (
	searchKeyTurns = 5
	answerTurns    = 10
)

// FieldLister supplies the required and optional customer fields.
type FieldLister interface {
	FieldNames(ctx context.Context) (required, optional []string)
}

// Request is one bot turn.
type Request struct {
	SessionID int64
	Question  string
	Profile   map[string]string
	// History is the recent conversation in chronological order, excluding Question.
	History []message.Message
}

// Orchestrator runs search key, retrieval, context assembly and generation.
type Orchestrator struct {
	generator Generator
	embedder  Embedder
	retriever Retriever
	fields    FieldLister
	topK      int
	logger    *slog.Logger
}

func NewOrchestrator(log *slog.Logger, gen Generator, emb Embedder, ret Retriever, fields FieldLister, topK int) *Orchestrator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Orchestrator{
		generator: gen,
		embedder:  emb,
		retriever: ret,
		fields:    fields,
		topK:      topK,
		logger:    log.With(slog.String("service", "rag")),
	}
}

// Respond always returns a reply. Failures collapse into FallbackText.
func (o *Orchestrator) Respond(ctx context.Context, req Request) string {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return EmptyQuestionText
	}
	log := o.logger.With(slog.Int64("session_id", req.SessionID))

	key, err := o.searchKey(ctx, req, question)
	if err != nil {
		log.Error("search key failed", slog.Any("error", err))
		return FallbackText
	}

	chunks, err := o.retrieve(ctx, key)
	if err != nil {
		log.Error("retrieval failed", slog.Any("error", err))
		return FallbackText
	}
	if len(chunks) == 0 {
		log.Info("no knowledge found", slog.String("search_key", key))
		return DeflectionText
	}

	var required, optional []string
	if o.fields != nil {
		required, optional = o.fields.FieldNames(ctx)
	}
	prompt := AnswerPrompt(AnswerInput{
		Question: question,
		Chunks:   chunks,
		Profile:  req.Profile,
		Required: required,
		Optional: optional,
		History:  message.Transcript(message.Tail(req.History, answerTurns)),
	})
	answer, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		log.Error("generation failed", slog.Any("error", err))
		return FallbackText
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return FallbackText
	}
	return answer
}

func (o *Orchestrator) searchKey(ctx context.Context, req Request, question string) (string, error) {
	history := message.Transcript(message.Tail(req.History, searchKeyTurns))
	if history == "" && len(req.Profile) == 0 {
		return question, nil
	}
	key, err := o.generator.Generate(ctx, SearchKeyPrompt(history, question, req.Profile))
	if err != nil {
		return "", err
	}
	key = strings.Trim(strings.TrimSpace(key), "\"")
	if key == "" {
		return question, nil
	}
	return key, nil
}

// Search returns the chunks nearest to query, closest first. No rewriting
// or generation takes place.
func (o *Orchestrator) Search(ctx context.Context, query string) ([]Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	chunks, err := o.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []Chunk{}
	}
	return chunks, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, key string) ([]Chunk, error) {
	vec, err := o.embedder.Embed(ctx, key)
	if err != nil {
		return nil, err
	}
	chunks, err := o.retriever.Search(ctx, vec, o.topK)
	if err != nil {
		return nil, err
	}
	SortByDistance(chunks)
	return chunks, nil
}
