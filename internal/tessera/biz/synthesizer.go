package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/internal/tessera/store"
	"github.com/tessera-ai/tessera/pkg/errors"
	"github.com/tessera-ai/tessera/pkg/llm"
)

// NoInformationAnswer is returned when retrieval finds nothing relevant.
const NoInformationAnswer = "I couldn't find any relevant information in the knowledge base."

// answerPromptTemplate constrains the model to the retrieved context.
const answerPromptTemplate = `You are a helpful assistant answering questions from a document knowledge base.

Use ONLY the context below to answer the question. If the context does not contain the answer, say so explicitly instead of guessing.

Context:
{{context}}

Question: {{question}}

Answer:`

// Synthesizer turns retrieval results into answers, one-shot or streamed.
type Synthesizer struct {
	chat      llm.ChatProvider
	retriever *Retriever
	cache     *AnswerCache
}

// NewSynthesizer creates an answer synthesizer.
func NewSynthesizer(chat llm.ChatProvider, retriever *Retriever, cache *AnswerCache) *Synthesizer {
	return &Synthesizer{
		chat:      chat,
		retriever: retriever,
		cache:     cache,
	}
}

// Answer runs the one-shot query path: cache lookup, retrieval, generation,
// cache fill. A cache hit skips retrieval and generation entirely.
func (s *Synthesizer) Answer(ctx context.Context, ref CollectionRef, query string) (*model.QueryResult, error) {
	if cached := s.cache.Get(ctx, ref.ID, query); cached != nil {
		cached.Cached = true
		return cached, nil
	}

	results, err := s.retriever.Retrieve(ctx, ref, query)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return &model.QueryResult{
			Answer:  NoInformationAnswer,
			Sources: []model.Source{},
		}, nil
	}

	prompt := buildPrompt(results, query)
	answer, err := s.chat.Generate(ctx, prompt, "")
	if err != nil {
		return nil, errors.ErrGenerationFailed.WithCause(err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		// The model produced nothing usable, treat it like an empty corpus.
		answer = NoInformationAnswer
	}

	result := &model.QueryResult{
		Answer:  answer,
		Sources: toSources(results),
	}
	s.cache.Set(ctx, ref.ID, query, result)

	logger.Infow("query answered",
		"collection", ref.ID, "sources", len(result.Sources), "answer_length", len(answer))
	return result, nil
}

// Retrieve exposes the retrieval leg for the streaming controller.
func (s *Synthesizer) Retrieve(ctx context.Context, ref CollectionRef, query string) ([]*store.SearchResult, error) {
	return s.retriever.Retrieve(ctx, ref, query)
}

// StreamGenerate starts a streamed generation over the retrieved context.
func (s *Synthesizer) StreamGenerate(ctx context.Context, results []*store.SearchResult, query string) (<-chan llm.StreamChunk, error) {
	prompt := buildPrompt(results, query)
	return s.chat.ChatStream(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
}

// buildPrompt renders the numbered context block into the answer template.
func buildPrompt(results []*store.SearchResult, query string) string {
	var contextBuilder strings.Builder
	for i, result := range results {
		contextBuilder.WriteString(fmt.Sprintf("[%d] From %s:\n%s\n\n", i+1, result.DocumentName, result.Content))
	}

	prompt := strings.ReplaceAll(answerPromptTemplate, "{{context}}", contextBuilder.String())
	return strings.ReplaceAll(prompt, "{{question}}", query)
}

// toSources converts retrieval results into citation records.
func toSources(results []*store.SearchResult) []model.Source {
	sources := make([]model.Source, len(results))
	for i, result := range results {
		sources[i] = model.Source{
			DocumentID:   result.DocumentID,
			DocumentName: result.DocumentName,
			Content:      result.Content,
			Score:        result.Score,
		}
	}
	return sources
}
