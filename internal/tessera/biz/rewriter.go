package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/pkg/llm"
)

// hydeSystemPrompt instructs the model to draft a hypothetical passage.
// The passage embeds closer to real document chunks than a short query does.
const hydeSystemPrompt = "You are a helpful assistant. Given a question, write a short, plausible passage " +
	"(3-5 sentences) that would appear in a document answering it. Write only the passage, " +
	"no preamble and no commentary. If you are unsure, write your best guess anyway."

// Rewriter expands queries into hypothetical answer passages before dense
// retrieval (HyDE).
type Rewriter struct {
	chat llm.ChatProvider
}

// NewRewriter creates a query rewriter backed by the chat provider.
func NewRewriter(chat llm.ChatProvider) *Rewriter {
	return &Rewriter{chat: chat}
}

// Rewrite returns the text to embed for the query. When generation fails or
// produces nothing usable, the raw query is returned so retrieval proceeds.
func (r *Rewriter) Rewrite(ctx context.Context, query string) string {
	if r.chat == nil {
		return query
	}

	passage, err := r.chat.Generate(ctx, query, hydeSystemPrompt)
	if err != nil {
		logger.Warnw("query rewrite failed, using raw query",
			"query", query, "error", err.Error())
		return query
	}

	passage = strings.TrimSpace(passage)
	if passage == "" {
		return query
	}

	logger.Debugw("query rewritten", "query", query, "passage_length", len(passage))
	return passage
}
