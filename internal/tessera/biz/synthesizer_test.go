package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/tessera/store"
	tesserrors "github.com/tessera-ai/tessera/pkg/errors"
	"github.com/tessera-ai/tessera/pkg/llm"
)

// fakeChat records prompts and replies from a script.
type fakeChat struct {
	reply       string
	stream      []string
	generateErr error
	streamErr   error
	calls       int
	lastPrompt  string
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	f.calls++
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	return f.reply, f.generateErr
}

func (f *fakeChat) ChatStream(_ context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	f.calls++
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	ch := make(chan llm.StreamChunk, len(f.stream)+1)
	go func() {
		defer close(ch)
		for _, piece := range f.stream {
			ch <- llm.StreamChunk{Content: piece}
		}
		if f.streamErr != nil {
			ch <- llm.StreamChunk{Err: f.streamErr}
			return
		}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

func (f *fakeChat) Generate(_ context.Context, prompt string, _ string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.reply, f.generateErr
}

func (f *fakeChat) Name() string { return "fake" }

var _ llm.ChatProvider = (*fakeChat)(nil)

func setupSynthesizer(t *testing.T, chat *fakeChat) (*Synthesizer, store.VectorStore, CollectionRef) {
	t.Helper()

	vectors := store.NewMemoryVectorStore()
	sparse := NewSparseStore(store.NewMemoryBlobStore())
	retriever := NewRetriever(vectors, sparse, &fakeEmbedder{}, nil, &RetrieverConfig{TopK: 3, DenseWeight: 0.5})
	synth := NewSynthesizer(chat, retriever, NewAnswerCache(nil, nil))

	ref := CollectionRef{ID: "col1", VectorName: "col_1"}
	require.NoError(t, vectors.EnsureCollection(context.Background(), &store.CollectionConfig{Name: ref.VectorName, Dimension: 3}))
	return synth, vectors, ref
}

func TestSynthesizer_Answer(t *testing.T) {
	chat := &fakeChat{reply: "TCP opens with a handshake."}
	synth, vectors, ref := setupSynthesizer(t, chat)
	seedVectors(t, vectors, ref.VectorName)

	result, err := synth.Answer(context.Background(), ref, "how does tcp connect?")
	require.NoError(t, err)

	assert.Equal(t, "TCP opens with a handshake.", result.Answer)
	assert.False(t, result.Cached)
	require.NotEmpty(t, result.Sources)
	// The prompt carries the retrieved context and the question.
	assert.Contains(t, chat.lastPrompt, "TCP handshake opens a connection")
	assert.Contains(t, chat.lastPrompt, "how does tcp connect?")
}

func TestSynthesizer_Answer_EmptyRetrievalSkipsGeneration(t *testing.T) {
	chat := &fakeChat{reply: "should never be used"}
	synth, _, ref := setupSynthesizer(t, chat)

	result, err := synth.Answer(context.Background(), ref, "anything at all")
	require.NoError(t, err)

	assert.Equal(t, NoInformationAnswer, result.Answer)
	assert.Empty(t, result.Sources)
	assert.NotNil(t, result.Sources)
	assert.Zero(t, chat.calls)
}

func TestSynthesizer_Answer_GenerationFailure(t *testing.T) {
	chat := &fakeChat{generateErr: errors.New("model offline")}
	synth, vectors, ref := setupSynthesizer(t, chat)
	seedVectors(t, vectors, ref.VectorName)

	_, err := synth.Answer(context.Background(), ref, "how does tcp connect?")
	require.Error(t, err)
	assert.ErrorIs(t, err, tesserrors.ErrGenerationFailed)
}

func TestSynthesizer_Answer_BlankReplyFallsBack(t *testing.T) {
	chat := &fakeChat{reply: "   \n "}
	synth, vectors, ref := setupSynthesizer(t, chat)
	seedVectors(t, vectors, ref.VectorName)

	result, err := synth.Answer(context.Background(), ref, "how does tcp connect?")
	require.NoError(t, err)
	assert.Equal(t, NoInformationAnswer, result.Answer)
}

func TestSynthesizer_Answer_CacheHitSkipsPipeline(t *testing.T) {
	chat := &fakeChat{reply: "fresh answer"}

	vectors := store.NewMemoryVectorStore()
	sparse := NewSparseStore(store.NewMemoryBlobStore())
	retriever := NewRetriever(vectors, sparse, &fakeEmbedder{}, nil, nil)

	cache, _ := setupTestCache(t)
	synth := NewSynthesizer(chat, retriever, cache)

	ref := CollectionRef{ID: "col1", VectorName: "col_1"}
	ctx := context.Background()
	require.NoError(t, vectors.EnsureCollection(ctx, &store.CollectionConfig{Name: ref.VectorName, Dimension: 3}))
	seedVectors(t, vectors, ref.VectorName)

	first, err := synth.Answer(ctx, ref, "how does tcp connect?")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	callsAfterFirst := chat.calls

	second, err := synth.Answer(ctx, ref, "how does tcp connect?")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, callsAfterFirst, chat.calls)
}

func TestBuildPrompt(t *testing.T) {
	results := []*store.SearchResult{
		{DocumentName: "net.md", Content: "first passage"},
		{DocumentName: "disk.md", Content: "second passage"},
	}

	prompt := buildPrompt(results, "what is this?")
	assert.Contains(t, prompt, "[1] From net.md:\nfirst passage")
	assert.Contains(t, prompt, "[2] From disk.md:\nsecond passage")
	assert.Contains(t, prompt, "Question: what is this?")
	assert.False(t, strings.Contains(prompt, "{{context}}"))
	assert.False(t, strings.Contains(prompt, "{{question}}"))
}
