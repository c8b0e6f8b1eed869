package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/internal/tessera/store"
)

func setupStream(t *testing.T, chat *fakeChat) (*StreamController, *store.ChatStore, store.VectorStore, CollectionRef) {
	t.Helper()

	db, err := store.NewDB(":memory:")
	require.NoError(t, err)
	chats := store.NewChatStore(db)

	vectors := store.NewMemoryVectorStore()
	sparse := NewSparseStore(store.NewMemoryBlobStore())
	retriever := NewRetriever(vectors, sparse, &fakeEmbedder{}, nil, &RetrieverConfig{TopK: 3, DenseWeight: 0.5})
	synth := NewSynthesizer(chat, retriever, NewAnswerCache(nil, nil))

	ref := CollectionRef{ID: "col1", VectorName: "col_1"}
	require.NoError(t, vectors.EnsureCollection(context.Background(), &store.CollectionConfig{Name: ref.VectorName, Dimension: 3}))
	return NewStreamController(synth, chats), chats, vectors, ref
}

func newStreamSession(t *testing.T, chats *store.ChatStore, collectionID string) string {
	t.Helper()

	session := &model.ChatSession{ID: "sess-1", CollectionID: collectionID, Title: "test"}
	require.NoError(t, chats.CreateSession(context.Background(), session))
	return session.ID
}

func collectEvents(events <-chan Event) []Event {
	var out []Event
	for event := range events {
		out = append(out, event)
	}
	return out
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, event := range events {
		types[i] = event.Type
	}
	return types
}

func TestStream_EventOrder(t *testing.T) {
	chat := &fakeChat{stream: []string{"TCP ", "opens ", "with a handshake."}}
	ctrl, chats, vectors, ref := setupStream(t, chat)
	seedVectors(t, vectors, ref.VectorName)
	sessionID := newStreamSession(t, chats, ref.ID)

	events := collectEvents(ctrl.Stream(context.Background(), ref, sessionID, "how does tcp connect?"))

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, sessionID, events[0].SessionID)
	assert.Equal(t, EventSources, events[1].Type)
	assert.NotEmpty(t, events[1].Sources)
	assert.Equal(t, EventEnd, events[len(events)-1].Type)

	var answer strings.Builder
	for _, event := range events {
		if event.Type == EventToken {
			answer.WriteString(event.Token)
		}
	}
	assert.Equal(t, "TCP opens with a handshake.", answer.String())
}

func TestStream_PersistsAssistantMessage(t *testing.T) {
	chat := &fakeChat{stream: []string{"part one ", "part two"}}
	ctrl, chats, vectors, ref := setupStream(t, chat)
	seedVectors(t, vectors, ref.VectorName)
	sessionID := newStreamSession(t, chats, ref.ID)

	collectEvents(ctrl.Stream(context.Background(), ref, sessionID, "question?"))

	msgs, err := chats.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageRoleAssistant, msgs[0].Role)
	assert.Equal(t, "part one part two", msgs[0].Content)
	// The citations streamed in the sources event ride along with the message.
	require.NotEmpty(t, msgs[0].Sources)
	assert.Equal(t, "net.md", msgs[0].Sources[0].DocumentName)
}

func TestStream_EmptyRetrieval(t *testing.T) {
	chat := &fakeChat{stream: []string{"should not run"}}
	ctrl, chats, _, ref := setupStream(t, chat)
	sessionID := newStreamSession(t, chats, ref.ID)

	events := collectEvents(ctrl.Stream(context.Background(), ref, sessionID, "anything?"))

	assert.Equal(t, []EventType{EventStart, EventSources, EventToken, EventEnd}, eventTypes(events))
	assert.Empty(t, events[1].Sources)
	assert.Equal(t, NoInformationAnswer, events[2].Token)
	// Generation never started.
	assert.Zero(t, chat.calls)

	msgs, err := chats.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, NoInformationAnswer, msgs[0].Content)
	assert.Empty(t, msgs[0].Sources)
}

func TestStream_MidStreamErrorStillPersists(t *testing.T) {
	chat := &fakeChat{stream: []string{"partial "}, streamErr: errors.New("model crashed")}
	ctrl, chats, vectors, ref := setupStream(t, chat)
	seedVectors(t, vectors, ref.VectorName)
	sessionID := newStreamSession(t, chats, ref.ID)

	events := collectEvents(ctrl.Stream(context.Background(), ref, sessionID, "question?"))

	types := eventTypes(events)
	assert.Equal(t, []EventType{EventStart, EventSources, EventToken, EventError, EventEnd}, types)
	// The error message is user-safe, not the internal failure.
	for _, event := range events {
		if event.Type == EventError {
			assert.NotContains(t, event.Message, "model crashed")
		}
	}

	msgs, err := chats.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "partial ", msgs[0].Content)
	assert.NotEmpty(t, msgs[0].Sources)
}

func TestStream_ClientCancelStillPersists(t *testing.T) {
	chat := &fakeChat{stream: []string{"first ", "second ", "third"}}
	ctrl, chats, vectors, ref := setupStream(t, chat)
	seedVectors(t, vectors, ref.VectorName)
	sessionID := newStreamSession(t, chats, ref.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := ctrl.Stream(ctx, ref, sessionID, "question?")

	// Disconnect after the first token arrives.
	var got []Event
	for event := range events {
		got = append(got, event)
		if event.Type == EventToken {
			cancel()
		}
	}

	require.NotEmpty(t, got)
	msgs, err := chats.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageRoleAssistant, msgs[0].Role)
	// Whatever was streamed before the disconnect is recorded.
	assert.True(t, strings.HasPrefix("first second third", msgs[0].Content) || msgs[0].Content != "")
}
