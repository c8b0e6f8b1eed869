package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/internal/tessera/store"
)

// EventType tags streamed query events.
type EventType string

const (
	// EventStart opens the stream and carries the session ID.
	EventStart EventType = "start"
	// EventSources carries the deduplicated citation list.
	EventSources EventType = "sources"
	// EventToken carries one generation fragment.
	EventToken EventType = "token"
	// EventError carries a user-safe failure message.
	EventError EventType = "error"
	// EventEnd is always the final event.
	EventEnd EventType = "end"
)

// Event is one element of a streamed query response.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Sources   []model.Source `json:"sources,omitempty"`
	Token     string         `json:"token,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// persistTimeout bounds the final message write after the client is gone.
const persistTimeout = 10 * time.Second

// StreamController drives the streaming query path.
//
// Events arrive in a fixed order: one start, one sources, zero or more
// tokens, at most one error, and always a final end. Whatever tokens were
// emitted are persisted as the assistant message, with the citations the
// sources event carried, before end, even when the
// client has disconnected or generation failed mid-stream. The streaming
// path never reads or writes the answer cache.
type StreamController struct {
	synth *Synthesizer
	chats *store.ChatStore
}

// NewStreamController creates a streaming controller.
func NewStreamController(synth *Synthesizer, chats *store.ChatStore) *StreamController {
	return &StreamController{
		synth: synth,
		chats: chats,
	}
}

// Stream answers the query over an event channel. The channel closes after
// the end event. sessionID must reference an existing session whose user
// message has already been recorded.
func (c *StreamController) Stream(ctx context.Context, ref CollectionRef, sessionID, query string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		c.run(ctx, ref, sessionID, query, events)
	}()
	return events
}

func (c *StreamController) run(ctx context.Context, ref CollectionRef, sessionID, query string, events chan<- Event) {
	var (
		answer  strings.Builder
		sources []model.Source
	)

	// The assistant message is written whatever happens below, on a context
	// detached from the client connection so a disconnect cannot abort it.
	defer func() {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := c.chats.AppendMessage(persistCtx, &model.ChatMessage{
			SessionID: sessionID,
			Role:      model.MessageRoleAssistant,
			Content:   answer.String(),
			Sources:   model.SourceList(sources),
		}); err != nil {
			logger.Errorw("failed to persist assistant message",
				"session", sessionID, "error", err.Error())
		}
		c.emit(ctx, events, Event{Type: EventEnd})
	}()

	if !c.emit(ctx, events, Event{Type: EventStart, SessionID: sessionID}) {
		return
	}

	results, err := c.synth.Retrieve(ctx, ref, query)
	if err != nil {
		logger.Errorw("streaming retrieval failed",
			"collection", ref.ID, "error", err.Error())
		c.emit(ctx, events, Event{Type: EventError, Message: "retrieval failed"})
		return
	}

	sources = toSources(results)
	if !c.emit(ctx, events, Event{Type: EventSources, Sources: sources}) {
		return
	}

	if len(results) == 0 {
		answer.WriteString(NoInformationAnswer)
		c.emit(ctx, events, Event{Type: EventToken, Token: NoInformationAnswer})
		return
	}

	chunks, err := c.synth.StreamGenerate(ctx, results, query)
	if err != nil {
		logger.Errorw("streaming generation failed to start",
			"collection", ref.ID, "error", err.Error())
		c.emit(ctx, events, Event{Type: EventError, Message: "answer generation failed"})
		return
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			logger.Errorw("streaming generation failed",
				"collection", ref.ID, "error", chunk.Err.Error())
			c.emit(ctx, events, Event{Type: EventError, Message: "answer generation failed"})
			return
		}
		if chunk.Content != "" {
			answer.WriteString(chunk.Content)
			if !c.emit(ctx, events, Event{Type: EventToken, Token: chunk.Content}) {
				return
			}
		}
		if chunk.Done {
			break
		}
	}
}

// emit delivers an event unless the consumer is gone. A false return means
// the client disconnected; generation stops but persistence still runs.
func (c *StreamController) emit(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
