package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriter_Rewrite(t *testing.T) {
	chat := &fakeChat{reply: "A hypothetical passage about TCP handshakes and connection setup."}
	r := NewRewriter(chat)

	got := r.Rewrite(context.Background(), "how does tcp connect?")
	assert.Equal(t, chat.reply, got)
	assert.Equal(t, "how does tcp connect?", chat.lastPrompt)
}

func TestRewriter_Rewrite_FallsBackOnError(t *testing.T) {
	chat := &fakeChat{generateErr: errors.New("model offline")}
	r := NewRewriter(chat)

	got := r.Rewrite(context.Background(), "how does tcp connect?")
	assert.Equal(t, "how does tcp connect?", got)
}

func TestRewriter_Rewrite_FallsBackOnEmptyOutput(t *testing.T) {
	chat := &fakeChat{reply: "  \n  "}
	r := NewRewriter(chat)

	got := r.Rewrite(context.Background(), "how does tcp connect?")
	assert.Equal(t, "how does tcp connect?", got)
}

func TestRewriter_Rewrite_NilProvider(t *testing.T) {
	r := NewRewriter(nil)
	assert.Equal(t, "query", r.Rewrite(context.Background(), "query"))
}
