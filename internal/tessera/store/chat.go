package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/pkg/errors"
)

// ChatStore persists chat sessions and their messages.
type ChatStore struct {
	db *gorm.DB
}

// NewChatStore creates a chat store.
func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

// CreateSession inserts a new chat session.
func (s *ChatStore) CreateSession(ctx context.Context, session *model.ChatSession) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *ChatStore) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrSessionNotFound
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &session, nil
}

// ListSessions returns the sessions of a collection, newest first.
func (s *ChatStore) ListSessions(ctx context.Context, collectionID string) ([]*model.ChatSession, error) {
	var sessions []*model.ChatSession
	if err := s.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("updated_at desc").
		Find(&sessions).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return sessions, nil
}

// DeleteSession removes a session and all of its messages.
func (s *ChatStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&model.ChatSession{})
		if result.Error != nil {
			return errors.ErrDatabase.WithCause(result.Error)
		}
		if result.RowsAffected == 0 {
			return errors.ErrSessionNotFound
		}
		if err := tx.Where("session_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}
		return nil
	})
}

// AppendMessage appends a message to a session and bumps the session's
// updated_at so recent sessions sort first.
func (s *ChatStore) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}
		if err := tx.Model(&model.ChatSession{}).
			Where("id = ?", msg.SessionID).
			Update("updated_at", tx.NowFunc()).Error; err != nil {
			return errors.ErrDatabase.WithCause(err)
		}
		return nil
	})
}

// ListMessages returns the messages of a session in chronological order.
func (s *ChatStore) ListMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	var messages []*model.ChatMessage
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&messages).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return messages, nil
}
