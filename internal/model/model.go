// Package model provides data models for the tessera service.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Document processing status values.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Collection represents a named corpus of documents queried together.
type Collection struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name        string    `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Collection.
func (Collection) TableName() string {
	return "collections"
}

// Document represents a document registered in a collection.
type Document struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	CollectionID string    `json:"collection_id" gorm:"type:varchar(64);index;not null"`
	Title        string    `json:"title" gorm:"type:varchar(255);not null"`
	Source       string    `json:"source" gorm:"type:varchar(512);not null"` // File path, URL, or object key
	MediaType    string    `json:"media_type" gorm:"type:varchar(64)"`
	Hash         string    `json:"hash" gorm:"type:varchar(64);index"` // Content hash for deduplication
	ChunkNum     int       `json:"chunk_num" gorm:"default:0"`
	Status       string    `json:"status" gorm:"type:varchar(32);default:'pending'"`
	Error        string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "documents"
}

// ChatSession groups the messages of one conversation.
type ChatSession struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	CollectionID string    `json:"collection_id" gorm:"type:varchar(64);index;not null"`
	Title        string    `json:"title" gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ChatSession.
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// Chat message roles.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// ChatMessage is a single persisted message in a session.
type ChatMessage struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string     `json:"session_id" gorm:"type:varchar(64);index;not null"`
	Role      string     `json:"role" gorm:"type:varchar(32);not null"`
	Content   string     `json:"content" gorm:"type:text;not null"`
	Sources   SourceList `json:"sources,omitempty" gorm:"type:text"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for ChatMessage.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// QueryResult represents an answered query.
type QueryResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Cached  bool     `json:"cached"`
}

// Source represents source information for a retrieved chunk.
type Source struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}

// SourceList persists citation sources as a JSON text column.
type SourceList []Source

// Value implements driver.Valuer.
func (s SourceList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *SourceList) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported sources column type %T", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, s)
}
