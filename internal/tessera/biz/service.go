package biz

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/internal/tessera/store"
	"github.com/tessera-ai/tessera/pkg/errors"
)

// sessionTitleLimit caps auto-generated session titles.
const sessionTitleLimit = 64

// CollectionStats summarizes a collection's index and documents.
type CollectionStats struct {
	Chunks    int64            `json:"chunks"`
	Documents int64            `json:"documents"`
	ByStatus  map[string]int64 `json:"by_status"`
}

// Service ties the stores and pipeline components into the operations the
// API exposes.
type Service struct {
	collections *store.CollectionStore
	docs        *store.DocumentStore
	chats       *store.ChatStore
	vectors     store.VectorStore
	sparse      *SparseStore
	cache       *AnswerCache
	indexer     *Indexer
	synth       *Synthesizer
	stream      *StreamController
	embedDim    int
}

// NewService creates the service.
func NewService(
	collections *store.CollectionStore,
	docs *store.DocumentStore,
	chats *store.ChatStore,
	vectors store.VectorStore,
	sparse *SparseStore,
	cache *AnswerCache,
	indexer *Indexer,
	synth *Synthesizer,
	stream *StreamController,
	embedDim int,
) *Service {
	return &Service{
		collections: collections,
		docs:        docs,
		chats:       chats,
		vectors:     vectors,
		sparse:      sparse,
		cache:       cache,
		indexer:     indexer,
		synth:       synth,
		stream:      stream,
		embedDim:    embedDim,
	}
}

// vectorCollectionName derives the vector store collection name from a
// collection ID. Milvus collection names cannot contain dashes.
func vectorCollectionName(collectionID string) string {
	return "col_" + strings.ReplaceAll(collectionID, "-", "")
}

func collectionRef(collectionID string) CollectionRef {
	return CollectionRef{
		ID:         collectionID,
		VectorName: vectorCollectionName(collectionID),
	}
}

func (s *Service) resolveCollection(ctx context.Context, collectionID string) (*model.Collection, CollectionRef, error) {
	col, err := s.collections.Get(ctx, collectionID)
	if err != nil {
		return nil, CollectionRef{}, err
	}
	return col, collectionRef(col.ID), nil
}

// CreateCollection registers a collection and provisions its vector storage.
func (s *Service) CreateCollection(ctx context.Context, name, description string) (*model.Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("collection name is required")
	}

	col := &model.Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
	}
	if err := s.collections.Create(ctx, col); err != nil {
		return nil, err
	}

	if err := s.vectors.EnsureCollection(ctx, &store.CollectionConfig{
		Name:        vectorCollectionName(col.ID),
		Description: description,
		Dimension:   s.embedDim,
	}); err != nil {
		if derr := s.collections.Delete(ctx, col.ID); derr != nil {
			logger.Errorw("failed to roll back collection record",
				"collection", col.ID, "error", derr.Error())
		}
		return nil, errors.ErrIndexUnavailable.WithMessage("failed to provision vector collection").WithCause(err)
	}

	logger.Infow("collection created", "collection", col.ID, "name", name)
	return col, nil
}

// GetCollection returns a collection by ID.
func (s *Service) GetCollection(ctx context.Context, collectionID string) (*model.Collection, error) {
	return s.collections.Get(ctx, collectionID)
}

// ListCollections returns every collection.
func (s *Service) ListCollections(ctx context.Context) ([]*model.Collection, error) {
	return s.collections.List(ctx)
}

// DeleteCollection removes a collection and everything derived from it:
// vectors, sparse snapshot, cached answers, document records and sessions.
func (s *Service) DeleteCollection(ctx context.Context, collectionID string) error {
	col, ref, err := s.resolveCollection(ctx, collectionID)
	if err != nil {
		return err
	}

	if err := s.vectors.DropCollection(ctx, ref.VectorName); err != nil {
		return errors.ErrIndexUnavailable.WithMessage("failed to drop vector collection").WithCause(err)
	}
	if err := s.sparse.Delete(ctx, ref.ID); err != nil {
		logger.Warnw("failed to delete sparse snapshot",
			"collection", ref.ID, "error", err.Error())
	}
	if err := s.cache.Invalidate(ctx, ref.ID); err != nil {
		logger.Warnw("failed to invalidate answer cache",
			"collection", ref.ID, "error", err.Error())
	}
	if err := s.docs.DeleteByCollection(ctx, ref.ID); err != nil {
		return err
	}

	sessions, err := s.chats.ListSessions(ctx, ref.ID)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := s.chats.DeleteSession(ctx, session.ID); err != nil {
			logger.Warnw("failed to delete session",
				"collection", ref.ID, "session", session.ID, "error", err.Error())
		}
	}

	if err := s.collections.Delete(ctx, col.ID); err != nil {
		return err
	}

	logger.Infow("collection deleted", "collection", col.ID, "name", col.Name)
	return nil
}

// IngestDocument schedules ingestion of an uploaded or remote document.
func (s *Service) IngestDocument(ctx context.Context, collectionID, title, source, mediaType string, data []byte) (*model.Document, error) {
	_, ref, err := s.resolveCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return s.indexer.Ingest(ctx, &IngestRequest{
		Collection: ref,
		Title:      title,
		Source:     source,
		MediaType:  mediaType,
		Data:       data,
	})
}

// GetDocument returns a document in the collection.
func (s *Service) GetDocument(ctx context.Context, collectionID, documentID string) (*model.Document, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.CollectionID != collectionID {
		return nil, errors.ErrDocumentNotFound
	}
	return doc, nil
}

// ListDocuments returns the collection's documents.
func (s *Service) ListDocuments(ctx context.Context, collectionID string) ([]*model.Document, error) {
	if _, err := s.collections.Get(ctx, collectionID); err != nil {
		return nil, err
	}
	return s.docs.ListByCollection(ctx, collectionID)
}

// RemoveDocument deletes a document and its indexed chunks.
func (s *Service) RemoveDocument(ctx context.Context, collectionID, documentID string) error {
	_, ref, err := s.resolveCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	return s.indexer.Remove(ctx, ref, documentID)
}

// RebuildSparseIndex regenerates the collection's sparse snapshot now.
func (s *Service) RebuildSparseIndex(ctx context.Context, collectionID string) error {
	_, ref, err := s.resolveCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	return s.indexer.Rebuild(ctx, ref)
}

// ensureSession returns the session, creating one titled after the query
// when sessionID is empty.
func (s *Service) ensureSession(ctx context.Context, collectionID, sessionID, query string) (*model.ChatSession, error) {
	if sessionID != "" {
		session, err := s.chats.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.CollectionID != collectionID {
			return nil, errors.ErrSessionNotFound
		}
		return session, nil
	}

	title := strings.TrimSpace(query)
	if runes := []rune(title); len(runes) > sessionTitleLimit {
		title = string(runes[:sessionTitleLimit])
	}
	session := &model.ChatSession{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Title:        title,
	}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Query answers a question in one shot. The user question and the answer are
// both recorded on the session.
func (s *Service) Query(ctx context.Context, collectionID, sessionID, query string) (*model.QueryResult, string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, "", errors.ErrInvalidRequest.WithMessage("query is required")
	}

	_, ref, err := s.resolveCollection(ctx, collectionID)
	if err != nil {
		return nil, "", err
	}
	session, err := s.ensureSession(ctx, collectionID, sessionID, query)
	if err != nil {
		return nil, "", err
	}

	if err := s.chats.AppendMessage(ctx, &model.ChatMessage{
		SessionID: session.ID,
		Role:      model.MessageRoleUser,
		Content:   query,
	}); err != nil {
		return nil, "", err
	}

	result, err := s.synth.Answer(ctx, ref, query)
	if err != nil {
		return nil, session.ID, err
	}

	if err := s.chats.AppendMessage(ctx, &model.ChatMessage{
		SessionID: session.ID,
		Role:      model.MessageRoleAssistant,
		Content:   result.Answer,
		Sources:   model.SourceList(result.Sources),
	}); err != nil {
		logger.Errorw("failed to persist assistant message",
			"session", session.ID, "error", err.Error())
	}

	return result, session.ID, nil
}

// StreamQuery answers a question over an event stream. The user question is
// recorded before streaming begins; the assistant message is recorded by the
// stream controller.
func (s *Service) StreamQuery(ctx context.Context, collectionID, sessionID, query string) (<-chan Event, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("query is required")
	}

	_, ref, err := s.resolveCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	session, err := s.ensureSession(ctx, collectionID, sessionID, query)
	if err != nil {
		return nil, err
	}

	if err := s.chats.AppendMessage(ctx, &model.ChatMessage{
		SessionID: session.ID,
		Role:      model.MessageRoleUser,
		Content:   query,
	}); err != nil {
		return nil, err
	}

	return s.stream.Stream(ctx, ref, session.ID, query), nil
}

// ListSessions returns the collection's chat sessions.
func (s *Service) ListSessions(ctx context.Context, collectionID string) ([]*model.ChatSession, error) {
	if _, err := s.collections.Get(ctx, collectionID); err != nil {
		return nil, err
	}
	return s.chats.ListSessions(ctx, collectionID)
}

// ListMessages returns a session's messages in order.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.chats.ListMessages(ctx, sessionID)
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.chats.DeleteSession(ctx, sessionID)
}

// Stats reports index and document counts for a collection.
func (s *Service) Stats(ctx context.Context, collectionID string) (*CollectionStats, error) {
	_, ref, err := s.resolveCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.vectors.Count(ctx, ref.VectorName)
	if err != nil {
		return nil, errors.ErrIndexUnavailable.WithMessage("failed to count chunks").WithCause(err)
	}
	byStatus, err := s.docs.CountByStatus(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}
	return &CollectionStats{
		Chunks:    chunks,
		Documents: total,
		ByStatus:  byStatus,
	}, nil
}
