package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/pkg/errors"
)

// DocumentStore persists document metadata and processing status.
type DocumentStore struct {
	db *gorm.DB
}

// NewDocumentStore creates a document store.
func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Create inserts a new document record.
func (s *DocumentStore) Create(ctx context.Context, doc *model.Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// Get retrieves a document by ID.
func (s *DocumentStore) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrDocumentNotFound
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &doc, nil
}

// ListByCollection returns the documents of a collection ordered by creation.
func (s *DocumentStore) ListByCollection(ctx context.Context, collectionID string) ([]*model.Document, error) {
	var docs []*model.Document
	if err := s.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at").
		Find(&docs).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return docs, nil
}

// UpdateStatus transitions a document's processing status. The error message
// is only stored for failed documents, completion clears it.
func (s *DocumentStore) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	updates := map[string]any{
		"status": status,
		"error":  errMsg,
	}
	result := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return errors.ErrDatabase.WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrDocumentNotFound
	}
	return nil
}

// SetChunkNum records how many chunks a document produced.
func (s *DocumentStore) SetChunkNum(ctx context.Context, id string, n int) error {
	result := s.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("chunk_num", n)
	if result.Error != nil {
		return errors.ErrDatabase.WithCause(result.Error)
	}
	return nil
}

// Delete removes a document record by ID.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{})
	if result.Error != nil {
		return errors.ErrDatabase.WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrDocumentNotFound
	}
	return nil
}

// DeleteByCollection removes every document record of a collection.
func (s *DocumentStore) DeleteByCollection(ctx context.Context, collectionID string) error {
	if err := s.db.WithContext(ctx).Where("collection_id = ?", collectionID).Delete(&model.Document{}).Error; err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// CountByStatus returns the document counts per status for a collection.
func (s *DocumentStore) CountByStatus(ctx context.Context, collectionID string) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&model.Document{}).
		Select("status, count(*) as n").
		Where("collection_id = ?", collectionID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
