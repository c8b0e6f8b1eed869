package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/pkg/errors"
)

// CollectionStore persists collection metadata.
type CollectionStore struct {
	db *gorm.DB
}

// NewCollectionStore creates a collection store.
func NewCollectionStore(db *gorm.DB) *CollectionStore {
	return &CollectionStore{db: db}
}

// Create inserts a new collection.
func (s *CollectionStore) Create(ctx context.Context, collection *model.Collection) error {
	if err := s.db.WithContext(ctx).Create(collection).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ErrCollectionExists.WithMessage("collection %q already exists", collection.Name)
		}
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

// Get retrieves a collection by ID.
func (s *CollectionStore) Get(ctx context.Context, id string) (*model.Collection, error) {
	var collection model.Collection
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&collection).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrCollectionNotFound
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &collection, nil
}

// GetByName retrieves a collection by name.
func (s *CollectionStore) GetByName(ctx context.Context, name string) (*model.Collection, error) {
	var collection model.Collection
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&collection).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrCollectionNotFound
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &collection, nil
}

// List returns every collection ordered by creation time.
func (s *CollectionStore) List(ctx context.Context) ([]*model.Collection, error) {
	var collections []*model.Collection
	if err := s.db.WithContext(ctx).Order("created_at").Find(&collections).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return collections, nil
}

// Delete removes a collection by ID.
func (s *CollectionStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Collection{})
	if result.Error != nil {
		return errors.ErrDatabase.WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrCollectionNotFound
	}
	return nil
}
