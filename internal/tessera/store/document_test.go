package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/model"
	"github.com/tessera-ai/tessera/pkg/errors"
)

func newTestDocument(collectionID string) *model.Document {
	return &model.Document{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Title:        "guide.txt",
		Source:       "docs/" + collectionID + "/guide",
		MediaType:    "text/plain",
		Status:       model.DocStatusPending,
	}
}

func TestDocumentStore_Lifecycle(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()

	doc := newTestDocument("col1")
	require.NoError(t, s.Create(ctx, doc))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusPending, got.Status)

	require.NoError(t, s.UpdateStatus(ctx, doc.ID, model.DocStatusProcessing, ""))
	require.NoError(t, s.SetChunkNum(ctx, doc.ID, 7))
	require.NoError(t, s.UpdateStatus(ctx, doc.ID, model.DocStatusCompleted, ""))

	got, err = s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusCompleted, got.Status)
	assert.Equal(t, 7, got.ChunkNum)
	assert.Empty(t, got.Error)
}

func TestDocumentStore_FailureKeepsMessage(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()

	doc := newTestDocument("col1")
	require.NoError(t, s.Create(ctx, doc))
	require.NoError(t, s.UpdateStatus(ctx, doc.ID, model.DocStatusFailed, "embedding backend down"))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusFailed, got.Status)
	assert.Equal(t, "embedding backend down", got.Error)

	// Completion after a retry clears the stored error.
	require.NoError(t, s.UpdateStatus(ctx, doc.ID, model.DocStatusCompleted, ""))
	got, err = s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Error)
}

func TestDocumentStore_UpdateStatusMissing(t *testing.T) {
	s := NewDocumentStore(testDB(t))

	err := s.UpdateStatus(context.Background(), "missing", model.DocStatusCompleted, "")
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
}

func TestDocumentStore_ListByCollection(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestDocument("col1")))
	require.NoError(t, s.Create(ctx, newTestDocument("col1")))
	require.NoError(t, s.Create(ctx, newTestDocument("col2")))

	docs, err := s.ListByCollection(ctx, "col1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDocumentStore_DeleteByCollection(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestDocument("col1")))
	require.NoError(t, s.Create(ctx, newTestDocument("col2")))

	require.NoError(t, s.DeleteByCollection(ctx, "col1"))

	docs, err := s.ListByCollection(ctx, "col1")
	require.NoError(t, err)
	assert.Empty(t, docs)
	docs, err = s.ListByCollection(ctx, "col2")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestDocumentStore_CountByStatus(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()

	completed := newTestDocument("col1")
	completed.Status = model.DocStatusCompleted
	failed := newTestDocument("col1")
	failed.Status = model.DocStatusFailed
	require.NoError(t, s.Create(ctx, completed))
	require.NoError(t, s.Create(ctx, failed))
	require.NoError(t, s.Create(ctx, newTestDocument("col1")))

	counts, err := s.CountByStatus(ctx, "col1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.DocStatusCompleted])
	assert.EqualValues(t, 1, counts[model.DocStatusFailed])
	assert.EqualValues(t, 1, counts[model.DocStatusPending])
}
