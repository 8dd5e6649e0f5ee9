package docstore

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/content-agent/backend/internal/models"
)

// MemoryStore keeps collections in process memory. Documents are held in
// insertion order, which is the natural order Find returns without a sort.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]bson.Raw
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]bson.Raw)}
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	raw, id, err := PrepareInsert(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.collections[collection] {
		if existingID, ok := DocumentID(existing); ok && existingID == id {
			return primitive.NilObjectID, fmt.Errorf("%w: duplicate _id %s in %s", models.ErrStoreFailure, id.Hex(), collection)
		}
	}
	s.collections[collection] = append(s.collections[collection], raw)

	return id, nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter bson.M, opts *FindOptions, results interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	s.mu.RLock()
	docs := make([]bson.Raw, len(s.collections[collection]))
	copy(docs, s.collections[collection])
	s.mu.RUnlock()

	matched, err := Query(docs, filter, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	if err := DecodeAll(matched, results); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	return nil
}

func (s *MemoryStore) UpdateField(ctx context.Context, collection string, id primitive.ObjectID, field string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	for i, doc := range docs {
		docID, ok := DocumentID(doc)
		if !ok || docID != id {
			continue
		}
		updated, err := SetField(doc, field, value)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
		}
		docs[i] = updated
		return nil
	}

	return fmt.Errorf("%w: no document %s in %s", models.ErrNotFound, id.Hex(), collection)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
