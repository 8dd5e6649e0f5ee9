// Package docstore defines the schema-less document store the lineage
// repository and session tracker persist through, plus an in-memory backend.
package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SortKey orders query results by one top-level field.
type SortKey struct {
	Field      string
	Descending bool
}

type FindOptions struct {
	Sort  []SortKey
	Limit int64
}

// Store is a set of named collections holding BSON documents. Every document
// gets a store-assigned ObjectID in _id on insert.
//
// Filters are equality matches on top-level fields. Find decodes into a
// pointer to a slice of the document type.
type Store interface {
	Insert(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error)
	Find(ctx context.Context, collection string, filter bson.M, opts *FindOptions, results interface{}) error
	// UpdateField sets one field on the document with the given id. It
	// returns models.ErrNotFound when no document matches.
	UpdateField(ctx context.Context, collection string, id primitive.ObjectID, field string, value interface{}) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NewestFirst is the creation-order sort used by every "most recent" query.
// _id breaks ties between documents created in the same millisecond.
func NewestFirst() []SortKey {
	return []SortKey{{Field: "created_at", Descending: true}, {Field: "_id", Descending: true}}
}

// OldestFirst is insertion order.
func OldestFirst() []SortKey {
	return []SortKey{{Field: "created_at"}, {Field: "_id"}}
}
