package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseID converts a client-supplied identifier into an ObjectID. Anything
// other than exactly 24 hex characters is malformed input.
func ParseID(field, value string) (primitive.ObjectID, error) {
	if value == "" {
		return primitive.NilObjectID, fmt.Errorf("%w: %s is required", ErrMalformedInput, field)
	}
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s %q is not a 24-character hex identifier", ErrMalformedInput, field, value)
	}
	return id, nil
}
