package relationships

import "errors"

var (
	// ErrMaxDepthExceeded is returned when the maximum relationship depth is exceeded
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrUnknownRelationship is returned when a relationship is not found
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrInvalidRelationType is returned when a prefetch path names an
	// attribute that is not a relation
	ErrInvalidRelationType = errors.New("invalid relationship type")
)
