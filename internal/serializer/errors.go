package serializer

import "errors"

var (
	// ErrUnintrospectable is returned when a descriptor's fields cannot be obtained
	ErrUnintrospectable = errors.New("descriptor fields cannot be introspected")

	// ErrMaxDepthExceeded is reported when descriptor nesting is too deep,
	// which usually means a descriptor nests itself
	ErrMaxDepthExceeded = errors.New("maximum descriptor nesting depth exceeded")

	// ErrUnknownField is returned when a model descriptor names an attribute
	// the resource does not have
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownDescriptor is returned when a nested descriptor reference
	// cannot be resolved
	ErrUnknownDescriptor = errors.New("unknown descriptor")

	// ErrInvalidDescriptor is returned when a descriptor document is malformed
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)
