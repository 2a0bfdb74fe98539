package schema

import "errors"

var (
	// ErrUnknownResource is returned when a resource is not registered
	ErrUnknownResource = errors.New("unknown resource")

	// ErrDuplicateResource is returned when a resource is registered twice
	ErrDuplicateResource = errors.New("resource already registered")

	// ErrInvalidSchema is returned when a schema document cannot be loaded
	ErrInvalidSchema = errors.New("invalid schema")
)
