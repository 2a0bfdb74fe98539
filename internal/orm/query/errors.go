package query

import "errors"

var (
	// ErrUnknownField is returned when a condition, ordering or projection
	// names an attribute the resource does not have
	ErrUnknownField = errors.New("unknown field")

	// ErrNotJoinable is returned when a select path crosses a to-many relation
	ErrNotJoinable = errors.New("relation cannot be joined")

	// ErrInvalidOperator is returned when an operator does not apply to a column type
	ErrInvalidOperator = errors.New("invalid operator")
)
