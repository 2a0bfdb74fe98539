package serializer

import (
	"fmt"
)

// Descriptor is a serialization descriptor: the resource it renders and
// its declared output fields in declaration order.
type Descriptor interface {
	Name() string
	Resource() string
	Fields() ([]Field, error)
}

// Serializer is a descriptor with statically declared fields
type Serializer struct {
	name     string
	resource string
	fields   []Field
}

// New creates a descriptor for resource with the given fields
func New(name, resource string, fields ...Field) *Serializer {
	return &Serializer{
		name:     name,
		resource: resource,
		fields:   fields,
	}
}

// With appends fields. Descriptors that nest each other can be created
// first and populated afterwards.
func (s *Serializer) With(fields ...Field) *Serializer {
	s.fields = append(s.fields, fields...)
	return s
}

// Name returns the descriptor name
func (s *Serializer) Name() string { return s.name }

// Resource returns the resource the descriptor renders
func (s *Serializer) Resource() string { return s.resource }

// Fields returns a copy of the declared fields
func (s *Serializer) Fields() ([]Field, error) {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out, nil
}

// Field returns the declared field with the given output name
func (s *Serializer) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Opaque is a descriptor whose fields cannot be introspected, such as a
// hand-written base descriptor that renders records imperatively.
type Opaque struct {
	name     string
	resource string
}

// NewOpaque creates an opaque descriptor
func NewOpaque(name, resource string) *Opaque {
	return &Opaque{name: name, resource: resource}
}

// Name returns the descriptor name
func (o *Opaque) Name() string { return o.name }

// Resource returns the resource the descriptor renders
func (o *Opaque) Resource() string { return o.resource }

// Fields always fails with ErrUnintrospectable
func (o *Opaque) Fields() ([]Field, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnintrospectable, o.name)
}
