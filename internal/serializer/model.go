package serializer

import (
	"fmt"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// AllFields selects every attribute of the resource in Model
const AllFields = "__all__"

// Model builds a descriptor from schema metadata. With a nil include list
// the fields are the primary key, the declared fields, the remaining scalar
// attributes and the forward relations, in that order. An explicit include
// list is kept in its own order and may name back-references. Relations
// that are not declared explicitly render as primary key references.
func Model(accessor *schema.Accessor, name, resource string, include []string, declared ...Field) (*Serializer, error) {
	attrs, err := accessor.Accessors(resource)
	if err != nil {
		return nil, err
	}
	owner, _ := accessor.Registry().Get(resource)
	bindPrimaryKeys(accessor, resource, declared)

	byName := make(map[string]schema.AttributeDescriptor, len(attrs))
	for _, a := range attrs {
		byName[a.Name] = a
	}
	declaredByName := make(map[string]Field, len(declared))
	for _, f := range declared {
		declaredByName[f.Name()] = f
	}

	if len(include) == 1 && include[0] == AllFields {
		include = nil
	}

	var fieldNames []string
	if include == nil {
		if owner != nil {
			if pk, err := owner.GetPrimaryKey(); err == nil {
				fieldNames = append(fieldNames, pk.Name)
			}
		}
		for _, f := range declared {
			fieldNames = append(fieldNames, f.Name())
		}
		for _, a := range attrs {
			if a.Kind == schema.KindScalar {
				fieldNames = append(fieldNames, a.Name)
			}
		}
		for _, a := range attrs {
			if a.Kind == schema.KindToOneForward || a.Kind == schema.KindToManyForward {
				fieldNames = append(fieldNames, a.Name)
			}
		}
	} else {
		fieldNames = include
		listed := make(map[string]bool, len(include))
		for _, n := range include {
			listed[n] = true
		}
		for _, f := range declared {
			if !listed[f.Name()] {
				return nil, fmt.Errorf("%w: %s declares %s but does not include it", ErrInvalidDescriptor, name, f.Name())
			}
		}
	}

	s := New(name, resource)
	seen := make(map[string]bool, len(fieldNames))
	for _, n := range fieldNames {
		if seen[n] {
			continue
		}
		seen[n] = true

		if f, ok := declaredByName[n]; ok {
			s.With(f)
			continue
		}
		attr, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no attribute %s", ErrUnknownField, resource, n)
		}
		s.With(fieldFor(attr))
	}

	return s, nil
}

// fieldFor returns the default field rendering an attribute
func fieldFor(attr schema.AttributeDescriptor) Field {
	if !attr.IsRelation() {
		return Scalar(attr.Name)
	}
	return PrimaryKeyRef(attr.Name, attr.Name, attr.Kind.IsToMany())
}

// bindPrimaryKeys tells the identifier references among fields which
// attribute is the primary key of the resource they point at
func bindPrimaryKeys(accessor *schema.Accessor, resource string, fields []Field) {
	if accessor == nil {
		return
	}
	for _, f := range fields {
		ref, ok := f.(*IdentityRefField)
		if !ok {
			continue
		}
		attr, found, err := accessor.Lookup(resource, ref.Source())
		if err != nil || !found || !attr.IsRelation() {
			continue
		}
		target, ok := accessor.Registry().Get(attr.RelatedType)
		if !ok {
			continue
		}
		if pk, err := target.GetPrimaryKey(); err == nil {
			ref.KeyedBy(pk.Name)
		}
	}
}
