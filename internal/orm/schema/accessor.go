package schema

import (
	"fmt"
	"strings"
)

// RelationKind classifies an attribute by relationship cardinality and direction
type RelationKind int

const (
	// KindScalar is a plain column
	KindScalar RelationKind = iota
	// KindToOneForward is a single-valued foreign reference
	KindToOneForward
	// KindToOneReverse is a single-valued back-reference (reverse one-to-one)
	KindToOneReverse
	// KindToManyForward is a multi-valued foreign reference (many-to-many)
	KindToManyForward
	// KindToManyReverse is a multi-valued back-reference
	KindToManyReverse
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindToOneForward:
		return "to_one_forward"
	case KindToOneReverse:
		return "to_one_reverse"
	case KindToManyForward:
		return "to_many_forward"
	case KindToManyReverse:
		return "to_many_reverse"
	default:
		return "unknown"
	}
}

// IsRelation reports whether the attribute points at another resource
func (k RelationKind) IsRelation() bool {
	return k != KindScalar
}

// IsReverse reports whether the attribute is a back-reference
func (k RelationKind) IsReverse() bool {
	return k == KindToOneReverse || k == KindToManyReverse
}

// IsToMany reports whether the attribute is multi-valued
func (k RelationKind) IsToMany() bool {
	return k == KindToManyForward || k == KindToManyReverse
}

// SelectEligible reports whether the relation can be loaded with a join
func (k RelationKind) SelectEligible() bool {
	return k == KindToOneForward || k == KindToOneReverse
}

// AttributeDescriptor describes one attribute reachable from a resource
type AttributeDescriptor struct {
	Name        string
	Kind        RelationKind
	RelatedType string // empty for scalars

	// Column on the owning table: the scalar column or the foreign key of a
	// to-one forward relation.
	Column string

	// Column on the related table referencing the owner (reverse relations
	// that are not backed by a join table).
	ForeignKey string

	// Join table of a many-to-many relation, with the column referencing
	// the owner and the column referencing the related resource.
	JoinTable  string
	OwnerKey   string
	RelatedKey string
}

// IsRelation reports whether the attribute points at another resource
func (a AttributeDescriptor) IsRelation() bool {
	return a.Kind.IsRelation() && a.RelatedType != ""
}

// String implements fmt.Stringer
func (a AttributeDescriptor) String() string {
	if a.RelatedType == "" {
		return fmt.Sprintf("%s(%s)", a.Name, a.Kind)
	}
	return fmt.Sprintf("%s(%s -> %s)", a.Name, a.Kind, a.RelatedType)
}

// Accessor enumerates the attributes of resources, including derived
// back-references, in a stable order.
type Accessor struct {
	registry *Registry
	cache    *AccessorCache
}

// AccessorOption configures an Accessor
type AccessorOption func(*Accessor)

// WithCache injects the memoization cache used by the accessor
func WithCache(cache *AccessorCache) AccessorOption {
	return func(a *Accessor) {
		a.cache = cache
	}
}

// WithoutCache disables memoization
func WithoutCache() AccessorOption {
	return func(a *Accessor) {
		a.cache = nil
	}
}

// NewAccessor creates an accessor over the registry. Unless configured
// otherwise it memoizes results in a cache of DefaultCacheSize entries.
func NewAccessor(registry *Registry, opts ...AccessorOption) *Accessor {
	a := &Accessor{registry: registry}
	if cache, err := NewAccessorCache(DefaultCacheSize); err == nil {
		a.cache = cache
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the underlying schema registry
func (a *Accessor) Registry() *Registry {
	return a.registry
}

// Invalidate drops memoized results; call it after the schema changes
func (a *Accessor) Invalidate() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

// Accessors returns every attribute of the resource: declared fields and
// relationships in declaration order followed by back-references derived
// from other resources in registration order. The returned slice is owned
// by the caller.
func (a *Accessor) Accessors(resource string) ([]AttributeDescriptor, error) {
	var (
		attrs []AttributeDescriptor
		err   error
	)
	if a.cache != nil {
		attrs, err = a.cache.GetOrCompute(resource, func() ([]AttributeDescriptor, error) {
			return a.compute(resource)
		})
	} else {
		attrs, err = a.compute(resource)
	}
	if err != nil {
		return nil, err
	}

	out := make([]AttributeDescriptor, len(attrs))
	copy(out, attrs)
	return out, nil
}

// Lookup finds a single attribute of a resource by name
func (a *Accessor) Lookup(resource, name string) (AttributeDescriptor, bool, error) {
	attrs, err := a.Accessors(resource)
	if err != nil {
		return AttributeDescriptor{}, false, err
	}
	for _, attr := range attrs {
		if attr.Name == name {
			return attr, true, nil
		}
	}
	return AttributeDescriptor{}, false, nil
}

func (a *Accessor) compute(resource string) ([]AttributeDescriptor, error) {
	owner, ok := a.registry.Get(resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	attrs := make([]AttributeDescriptor, 0, len(owner.Fields)+len(owner.Relationships))
	seen := make(map[string]bool)

	for _, name := range owner.Attributes() {
		if field, ok := owner.Fields[name]; ok {
			attrs = append(attrs, AttributeDescriptor{
				Name:   field.Name,
				Kind:   KindScalar,
				Column: field.ColumnName(),
			})
		} else {
			attrs = append(attrs, forwardDescriptor(owner, owner.Relationships[name]))
		}
		seen[name] = true
	}

	for _, sourceName := range a.registry.List() {
		source, ok := a.registry.Get(sourceName)
		if !ok {
			continue
		}
		for _, name := range source.Attributes() {
			rel, ok := source.Relationships[name]
			if !ok || rel.TargetResource != owner.Name {
				continue
			}
			reverse, kind, ok := backReference(source, rel)
			if !ok || seen[reverse] {
				continue
			}
			attrs = append(attrs, reverseDescriptor(source, rel, reverse, kind))
			seen[reverse] = true
		}
	}

	return attrs, nil
}

// forwardDescriptor describes a relationship declared on the owner itself
func forwardDescriptor(owner *ResourceSchema, rel *Relationship) AttributeDescriptor {
	attr := AttributeDescriptor{
		Name:        rel.FieldName,
		RelatedType: rel.TargetResource,
	}
	switch rel.Type {
	case RelationshipBelongsTo:
		attr.Kind = KindToOneForward
		attr.Column = owner.ForeignKeyColumn(rel)
	case RelationshipHasManyThrough:
		attr.Kind = KindToManyForward
		attr.JoinTable = owner.JoinTableName(rel)
		attr.OwnerKey = owner.ForeignKeyColumn(rel)
		attr.RelatedKey = owner.AssociationColumn(rel)
	case RelationshipHasOne:
		attr.Kind = KindToOneReverse
		attr.ForeignKey = owner.ForeignKeyColumn(rel)
	case RelationshipHasMany:
		attr.Kind = KindToManyReverse
		attr.ForeignKey = owner.ForeignKeyColumn(rel)
	}
	return attr
}

// reverseDescriptor describes the back-reference derived from a
// relationship declared on source
func reverseDescriptor(source *ResourceSchema, rel *Relationship, name string, kind RelationKind) AttributeDescriptor {
	attr := AttributeDescriptor{
		Name:        name,
		Kind:        kind,
		RelatedType: source.Name,
	}
	if rel.Type == RelationshipHasManyThrough {
		attr.JoinTable = source.JoinTableName(rel)
		attr.OwnerKey = source.AssociationColumn(rel)
		attr.RelatedKey = source.ForeignKeyColumn(rel)
	} else {
		attr.ForeignKey = source.ForeignKeyColumn(rel)
	}
	return attr
}

// backReference returns the accessor name and kind of the back-reference
// a relationship adds to its target. Only forward declarations produce one.
func backReference(source *ResourceSchema, rel *Relationship) (string, RelationKind, bool) {
	if rel.RelatedName == NoReverse {
		return "", KindScalar, false
	}

	var kind RelationKind
	switch {
	case rel.Type == RelationshipBelongsTo && rel.Unique:
		kind = KindToOneReverse
	case rel.Type == RelationshipBelongsTo, rel.Type == RelationshipHasManyThrough:
		kind = KindToManyReverse
	default:
		return "", KindScalar, false
	}

	if rel.RelatedName != "" {
		return rel.RelatedName, kind, true
	}
	// Default accessor names lowercase the model name without separators:
	// ChildChild gets childchild_set.
	name := strings.ToLower(source.Name)
	if kind == KindToManyReverse {
		name += "_set"
	}
	return name, kind, true
}
