// Package serializer models serialization descriptors: ordered field
// declarations that describe how a resource record is rendered. The
// Extractor walks a descriptor tree and reports the dotted attribute paths
// that rendering will read.
package serializer

import "strings"

// SelfSource is the source of fields that receive the whole record rather
// than one of its attributes.
const SelfSource = "*"

// Field is a declared output field. The set of implementations is closed;
// extraction only relies on the capabilities below.
type Field interface {
	// Name is the output name of the field
	Name() string
	// Source is the dotted attribute path the field reads, or SelfSource
	Source() string
	// IdentifierOnly reports whether rendering needs nothing but the key of
	// the referenced record, which is already stored on the owning row
	IdentifierOnly() bool
	// Lookup is the attribute of the referenced record read in place of its
	// key, if any
	Lookup() string
	// Nested returns the sub-descriptor rendered by the field, if any
	Nested() Descriptor
	// Many reports whether the field renders a collection
	Many() bool
	// Dependencies are the attribute paths a computed field reads
	Dependencies() []string

	sealed()
}

// base carries the name/source pair shared by all field variants
type base struct {
	name   string
	source string
}

func (b base) Name() string { return b.name }

func (b base) Source() string {
	if b.source == "" {
		return b.name
	}
	return b.source
}

func (base) IdentifierOnly() bool { return false }
func (base) Lookup() string { return "" }
func (base) Nested() Descriptor { return nil }
func (base) Many() bool { return false }
func (base) Dependencies() []string { return nil }
func (base) sealed() {}

// ScalarField renders a plain attribute
type ScalarField struct {
	base
}

// Scalar declares a field reading the attribute of the same name
func Scalar(name string) *ScalarField {
	return &ScalarField{base{name: name}}
}

// ScalarFrom declares a field reading an alternate source expression
func ScalarFrom(name, source string) *ScalarField {
	return &ScalarField{base{name: name, source: source}}
}

// RelationField renders a related record (or records) through a
// representation that needs the related row itself, such as its string form.
type RelationField struct {
	base
	many bool
}

// Relation declares a field rendering the related record at source
func Relation(name, source string, many bool) *RelationField {
	return &RelationField{base: base{name: name, source: source}, many: many}
}

// Many reports whether the relation is multi-valued
func (f *RelationField) Many() bool { return f.many }

// NestedField renders a related record through a sub-descriptor
type NestedField struct {
	base
	descriptor Descriptor
	many       bool
}

// Nest declares a singular nested field
func Nest(name string, descriptor Descriptor) *NestedField {
	return &NestedField{base: base{name: name}, descriptor: descriptor}
}

// NestMany declares a collection-of nested field
func NestMany(name string, descriptor Descriptor) *NestedField {
	return &NestedField{base: base{name: name}, descriptor: descriptor, many: true}
}

// From overrides the source expression of the nested field
func (f *NestedField) From(source string) *NestedField {
	f.source = source
	return f
}

// Nested returns the sub-descriptor
func (f *NestedField) Nested() Descriptor { return f.descriptor }

// Many reports whether the field renders a collection
func (f *NestedField) Many() bool { return f.many }

// ComputedField renders a value derived from the whole record. It reads
// nothing the extractor can see unless it declares its dependencies.
type ComputedField struct {
	base
	dependencies []string
}

// Computed declares a computed field with optional dependency paths.
// Dependencies may use either "." or "__" as the separator.
func Computed(name string, dependencies ...string) *ComputedField {
	deps := make([]string, 0, len(dependencies))
	for _, d := range dependencies {
		deps = append(deps, strings.ReplaceAll(d, "__", "."))
	}
	return &ComputedField{base: base{name: name, source: SelfSource}, dependencies: deps}
}

// SelfLink declares a hyperlink to the record itself. It only needs the
// record's own key.
func SelfLink(name string) *ComputedField {
	return Computed(name)
}

// Dependencies returns the declared dependency paths
func (f *ComputedField) Dependencies() []string {
	out := make([]string, len(f.dependencies))
	copy(out, f.dependencies)
	return out
}

// IdentityRefField renders a reference to a related record by its key, or
// by another attribute of it when LookupField is set.
type IdentityRefField struct {
	base
	many        bool
	lookupField string
	primaryKey  string
}

// PrimaryKeyRef declares a reference rendered by the related primary key
func PrimaryKeyRef(name, source string, many bool) *IdentityRefField {
	return &IdentityRefField{base: base{name: name, source: source}, many: many}
}

// HyperlinkRef declares a hyperlinked reference resolved through
// lookupField. "pk" or an empty lookup field mean the primary key; so does
// "id" until KeyedBy names the real one.
func HyperlinkRef(name, source string, many bool, lookupField string) *IdentityRefField {
	return &IdentityRefField{base: base{name: name, source: source}, many: many, lookupField: lookupField}
}

// KeyedBy records the primary key of the related resource
func (f *IdentityRefField) KeyedBy(primaryKey string) *IdentityRefField {
	f.primaryKey = primaryKey
	return f
}

// IdentifierOnly reports whether only the key of the related record is read
func (f *IdentityRefField) IdentifierOnly() bool {
	return f.Lookup() == ""
}

// Lookup returns the attribute read from the related record, if it is not
// the primary key
func (f *IdentityRefField) Lookup() string {
	switch f.lookupField {
	case "", "pk", f.primaryKey:
		return ""
	case "id":
		if f.primaryKey == "" {
			return ""
		}
	}
	return f.lookupField
}

// Many reports whether the reference is multi-valued
func (f *IdentityRefField) Many() bool { return f.many }
