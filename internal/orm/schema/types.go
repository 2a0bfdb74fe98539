// Package schema provides type definitions for the relational schema that the
// eager-loading planner analyzes. It describes resources, their columns and
// the relationships between them, and exposes them through the Accessor as
// ordered attribute descriptors annotated with relationship kind.
package schema

import (
	"fmt"
	"sort"
)

// PrimitiveType represents the built-in column types
type PrimitiveType int

const (
	// Text types
	TypeString PrimitiveType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate

	// Unique identifiers
	TypeUUID

	// JSON types
	TypeJSON
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float":
		return TypeFloat, nil
	case "decimal":
		return TypeDecimal, nil
	case "bool":
		return TypeBool, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "uuid":
		return TypeUUID, nil
	case "json":
		return TypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// TypeSpec represents a column type with nullability
type TypeSpec struct {
	BaseType PrimitiveType
	Nullable bool
}

// String returns a string representation of the TypeSpec
func (t *TypeSpec) String() string {
	if t.Nullable {
		return t.BaseType.String() + "?"
	}
	return t.BaseType.String() + "!"
}

// Field represents a scalar column of a resource
type Field struct {
	Name    string
	Type    *TypeSpec
	Primary bool
	Column  string // defaults to Name
}

// ColumnName returns the database column backing the field
func (f *Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// RelationType represents the type of relationship
type RelationType int

const (
	RelationshipBelongsTo RelationType = iota
	RelationshipHasMany
	RelationshipHasManyThrough
	RelationshipHasOne
)

// String returns the string representation of the relationship type
func (r RelationType) String() string {
	switch r {
	case RelationshipBelongsTo:
		return "belongs_to"
	case RelationshipHasMany:
		return "has_many"
	case RelationshipHasManyThrough:
		return "has_many_through"
	case RelationshipHasOne:
		return "has_one"
	default:
		return "unknown"
	}
}

// ParseRelationType converts a string to a RelationType
func ParseRelationType(s string) (RelationType, error) {
	switch s {
	case "belongs_to":
		return RelationshipBelongsTo, nil
	case "has_many":
		return RelationshipHasMany, nil
	case "has_many_through":
		return RelationshipHasManyThrough, nil
	case "has_one":
		return RelationshipHasOne, nil
	default:
		return 0, fmt.Errorf("unknown relationship type: %s", s)
	}
}

// NoReverse is the RelatedName that suppresses the derived back-reference
const NoReverse = "+"

// Relationship represents a relationship between resources
type Relationship struct {
	Type           RelationType
	TargetResource string
	FieldName      string
	Nullable       bool

	// Foreign key configuration. For belongs_to the column lives on this
	// resource; for has_one and has_many it lives on the target.
	ForeignKey string

	// Unique turns a belongs_to into a one-to-one relationship
	Unique bool

	// Name of the back-reference on the target resource
	RelatedName string

	// For has_many_through
	JoinTable      string
	AssociationKey string
}

// ResourceSchema represents the complete schema for a resource
type ResourceSchema struct {
	Name          string
	Documentation string

	Fields        map[string]*Field
	Relationships map[string]*Relationship

	// Metadata
	TableName string

	order []string
}

// NewResourceSchema creates a new ResourceSchema
func NewResourceSchema(name string) *ResourceSchema {
	return &ResourceSchema{
		Name:          name,
		Fields:        make(map[string]*Field),
		Relationships: make(map[string]*Relationship),
		TableName:     pluralize(toSnakeCase(name)),
	}
}

// AddField appends a scalar field in declaration order
func (r *ResourceSchema) AddField(field *Field) *ResourceSchema {
	if _, exists := r.Fields[field.Name]; !exists {
		r.order = append(r.order, field.Name)
	}
	r.Fields[field.Name] = field
	return r
}

// AddRelationship appends a relationship in declaration order
func (r *ResourceSchema) AddRelationship(rel *Relationship) *ResourceSchema {
	if _, exists := r.Relationships[rel.FieldName]; !exists {
		r.order = append(r.order, rel.FieldName)
	}
	r.Relationships[rel.FieldName] = rel
	return r
}

// Attributes returns the names of all declared fields and relationships in
// declaration order. Entries placed directly into the maps without the Add
// helpers are appended afterwards in lexical order.
func (r *ResourceSchema) Attributes() []string {
	names := make([]string, 0, len(r.Fields)+len(r.Relationships))
	seen := make(map[string]bool, cap(names))
	for _, name := range r.order {
		if r.HasField(name) || r.HasRelationship(name) {
			names = append(names, name)
			seen[name] = true
		}
	}

	var extra []string
	for name := range r.Fields {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	for name := range r.Relationships {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// GetPrimaryKey returns the primary key field
func (r *ResourceSchema) GetPrimaryKey() (*Field, error) {
	for _, name := range r.Attributes() {
		if field, ok := r.Fields[name]; ok && field.Primary {
			return field, nil
		}
	}
	return nil, fmt.Errorf("resource %s has no primary key", r.Name)
}

// PrimaryKeyColumn returns the primary key column, falling back to "id"
func (r *ResourceSchema) PrimaryKeyColumn() string {
	if pk, err := r.GetPrimaryKey(); err == nil {
		return pk.ColumnName()
	}
	return "id"
}

// HasField returns true if the resource has a field with the given name
func (r *ResourceSchema) HasField(name string) bool {
	_, exists := r.Fields[name]
	return exists
}

// HasRelationship returns true if the resource has a relationship with the given name
func (r *ResourceSchema) HasRelationship(name string) bool {
	_, exists := r.Relationships[name]
	return exists
}

// ForeignKeyColumn returns the foreign key column of a relationship,
// applying the naming defaults for its type.
func (r *ResourceSchema) ForeignKeyColumn(rel *Relationship) string {
	if rel.ForeignKey != "" {
		return rel.ForeignKey
	}
	switch rel.Type {
	case RelationshipBelongsTo:
		return rel.FieldName + "_id"
	default:
		return toSnakeCase(r.Name) + "_id"
	}
}

// JoinTableName returns the join table of a has_many_through relationship
func (r *ResourceSchema) JoinTableName(rel *Relationship) string {
	if rel.JoinTable != "" {
		return rel.JoinTable
	}
	return r.TableName + "_" + rel.FieldName
}

// AssociationColumn returns the column of a join table that references the
// target of a has_many_through relationship.
func (r *ResourceSchema) AssociationColumn(rel *Relationship) string {
	if rel.AssociationKey != "" {
		return rel.AssociationKey
	}
	return toSnakeCase(rel.TargetResource) + "_id"
}

// ToSnakeCase converts a resource name to snake_case
func ToSnakeCase(s string) string {
	return toSnakeCase(s)
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// Add underscore at a camelCase boundary or at the end of an
			// acronym ("HTTPServer" -> "http_server")
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[len(s)-1] {
	case 's', 'x', 'z':
		return s + "es"
	case 'y':
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
