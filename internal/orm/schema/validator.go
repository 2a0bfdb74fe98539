package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a schema validation error with context
type ValidationError struct {
	Resource string
	Field    string
	Message  string
	Hint     string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Resource != "" {
		b.WriteString(e.Resource)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// SchemaValidator validates resource schemas
type SchemaValidator struct {
	errors []*ValidationError
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		errors: make([]*ValidationError, 0),
	}
}

// ValidateStructural validates a single resource schema without cross-resource checks
func (v *SchemaValidator) ValidateStructural(schema *ResourceSchema) error {
	v.errors = make([]*ValidationError, 0)

	if strings.TrimSpace(schema.Name) == "" {
		v.addError("", "", "resource name must not be empty", "")
		return v.result()
	}

	v.validatePrimaryKey(schema)
	v.validateRelationships(schema)
	v.validateNames(schema)

	return v.result()
}

// ValidateRelationships checks relationship targets and derived
// back-reference names across all schemas.
func (v *SchemaValidator) ValidateRelationships(schemas map[string]*ResourceSchema, order []string) error {
	v.errors = make([]*ValidationError, 0)

	// target -> derived back-reference name -> declaring resource
	derived := make(map[string]map[string]string)

	for _, name := range order {
		source := schemas[name]
		for _, attr := range source.Attributes() {
			rel, ok := source.Relationships[attr]
			if !ok {
				continue
			}
			target, exists := schemas[rel.TargetResource]
			if !exists {
				v.addError(source.Name, rel.FieldName,
					fmt.Sprintf("relationship references unknown resource %s", rel.TargetResource),
					"register the target resource or fix the relationship target")
				continue
			}

			reverse, _, ok := backReference(source, rel)
			if !ok || target.HasField(reverse) || target.HasRelationship(reverse) {
				continue
			}
			if derived[target.Name] == nil {
				derived[target.Name] = make(map[string]string)
			}
			if other, clash := derived[target.Name][reverse]; clash {
				v.addError(source.Name, rel.FieldName,
					fmt.Sprintf("back-reference %s.%s clashes with the one derived from %s", target.Name, reverse, other),
					"set related_name on one of the relationships")
				continue
			}
			derived[target.Name][reverse] = source.Name + "." + rel.FieldName
		}
	}

	return v.result()
}

func (v *SchemaValidator) validatePrimaryKey(schema *ResourceSchema) {
	count := 0
	for _, field := range schema.Fields {
		if field.Primary {
			count++
		}
	}
	switch {
	case count == 0:
		v.addError(schema.Name, "", "resource has no primary key", "mark one field as primary")
	case count > 1:
		v.addError(schema.Name, "", fmt.Sprintf("resource has %d primary keys", count), "composite keys are not supported")
	}
}

func (v *SchemaValidator) validateRelationships(schema *ResourceSchema) {
	for name, rel := range schema.Relationships {
		if rel.TargetResource == "" {
			v.addError(schema.Name, name, "relationship has no target resource", "")
		}
		if rel.FieldName != name {
			v.addError(schema.Name, name,
				fmt.Sprintf("relationship registered as %s but named %s", name, rel.FieldName), "")
		}
		if rel.Unique && rel.Type != RelationshipBelongsTo {
			v.addError(schema.Name, name, "only belongs_to relationships can be unique", "")
		}
	}
}

func (v *SchemaValidator) validateNames(schema *ResourceSchema) {
	for name := range schema.Fields {
		if name == "" {
			v.addError(schema.Name, "", "field name must not be empty", "")
			continue
		}
		if strings.Contains(name, ".") || strings.Contains(name, "__") {
			v.addError(schema.Name, name, "attribute names must not contain '.' or '__'", "")
		}
		if schema.HasRelationship(name) {
			v.addError(schema.Name, name, "name is used by both a field and a relationship", "")
		}
	}
	for name := range schema.Relationships {
		if strings.Contains(name, ".") || strings.Contains(name, "__") {
			v.addError(schema.Name, name, "attribute names must not contain '.' or '__'", "")
		}
	}
}

func (v *SchemaValidator) addError(resource, field, message, hint string) {
	v.errors = append(v.errors, &ValidationError{
		Resource: resource,
		Field:    field,
		Message:  message,
		Hint:     hint,
	})
}

func (v *SchemaValidator) result() error {
	if len(v.errors) == 0 {
		return nil
	}
	var errMsgs []string
	for _, err := range v.errors {
		errMsgs = append(errMsgs, err.Error())
	}
	return fmt.Errorf("schema validation failed with %d errors:\n%s",
		len(v.errors), strings.Join(errMsgs, "\n"))
}
