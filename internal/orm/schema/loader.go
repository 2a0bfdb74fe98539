package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the on-disk representation of a schema file
type document struct {
	Resources []resourceDoc `yaml:"resources"`
}

type resourceDoc struct {
	Name          string            `yaml:"name"`
	Table         string            `yaml:"table"`
	Documentation string            `yaml:"doc"`
	Fields        []fieldDoc        `yaml:"fields"`
	Relationships []relationshipDoc `yaml:"relationships"`
}

type fieldDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Primary  bool   `yaml:"primary"`
	Column   string `yaml:"column"`
}

type relationshipDoc struct {
	Name           string `yaml:"name"`
	Type           string `yaml:"type"`
	Target         string `yaml:"target"`
	ForeignKey     string `yaml:"foreign_key"`
	RelatedName    string `yaml:"related_name"`
	Unique         bool   `yaml:"unique"`
	Nullable       bool   `yaml:"nullable"`
	JoinTable      string `yaml:"join_table"`
	AssociationKey string `yaml:"association_key"`
}

// LoadFile reads a YAML schema file into a validated registry
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	registry, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return registry, nil
}

// Parse decodes a YAML schema document into a validated registry.
// Resources without a declared primary key receive an integer "id" column.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	registry := NewRegistry()
	for _, rd := range doc.Resources {
		resource, err := rd.build()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(resource); err != nil {
			return nil, err
		}
	}

	if err := registry.ValidateAll(); err != nil {
		return nil, err
	}
	return registry, nil
}

func (rd resourceDoc) build() (*ResourceSchema, error) {
	if rd.Name == "" {
		return nil, fmt.Errorf("%w: resource without a name", ErrInvalidSchema)
	}

	resource := NewResourceSchema(rd.Name)
	resource.Documentation = rd.Documentation
	if rd.Table != "" {
		resource.TableName = rd.Table
	}

	hasPrimary := false
	for _, fd := range rd.Fields {
		hasPrimary = hasPrimary || fd.Primary
	}
	if !hasPrimary {
		resource.AddField(&Field{
			Name:    "id",
			Type:    &TypeSpec{BaseType: TypeInt},
			Primary: true,
		})
	}

	for _, fd := range rd.Fields {
		typeName := fd.Type
		if typeName == "" {
			typeName = "string"
		}
		baseType, err := ParsePrimitiveType(typeName)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, rd.Name, fd.Name, err)
		}
		resource.AddField(&Field{
			Name:    fd.Name,
			Type:    &TypeSpec{BaseType: baseType, Nullable: fd.Nullable},
			Primary: fd.Primary,
			Column:  fd.Column,
		})
	}

	for _, rel := range rd.Relationships {
		relType, err := ParseRelationType(rel.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, rd.Name, rel.Name, err)
		}
		resource.AddRelationship(&Relationship{
			Type:           relType,
			TargetResource: rel.Target,
			FieldName:      rel.Name,
			Nullable:       rel.Nullable,
			ForeignKey:     rel.ForeignKey,
			Unique:         rel.Unique,
			RelatedName:    rel.RelatedName,
			JoinTable:      rel.JoinTable,
			AssociationKey: rel.AssociationKey,
		})
	}

	return resource, nil
}
