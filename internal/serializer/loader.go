package serializer

import (
	"fmt"
	"os"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"gopkg.in/yaml.v3"
)

// Set is a named collection of descriptors loaded together
type Set struct {
	order  []string
	byName map[string]Descriptor
}

// NewSet creates an empty descriptor set
func NewSet() *Set {
	return &Set{byName: make(map[string]Descriptor)}
}

// Add registers a descriptor under its name
func (s *Set) Add(d Descriptor) error {
	if _, exists := s.byName[d.Name()]; exists {
		return fmt.Errorf("%w: descriptor %s defined twice", ErrInvalidDescriptor, d.Name())
	}
	s.byName[d.Name()] = d
	s.order = append(s.order, d.Name())
	return nil
}

// Get returns the descriptor with the given name
func (s *Set) Get(name string) (Descriptor, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Names returns descriptor names in definition order
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// reference resolves a nested descriptor by name when it is walked, so
// documents may reference descriptors defined later (or themselves).
type reference struct {
	name string
	set  *Set
}

func (r *reference) Name() string { return r.name }

func (r *reference) Resource() string {
	if d, ok := r.set.Get(r.name); ok {
		return d.Resource()
	}
	return ""
}

func (r *reference) Fields() ([]Field, error) {
	d, ok := r.set.Get(r.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDescriptor, r.name)
	}
	return d.Fields()
}

type descriptorDocument struct {
	Descriptors []descriptorDoc `yaml:"descriptors"`
}

type descriptorDoc struct {
	Name     string             `yaml:"name"`
	Resource string             `yaml:"resource"`
	Opaque   bool               `yaml:"opaque"`
	Fields   *fieldList         `yaml:"fields"`
	Declared []declaredFieldDoc `yaml:"declared"`
}

type declaredFieldDoc struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Source     string   `yaml:"source"`
	Many       bool     `yaml:"many"`
	Descriptor string   `yaml:"descriptor"`
	Sources    []string `yaml:"sources"`
	Lookup     string   `yaml:"lookup"`
}

// fieldList accepts either "__all__" or a sequence of attribute names
type fieldList struct {
	names []string
}

func (l *fieldList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value != AllFields {
			return fmt.Errorf("fields must be %q or a list, got %q", AllFields, value.Value)
		}
		l.names = nil
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		l.names = names
		if l.names == nil {
			l.names = []string{}
		}
		return nil
	default:
		return fmt.Errorf("fields must be %q or a list", AllFields)
	}
}

// LoadDescriptors reads a YAML descriptor file
func LoadDescriptors(path string, accessor *schema.Accessor) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file: %w", err)
	}
	set, err := ParseDescriptors(data, accessor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// ParseDescriptors decodes a YAML descriptor document. Descriptors with a
// fields entry are built from the schema like Model; the others consist of
// their declared fields only.
func ParseDescriptors(data []byte, accessor *schema.Accessor) (*Set, error) {
	var doc descriptorDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	set := NewSet()
	var refs []*reference

	for _, dd := range doc.Descriptors {
		if dd.Name == "" {
			return nil, fmt.Errorf("%w: descriptor without a name", ErrInvalidDescriptor)
		}

		if dd.Opaque {
			if err := set.Add(NewOpaque(dd.Name, dd.Resource)); err != nil {
				return nil, err
			}
			continue
		}

		declared := make([]Field, 0, len(dd.Declared))
		for _, fd := range dd.Declared {
			field, ref, err := fd.build(set)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", dd.Name, fd.Name, err)
			}
			if ref != nil {
				refs = append(refs, ref)
			}
			declared = append(declared, field)
		}

		bindPrimaryKeys(accessor, dd.Resource, declared)

		var d Descriptor
		if dd.Fields != nil {
			m, err := Model(accessor, dd.Name, dd.Resource, dd.Fields.names, declared...)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", dd.Name, err)
			}
			d = m
		} else {
			d = New(dd.Name, dd.Resource, declared...)
		}
		if err := set.Add(d); err != nil {
			return nil, err
		}
	}

	for _, ref := range refs {
		if _, ok := set.Get(ref.name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDescriptor, ref.name)
		}
	}

	return set, nil
}

func (fd declaredFieldDoc) build(set *Set) (Field, *reference, error) {
	if fd.Name == "" {
		return nil, nil, fmt.Errorf("%w: field without a name", ErrInvalidDescriptor)
	}

	switch fd.Kind {
	case "", "scalar":
		return ScalarFrom(fd.Name, fd.Source), nil, nil
	case "relation":
		return Relation(fd.Name, fd.Source, fd.Many), nil, nil
	case "nested":
		if fd.Descriptor == "" {
			return nil, nil, fmt.Errorf("%w: nested field needs a descriptor", ErrInvalidDescriptor)
		}
		ref := &reference{name: fd.Descriptor, set: set}
		field := Nest(fd.Name, ref)
		if fd.Many {
			field = NestMany(fd.Name, ref)
		}
		if fd.Source != "" {
			field.From(fd.Source)
		}
		return field, ref, nil
	case "computed":
		return Computed(fd.Name, fd.Sources...), nil, nil
	case "self_link":
		return SelfLink(fd.Name), nil, nil
	case "ref":
		return HyperlinkRef(fd.Name, fd.Source, fd.Many, fd.Lookup), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown field kind %q", ErrInvalidDescriptor, fd.Kind)
	}
}
