package trace

import (
	"encoding/json"
	"fmt"
)

// PathSet is an insertion-ordered set of directive paths
type PathSet struct {
	order []string
	index map[string]struct{}
}

// NewPathSet creates a set holding paths
func NewPathSet(paths ...string) *PathSet {
	s := &PathSet{index: make(map[string]struct{})}
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add inserts path and reports whether it was new. Empty paths are ignored.
func (s *PathSet) Add(path string) bool {
	if path == "" {
		return false
	}
	if _, ok := s.index[path]; ok {
		return false
	}
	s.index[path] = struct{}{}
	s.order = append(s.order, path)
	return true
}

// Contains reports whether path is in the set
func (s *PathSet) Contains(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[path]
	return ok
}

// Len returns the number of paths
func (s *PathSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Slice returns the paths in insertion order
func (s *PathSet) Slice() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// MarshalJSON encodes the set as an array
func (s *PathSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// DiagnosticKind classifies recoverable analysis problems
type DiagnosticKind int

const (
	// DiagnosticUnresolvableAttribute means a path segment could not be resolved
	DiagnosticUnresolvableAttribute DiagnosticKind = iota
	// DiagnosticUnintrospectableDescriptor means a descriptor subtree
	// contributed no paths
	DiagnosticUnintrospectableDescriptor
)

// String returns the string representation of the kind
func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticUnresolvableAttribute:
		return "unresolvable_attribute"
	case DiagnosticUnintrospectableDescriptor:
		return "unintrospectable_descriptor"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind by name
func (k DiagnosticKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Diagnostic is an advisory note about a path that was truncated or a
// descriptor subtree that was skipped.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"kind"`
	Descriptor string         `json:"descriptor,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	Path       string         `json:"path"`
	Segment    string         `json:"segment,omitempty"`
	Message    string         `json:"message"`
}

// String implements fmt.Stringer
func (d Diagnostic) String() string {
	if d.Segment != "" {
		return fmt.Sprintf("%s: %s (segment %q of %q)", d.Kind, d.Message, d.Segment, d.Path)
	}
	if d.Path != "" {
		return fmt.Sprintf("%s: %s (at %q)", d.Kind, d.Message, d.Path)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// DirectiveSet holds the eager-loading directives derived for one
// descriptor. Paths use Separator between segments.
type DirectiveSet struct {
	Select      *PathSet     `json:"select"`
	Prefetch    *PathSet     `json:"prefetch"`
	Projection  *PathSet     `json:"projection"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// NewDirectiveSet creates an empty directive set
func NewDirectiveSet() *DirectiveSet {
	return &DirectiveSet{
		Select:     NewPathSet(),
		Prefetch:   NewPathSet(),
		Projection: NewPathSet(),
	}
}

// Empty reports whether no eager loading is needed
func (d *DirectiveSet) Empty() bool {
	return d.Select.Len() == 0 && d.Prefetch.Len() == 0
}
