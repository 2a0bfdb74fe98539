package trace

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"github.com/conduit-lang/autorelated/internal/serializer"
)

// SchemaAccessor enumerates the attributes of a resource
type SchemaAccessor interface {
	Accessors(resource string) ([]schema.AttributeDescriptor, error)
}

// Tracer resolves descriptor source paths against the schema
type Tracer struct {
	accessor  SchemaAccessor
	extractor *serializer.Extractor
	logger    *zap.Logger
}

// Option configures a Tracer
type Option func(*Tracer)

// WithLogger sets the logger for warnings and classification traces
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithExtractor replaces the source extractor
func WithExtractor(extractor *serializer.Extractor) Option {
	return func(t *Tracer) {
		if extractor != nil {
			t.extractor = extractor
		}
	}
}

// New creates a tracer. Unless configured otherwise the extractor shares
// the tracer's logger.
func New(accessor SchemaAccessor, opts ...Option) *Tracer {
	t := &Tracer{
		accessor: accessor,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.extractor == nil {
		t.extractor = serializer.NewExtractor(serializer.WithLogger(t.logger))
	}
	return t
}

// Resolution is one traced source path with its classification
type Resolution struct {
	Source     string
	Trail      Trail
	Select     string
	Prefetch   string
	Diagnostic *Diagnostic
}

// Resolve walks path from resource. An unknown segment is logged and
// truncates the trail. With includeReverse unset, resolution stops before
// the first back-reference. Resolution also stops at the first scalar.
// The only error is an unknown root resource.
func (t *Tracer) Resolve(path, resource string, includeReverse bool) (Trail, error) {
	trail, diag, err := t.resolve(path, resource, includeReverse)
	if err != nil {
		return nil, err
	}
	if diag != nil {
		t.warn(*diag)
	}
	return trail, nil
}

func (t *Tracer) resolve(path, resource string, includeReverse bool) (Trail, *Diagnostic, error) {
	attrs, err := t.accessor.Accessors(resource)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: %w", ErrInvalidSubject, resource, err)
	}
	if path == "" {
		return Trail{}, nil, nil
	}

	segments := strings.Split(path, ".")
	trail := make(Trail, 0, len(segments))
	current := resource

	for i, name := range segments {
		attr, ok := find(attrs, name)
		if !ok {
			return trail, &Diagnostic{
				Kind:     DiagnosticUnresolvableAttribute,
				Resource: current,
				Path:     path,
				Segment:  name,
				Message:  fmt.Sprintf("%v: %s has no attribute %s", ErrUnresolvableAttribute, current, name),
			}, nil
		}
		if !includeReverse && attr.Kind.IsReverse() {
			break
		}
		trail = append(trail, attr)

		if !attr.IsRelation() || i == len(segments)-1 {
			break
		}
		current = attr.RelatedType
		attrs, err = t.accessor.Accessors(current)
		if err != nil {
			return trail, &Diagnostic{
				Kind:     DiagnosticUnresolvableAttribute,
				Resource: current,
				Path:     path,
				Segment:  segments[i+1],
				Message:  err.Error(),
			}, nil
		}
	}

	return trail, nil, nil
}

func find(attrs []schema.AttributeDescriptor, name string) (schema.AttributeDescriptor, bool) {
	for _, attr := range attrs {
		if attr.Name == name {
			return attr, true
		}
	}
	return schema.AttributeDescriptor{}, false
}

// Trace resolves and classifies every source path of d in extraction order
func (t *Tracer) Trace(d serializer.Descriptor) ([]Resolution, error) {
	if err := t.checkSubject(d); err != nil {
		return nil, err
	}

	paths, _ := t.extractor.Extract(d, false)
	out := make([]Resolution, 0, len(paths))
	for _, path := range paths {
		trail, diag, err := t.resolve(path, d.Resource(), true)
		if err != nil {
			return nil, err
		}
		if diag != nil {
			diag.Descriptor = d.Name()
			t.warn(*diag)
		}
		s, p := t.classify(path, trail)
		out = append(out, Resolution{
			Source:     path,
			Trail:      trail,
			Select:     s,
			Prefetch:   p,
			Diagnostic: diag,
		})
	}
	return out, nil
}

// Projection lists the attribute paths a minimal column projection for d
// must keep. Identifier references are included and back-references are
// cut off, since a projection cannot express them.
func (t *Tracer) Projection(d serializer.Descriptor) ([]string, error) {
	if err := t.checkSubject(d); err != nil {
		return nil, err
	}
	set := NewDirectiveSet()
	if err := t.project(d, set, map[string]bool{}); err != nil {
		return nil, err
	}
	return set.Projection.Slice(), nil
}

// Optimize derives the directive set for d. Unresolvable paths and
// unintrospectable subtrees are skipped and reported as diagnostics; only
// a subject resource unknown to the schema is an error.
func (t *Tracer) Optimize(d serializer.Descriptor) (*DirectiveSet, error) {
	if err := t.checkSubject(d); err != nil {
		return nil, err
	}

	set := NewDirectiveSet()
	reported := make(map[string]bool)

	paths, warnings := t.extractor.Extract(d, false)
	for _, w := range warnings {
		set.Diagnostics = append(set.Diagnostics, Diagnostic{
			Kind:       DiagnosticUnintrospectableDescriptor,
			Descriptor: w.Descriptor,
			Resource:   d.Resource(),
			Path:       w.Path,
			Message:    w.Err.Error(),
		})
	}

	for _, path := range paths {
		trail, diag, err := t.resolve(path, d.Resource(), true)
		if err != nil {
			return nil, err
		}
		if diag != nil && !reported[path] {
			reported[path] = true
			diag.Descriptor = d.Name()
			t.warn(*diag)
			set.Diagnostics = append(set.Diagnostics, *diag)
		}
		s, p := t.classify(path, trail)
		set.Select.Add(s)
		set.Prefetch.Add(p)
	}

	if err := t.project(d, set, reported); err != nil {
		return nil, err
	}
	return set, nil
}

func (t *Tracer) project(d serializer.Descriptor, set *DirectiveSet, reported map[string]bool) error {
	paths, _ := t.extractor.Extract(d, true)
	for _, path := range paths {
		trail, diag, err := t.resolve(path, d.Resource(), false)
		if err != nil {
			return err
		}
		if diag != nil && !reported[path] {
			reported[path] = true
			diag.Descriptor = d.Name()
			t.warn(*diag)
			set.Diagnostics = append(set.Diagnostics, *diag)
		}
		if len(trail) == 0 {
			continue
		}
		set.Projection.Add(trail.Path(Separator))
	}
	return nil
}

func (t *Tracer) checkSubject(d serializer.Descriptor) error {
	if _, err := t.accessor.Accessors(d.Resource()); err != nil {
		return fmt.Errorf("%w %q of %s: %w", ErrInvalidSubject, d.Resource(), d.Name(), err)
	}
	return nil
}

func (t *Tracer) classify(path string, trail Trail) (string, string) {
	s, p := SelectAndPrefetch(trail)
	if s != "" || p != "" {
		t.logger.Debug("classified trail",
			zap.String("source", path),
			zap.Stringer("trail", trail),
			zap.String("select", s),
			zap.String("prefetch", p),
		)
	}
	return s, p
}

func (t *Tracer) warn(d Diagnostic) {
	t.logger.Warn("trail truncated",
		zap.String("descriptor", d.Descriptor),
		zap.String("resource", d.Resource),
		zap.String("path", d.Path),
		zap.String("segment", d.Segment),
		zap.String("reason", d.Message),
	)
}
