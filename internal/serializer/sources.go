package serializer

import (
	"fmt"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds descriptor nesting during extraction
const DefaultMaxDepth = 32

// Warning is a recoverable problem met while extracting sources. The
// subtree that caused it contributes no paths.
type Warning struct {
	Descriptor string
	Path       string // prefix at which the subtree was nested, empty at the root
	Err        error
}

// String implements fmt.Stringer
func (w Warning) String() string {
	if w.Path == "" {
		return fmt.Sprintf("%s: %v", w.Descriptor, w.Err)
	}
	return fmt.Sprintf("%s (at %s): %v", w.Descriptor, w.Path, w.Err)
}

// Extractor walks descriptor trees and lists the attribute paths read
// while rendering a record.
type Extractor struct {
	logger   *zap.Logger
	maxDepth int
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithLogger sets the logger used for warnings
func WithLogger(logger *zap.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxDepth bounds descriptor nesting
func WithMaxDepth(depth int) ExtractorOption {
	return func(e *Extractor) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// NewExtractor creates a source extractor
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		logger:   zap.NewNop(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sources lists the dotted paths read when rendering a record with d, in
// field declaration order, depth first. Identifier-only references are
// left out unless includeIdentifierRefs is set.
func (e *Extractor) Sources(d Descriptor, includeIdentifierRefs bool) []string {
	paths, _ := e.Extract(d, includeIdentifierRefs)
	return paths
}

// Extract is Sources that also returns the warnings raised along the way
func (e *Extractor) Extract(d Descriptor, includeIdentifierRefs bool) ([]string, []Warning) {
	w := &walker{
		extractor: e,
		include:   includeIdentifierRefs,
		paths:     make([]string, 0),
	}
	w.walk(d, "", 0)
	return w.paths, w.warnings
}

type walker struct {
	extractor *Extractor
	include   bool
	paths     []string
	warnings  []Warning
}

func (w *walker) walk(d Descriptor, prefix string, depth int) {
	if depth >= w.extractor.maxDepth {
		w.warn(d, prefix, fmt.Errorf("%w (%d)", ErrMaxDepthExceeded, w.extractor.maxDepth))
		return
	}

	fields, err := d.Fields()
	if err != nil {
		w.warn(d, prefix, err)
		return
	}

	for _, field := range fields {
		source := field.Source()

		if source == SelfSource {
			for _, dep := range field.Dependencies() {
				w.paths = append(w.paths, prefix+dep)
			}
			continue
		}

		if field.IdentifierOnly() {
			if !w.include {
				continue
			}
		} else if lookup := field.Lookup(); lookup != "" {
			source += "." + lookup
		}

		w.paths = append(w.paths, prefix+source)

		if nested := field.Nested(); nested != nil {
			w.walk(nested, prefix+source+".", depth+1)
		}
	}
}

func (w *walker) warn(d Descriptor, prefix string, err error) {
	path := prefix
	if len(path) > 0 {
		path = path[:len(path)-1]
	}
	w.warnings = append(w.warnings, Warning{Descriptor: d.Name(), Path: path, Err: err})
	w.extractor.logger.Warn("descriptor contributes no sources",
		zap.String("descriptor", d.Name()),
		zap.String("path", path),
		zap.Error(err),
	)
}
