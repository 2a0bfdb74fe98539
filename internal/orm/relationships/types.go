// Package relationships loads related records in batched follow-up
// queries, one per relation and path prefix, so that rendering a list of
// records does not issue a query per record.
package relationships

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// DefaultMaxDepth bounds the number of relations a prefetch path may cross
const DefaultMaxDepth = 10

// Querier is an interface for executing SQL queries, allowing for testing and instrumentation
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Loader handles efficient relationship loading with N+1 prevention
type Loader struct {
	db       Querier
	accessor *schema.Accessor
	maxDepth int
	logger   *zap.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithMaxDepth overrides DefaultMaxDepth
func WithMaxDepth(depth int) Option {
	return func(l *Loader) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

// WithLogger sets the logger used for query tracing
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a new relationship loader
func NewLoader(db Querier, accessor *schema.Accessor, opts ...Option) *Loader {
	l := &Loader{
		db:       db,
		accessor: accessor,
		maxDepth: DefaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// getSchema retrieves a resource schema from the registry
func (l *Loader) getSchema(name string) (*schema.ResourceSchema, bool) {
	return l.accessor.Registry().Get(name)
}

// LoadContext tracks the prefixes already loaded during one Prefetch call
// and the depth of the path being walked.
type LoadContext struct {
	visited  map[string]bool
	depth    int
	maxDepth int
	mu       sync.Mutex
}

// NewLoadContext creates a new load context with the given max depth
func NewLoadContext(maxDepth int) *LoadContext {
	return &LoadContext{
		visited:  make(map[string]bool),
		maxDepth: maxDepth,
	}
}

// MarkVisited marks a path prefix as loaded. It returns false when the
// prefix was loaded before.
func (lc *LoadContext) MarkVisited(prefix string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.visited[prefix] {
		return false
	}
	lc.visited[prefix] = true
	return true
}

// IncrementDepth increments the depth counter
func (lc *LoadContext) IncrementDepth() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.depth++
	if lc.depth > lc.maxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// DecrementDepth decrements the depth counter
func (lc *LoadContext) DecrementDepth() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.depth--
}
