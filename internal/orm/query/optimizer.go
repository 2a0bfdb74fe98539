package query

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/autorelated/internal/serializer"
	"github.com/conduit-lang/autorelated/internal/trace"
)

// Optimizer applies the loading plan of a serializer descriptor to a query
type Optimizer struct {
	tracer *trace.Tracer
	logger *zap.Logger
}

// OptimizerOption configures an Optimizer
type OptimizerOption func(*Optimizer)

// WithOptimizerLogger sets the logger of the optimizer
func WithOptimizerLogger(logger *zap.Logger) OptimizerOption {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOptimizer creates a new query optimizer
func NewOptimizer(tracer *trace.Tracer, opts ...OptimizerOption) *Optimizer {
	o := &Optimizer{tracer: tracer, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize returns a copy of qb carrying the select, prefetch and projection
// directives that serializing its rows with d requires, together with the
// directive set itself. The original builder is left untouched.
func (o *Optimizer) Optimize(qb *QueryBuilder, d serializer.Descriptor) (*QueryBuilder, *trace.DirectiveSet, error) {
	if d.Resource() != qb.Resource() {
		return nil, nil, fmt.Errorf("descriptor %s serializes %s, query selects %s", d.Name(), d.Resource(), qb.Resource())
	}

	ds, err := o.tracer.Optimize(d)
	if err != nil {
		return nil, nil, err
	}

	optimized := qb.Clone().Apply(ds)
	optimized.conditions = reorderConditions(optimized.conditions)

	o.logger.Debug("optimized query",
		zap.String("descriptor", d.Name()),
		zap.Strings("select", ds.Select.Slice()),
		zap.Strings("prefetch", ds.Prefetch.Slice()),
		zap.Int("projection", ds.Projection.Len()),
		zap.Int("diagnostics", len(ds.Diagnostics)),
	)
	return optimized, ds, nil
}

// reorderConditions puts the most selective conditions first. Conditions
// chained with OR keep their position since moving them changes the result.
func reorderConditions(conditions []*Condition) []*Condition {
	if len(conditions) <= 1 {
		return conditions
	}
	for _, cond := range conditions {
		if cond.Or {
			return conditions
		}
	}

	reordered := make([]*Condition, len(conditions))
	copy(reordered, conditions)
	sort.SliceStable(reordered, func(i, j int) bool {
		return scoreCondition(reordered[i]) < scoreCondition(reordered[j])
	})
	return reordered
}

// scoreCondition assigns a selectivity score to a condition
// Lower scores are more selective (better to evaluate first)
func scoreCondition(cond *Condition) int {
	switch cond.Operator {
	case OpEqual:
		return 1
	case OpIn:
		// IN with small lists is selective
		if values, ok := cond.Value.([]interface{}); ok && len(values) <= 3 {
			return 2
		}
		return 4
	case OpIsNull, OpIsNotNull:
		return 3
	case OpBetween:
		return 5
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return 6
	case OpLike, OpILike:
		return 8
	case OpNotEqual, OpNotIn:
		return 10
	default:
		return 5
	}
}

// QueryPlan describes how a query will be executed
type QueryPlan struct {
	Resource         string             `json:"resource"`
	Descriptor       string             `json:"descriptor"`
	SQL              string             `json:"sql"`
	Args             []interface{}      `json:"args"`
	Select           []string           `json:"select"`
	Prefetch         []string           `json:"prefetch"`
	Projection       []string           `json:"projection"`
	EstimatedQueries int                `json:"estimated_queries"`
	Diagnostics      []trace.Diagnostic `json:"diagnostics,omitempty"`
	Optimizations    []string           `json:"optimizations"`
}

// Explain generates an execution plan for serializing the rows of qb with d
func (o *Optimizer) Explain(qb *QueryBuilder, d serializer.Descriptor) (*QueryPlan, error) {
	optimized, ds, err := o.Optimize(qb, d)
	if err != nil {
		return nil, err
	}

	sql, args, err := optimized.ToSQL()
	if err != nil {
		return nil, err
	}

	plan := &QueryPlan{
		Resource:         qb.Resource(),
		Descriptor:       d.Name(),
		SQL:              sql,
		Args:             args,
		Select:           optimized.SelectPaths(),
		Prefetch:         optimized.PrefetchPaths(),
		Projection:       optimized.Projection(),
		EstimatedQueries: EstimateQueries(optimized),
		Diagnostics:      ds.Diagnostics,
		Optimizations:    getOptimizations(qb, optimized),
	}
	return plan, nil
}

// EstimateQueries counts the queries All issues: the root query plus one per
// distinct prefetch prefix that is not already covered by a join
func EstimateQueries(qb *QueryBuilder) int {
	joined := make(map[string]bool)
	for _, path := range qb.SelectPaths() {
		for _, prefix := range prefixes(path) {
			joined[prefix] = true
		}
	}

	loaded := make(map[string]bool)
	for _, path := range qb.PrefetchPaths() {
		for _, prefix := range prefixes(path) {
			if !joined[prefix] {
				loaded[prefix] = true
			}
		}
	}
	return 1 + len(loaded)
}

func prefixes(path string) []string {
	segments := strings.Split(path, PathSeparator)
	out := make([]string, len(segments))
	for i := range segments {
		out[i] = strings.Join(segments[:i+1], PathSeparator)
	}
	return out
}

// getOptimizations returns a list of optimizations applied
func getOptimizations(original, optimized *QueryBuilder) []string {
	opts := make([]string, 0)

	if n := len(optimized.SelectPaths()) - len(original.SelectPaths()); n > 0 {
		opts = append(opts, fmt.Sprintf("Joined %d to-one relation path(s)", n))
	}
	if n := len(optimized.PrefetchPaths()) - len(original.PrefetchPaths()); n > 0 {
		opts = append(opts, fmt.Sprintf("Prefetching %d relation path(s)", n))
	}
	if original.only.Len() == 0 && optimized.only.Len() > 0 {
		opts = append(opts, fmt.Sprintf("Projected %d attribute path(s)", optimized.only.Len()))
	}

	// Check if conditions were reordered
	if len(original.conditions) > 1 && len(optimized.conditions) > 1 {
		if original.conditions[0] != optimized.conditions[0] {
			opts = append(opts, "Reordered conditions for selectivity")
		}
	}

	return opts
}
