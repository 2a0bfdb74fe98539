// Package query builds and runs the root query of a loading plan: a LEFT
// JOIN per select path, an optional column projection, and batched
// prefetches for the relations a join cannot express.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/conduit-lang/autorelated/internal/orm/relationships"
	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"github.com/conduit-lang/autorelated/internal/trace"
)

// PathSeparator separates the relations of a select or prefetch path
const PathSeparator = trace.Separator

// Querier runs queries; *sql.DB, *sql.Tx and observed connections satisfy it
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Prefetcher loads relations for already fetched records
type Prefetcher interface {
	Prefetch(ctx context.Context, records []map[string]interface{}, resource string, paths []string) error
}

// QueryBuilder provides a fluent API for building SQL queries
type QueryBuilder struct {
	accessor *schema.Accessor
	resource *schema.ResourceSchema
	db       Querier
	loader   Prefetcher

	conditions []*Condition
	groups     []*PredicateGroup
	orderBy    []orderClause
	limit      *int
	offset     *int

	selectRelated *trace.PathSet
	prefetch      *trace.PathSet
	only          *trace.PathSet
}

type orderClause struct {
	field     string
	direction string
}

// join is one LEFT JOIN of the root query. alias is the select path that
// produced it; parent is the alias of the owning side, empty for the root.
type join struct {
	alias  string
	parent string
	attr   schema.AttributeDescriptor
	owner  *schema.ResourceSchema
	target *schema.ResourceSchema
}

// NewQueryBuilder creates a new query builder for the given resource.
// Prefetches go through a relationships.Loader on db unless WithLoader
// replaces it.
func NewQueryBuilder(accessor *schema.Accessor, resource string, db Querier) (*QueryBuilder, error) {
	rs, ok := accessor.Registry().Get(resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownResource, resource)
	}
	return &QueryBuilder{
		accessor:      accessor,
		resource:      rs,
		db:            db,
		loader:        relationships.NewLoader(db, accessor),
		selectRelated: trace.NewPathSet(),
		prefetch:      trace.NewPathSet(),
		only:          trace.NewPathSet(),
	}, nil
}

// Resource returns the name of the queried resource
func (qb *QueryBuilder) Resource() string {
	return qb.resource.Name
}

// WithLoader sets the loader used for prefetch paths
func (qb *QueryBuilder) WithLoader(loader Prefetcher) *QueryBuilder {
	qb.loader = loader
	return qb
}

// Where adds a WHERE condition to the query. The field is an attribute of
// the resource, or alias__attribute for a joined relation.
func (qb *QueryBuilder) Where(field string, op Operator, value interface{}) *QueryBuilder {
	qb.conditions = append(qb.conditions, &Condition{Field: field, Operator: op, Value: value})
	return qb
}

// OrWhere adds an OR WHERE condition to the query
func (qb *QueryBuilder) OrWhere(field string, op Operator, value interface{}) *QueryBuilder {
	qb.conditions = append(qb.conditions, &Condition{Field: field, Operator: op, Value: value, Or: true})
	return qb
}

// WhereCondition adds a parsed condition
func (qb *QueryBuilder) WhereCondition(cond *Condition) *QueryBuilder {
	c := *cond
	qb.conditions = append(qb.conditions, &c)
	return qb
}

// WhereGroup adds a parenthesized group of conditions joined with AND
func (qb *QueryBuilder) WhereGroup(fn func(*PredicateBuilder)) *QueryBuilder {
	pb := NewPredicateBuilder()
	fn(pb)
	qb.groups = append(qb.groups, pb.root)
	return qb
}

// WhereIn adds a WHERE IN condition
func (qb *QueryBuilder) WhereIn(field string, values []interface{}) *QueryBuilder {
	return qb.Where(field, OpIn, values)
}

// WhereNull adds a WHERE IS NULL condition
func (qb *QueryBuilder) WhereNull(field string) *QueryBuilder {
	return qb.Where(field, OpIsNull, nil)
}

// WhereNotNull adds a WHERE IS NOT NULL condition
func (qb *QueryBuilder) WhereNotNull(field string) *QueryBuilder {
	return qb.Where(field, OpIsNotNull, nil)
}

// OrderBy adds an ORDER BY clause
func (qb *QueryBuilder) OrderBy(field string, direction string) *QueryBuilder {
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	qb.orderBy = append(qb.orderBy, orderClause{field: field, direction: dir})
	return qb
}

// Limit sets the LIMIT clause
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET clause
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.offset = &n
	return qb
}

// SelectRelated joins to-one relations into the root query. Intermediate
// relations of a path are joined as well.
func (qb *QueryBuilder) SelectRelated(paths ...string) *QueryBuilder {
	for _, p := range paths {
		qb.selectRelated.Add(p)
	}
	return qb
}

// PrefetchRelated loads relations with one batched query per path prefix
// after the root query
func (qb *QueryBuilder) PrefetchRelated(paths ...string) *QueryBuilder {
	for _, p := range paths {
		qb.prefetch.Add(p)
	}
	return qb
}

// Only restricts the fetched columns to the given attribute paths. Primary
// keys and the foreign keys the joins and prefetches need are always kept.
func (qb *QueryBuilder) Only(paths ...string) *QueryBuilder {
	for _, p := range paths {
		qb.only.Add(p)
	}
	return qb
}

// Apply adds the select, prefetch and projection directives of ds
func (qb *QueryBuilder) Apply(ds *trace.DirectiveSet) *QueryBuilder {
	if ds == nil {
		return qb
	}
	qb.SelectRelated(ds.Select.Slice()...)
	qb.PrefetchRelated(ds.Prefetch.Slice()...)
	qb.Only(ds.Projection.Slice()...)
	return qb
}

// SelectPaths returns the select paths in insertion order
func (qb *QueryBuilder) SelectPaths() []string { return qb.selectRelated.Slice() }

// PrefetchPaths returns the prefetch paths in insertion order
func (qb *QueryBuilder) PrefetchPaths() []string { return qb.prefetch.Slice() }

// Projection returns the projected attribute paths in insertion order
func (qb *QueryBuilder) Projection() []string { return qb.only.Slice() }

// ToSQL generates the SQL query and parameter bindings
func (qb *QueryBuilder) ToSQL() (string, []interface{}, error) {
	joins, err := qb.planJoins()
	if err != nil {
		return "", nil, err
	}
	columns, err := qb.columns(joins)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(columns, ", "))
	args, err := qb.writeBody(&sb, joins)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

// CountSQL generates the query counting the rows ToSQL would return
func (qb *QueryBuilder) CountSQL() (string, []interface{}, error) {
	joins, err := qb.planJoins()
	if err != nil {
		return "", nil, err
	}

	// the count covers every page
	counted := qb.Clone()
	counted.limit, counted.offset, counted.orderBy = nil, nil, nil

	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*)")
	args, err := counted.writeBody(&sb, joins)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

// writeBody writes everything after the column list
func (qb *QueryBuilder) writeBody(sb *strings.Builder, joins []join) ([]interface{}, error) {
	args := make([]interface{}, 0)
	paramCounter := 1

	sb.WriteString(" FROM ")
	sb.WriteString(pq.QuoteIdentifier(qb.resource.TableName))

	for _, j := range joins {
		sb.WriteString(fmt.Sprintf(" LEFT JOIN %s AS %s ON %s",
			pq.QuoteIdentifier(j.target.TableName),
			pq.QuoteIdentifier(j.alias),
			qb.onClause(j),
		))
	}

	aliases := make(map[string]join, len(joins))
	for _, j := range joins {
		aliases[j.alias] = j
	}

	// WHERE clauses
	if len(qb.conditions) > 0 || len(qb.groups) > 0 {
		sb.WriteString(" WHERE ")
		for i, cond := range qb.conditions {
			if i > 0 {
				if cond.Or {
					sb.WriteString(" OR ")
				} else {
					sb.WriteString(" AND ")
				}
			}
			qualified, err := qb.qualifyCondition(cond, aliases)
			if err != nil {
				return nil, err
			}
			condSQL, err := conditionToSQL(qualified, &paramCounter, &args)
			if err != nil {
				return nil, fmt.Errorf("failed to build condition: %w", err)
			}
			sb.WriteString(condSQL)
		}
		for i, group := range qb.groups {
			qualified, err := qb.qualifyGroup(group, aliases)
			if err != nil {
				return nil, err
			}
			groupSQL, err := qualified.ToSQL(&paramCounter, &args)
			if err != nil {
				return nil, fmt.Errorf("failed to build condition group: %w", err)
			}
			if groupSQL == "" {
				continue
			}
			if i > 0 || len(qb.conditions) > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString("(" + groupSQL + ")")
		}
	}

	// ORDER BY
	if len(qb.orderBy) > 0 {
		clauses := make([]string, 0, len(qb.orderBy))
		for _, o := range qb.orderBy {
			column, _, err := qb.resolveField(o.field, aliases)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, column+" "+o.direction)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(clauses, ", "))
	}

	// LIMIT
	if qb.limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", paramCounter))
		args = append(args, *qb.limit)
		paramCounter++
	}

	// OFFSET
	if qb.offset != nil {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", paramCounter))
		args = append(args, *qb.offset)
		paramCounter++
	}

	return args, nil
}

// planJoins expands the select paths into joins, parents first
func (qb *QueryBuilder) planJoins() ([]join, error) {
	var joins []join
	byAlias := make(map[string]join)

	for _, path := range qb.selectRelated.Slice() {
		segments := strings.Split(path, PathSeparator)
		owner := qb.resource
		parent := ""
		for i, segment := range segments {
			alias := strings.Join(segments[:i+1], PathSeparator)
			if j, ok := byAlias[alias]; ok {
				owner, parent = j.target, alias
				continue
			}

			attr, ok, err := qb.accessor.Lookup(owner.Name, segment)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, owner.Name, segment)
			}
			if !attr.Kind.SelectEligible() {
				return nil, fmt.Errorf("%w: %s.%s is %s", ErrNotJoinable, owner.Name, segment, attr.Kind)
			}
			target, ok := qb.accessor.Registry().Get(attr.RelatedType)
			if !ok {
				return nil, fmt.Errorf("%w: %s", schema.ErrUnknownResource, attr.RelatedType)
			}

			j := join{alias: alias, parent: parent, attr: attr, owner: owner, target: target}
			joins = append(joins, j)
			byAlias[alias] = j
			owner, parent = target, alias
		}
	}
	return joins, nil
}

func (qb *QueryBuilder) onClause(j join) string {
	alias := pq.QuoteIdentifier(j.alias)
	parent := qb.ref(j.parent)
	if j.attr.Kind == schema.KindToOneForward {
		return fmt.Sprintf("%s.%s = %s.%s",
			alias, pq.QuoteIdentifier(j.target.PrimaryKeyColumn()),
			parent, pq.QuoteIdentifier(j.attr.Column))
	}
	return fmt.Sprintf("%s.%s = %s.%s",
		alias, pq.QuoteIdentifier(j.attr.ForeignKey),
		parent, pq.QuoteIdentifier(j.owner.PrimaryKeyColumn()))
}

// ref returns the quoted name a column of alias is qualified with
func (qb *QueryBuilder) ref(alias string) string {
	if alias == "" {
		return pq.QuoteIdentifier(qb.resource.TableName)
	}
	return pq.QuoteIdentifier(alias)
}

// columnExpr renders a column of alias, labelled alias__column for joins
func (qb *QueryBuilder) columnExpr(alias, column string) string {
	expr := qb.ref(alias) + "." + pq.QuoteIdentifier(column)
	if alias == "" {
		return expr
	}
	return expr + " AS " + pq.QuoteIdentifier(alias+PathSeparator+column)
}

// tableColumns lists the columns stored on a resource's table
func (qb *QueryBuilder) tableColumns(resource string) ([]string, error) {
	attrs, err := qb.accessor.Accessors(resource)
	if err != nil {
		return nil, err
	}
	var columns []string
	for _, attr := range attrs {
		if attr.Kind == schema.KindScalar || attr.Kind == schema.KindToOneForward {
			columns = append(columns, attr.Column)
		}
	}
	return columns, nil
}

// columns builds the select list
func (qb *QueryBuilder) columns(joins []join) ([]string, error) {
	if qb.only.Len() == 0 {
		if len(joins) == 0 {
			return []string{"*"}, nil
		}
		out := []string{qb.ref("") + ".*"}
		for _, j := range joins {
			cols, err := qb.tableColumns(j.target.Name)
			if err != nil {
				return nil, err
			}
			for _, c := range cols {
				out = append(out, qb.columnExpr(j.alias, c))
			}
		}
		return out, nil
	}

	aliases := make(map[string]join, len(joins))
	for _, j := range joins {
		aliases[j.alias] = j
	}

	// Projections stop at back-references, so a join at or below one loads
	// every column of its table.
	reverse := make(map[string]bool, len(joins))
	set := trace.NewPathSet(qb.columnExpr("", qb.resource.PrimaryKeyColumn()))
	for _, j := range joins {
		set.Add(qb.columnExpr(j.alias, j.target.PrimaryKeyColumn()))
		if j.attr.Kind == schema.KindToOneForward {
			set.Add(qb.columnExpr(j.parent, j.attr.Column))
		}

		reverse[j.alias] = j.attr.Kind.IsReverse() || reverse[j.parent]
		if !reverse[j.alias] {
			continue
		}
		cols, err := qb.tableColumns(j.target.Name)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			set.Add(qb.columnExpr(j.alias, c))
		}
	}

	for _, path := range qb.only.Slice() {
		if err := qb.walkColumns(path, aliases, set, true); err != nil {
			return nil, err
		}
	}
	for _, path := range qb.prefetch.Slice() {
		if err := qb.walkColumns(path, aliases, set, false); err != nil {
			return nil, err
		}
	}
	return set.Slice(), nil
}

// walkColumns follows path through the joined aliases and adds the column
// it ends on. For prefetch paths only the foreign key of the first relation
// outside the joins is needed; the loader fetches the rest.
func (qb *QueryBuilder) walkColumns(path string, aliases map[string]join, set *trace.PathSet, projected bool) error {
	segments := strings.Split(path, PathSeparator)
	owner := qb.resource
	alias := ""
	for i, segment := range segments {
		attr, ok, err := qb.accessor.Lookup(owner.Name, segment)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, owner.Name, segment)
		}

		switch attr.Kind {
		case schema.KindScalar:
			if projected {
				set.Add(qb.columnExpr(alias, attr.Column))
			}
			return nil
		case schema.KindToOneForward:
			set.Add(qb.columnExpr(alias, attr.Column))
		}

		next := strings.Join(segments[:i+1], PathSeparator)
		j, joined := aliases[next]
		if !joined {
			return nil
		}
		owner, alias = j.target, next
	}
	return nil
}

// resolveField qualifies a condition or ordering field
func (qb *QueryBuilder) resolveField(field string, aliases map[string]join) (string, schema.PrimitiveType, error) {
	owner := qb.resource
	alias := ""
	name := field
	if idx := strings.LastIndex(field, PathSeparator); idx > 0 {
		j, ok := aliases[field[:idx]]
		if !ok {
			return "", 0, fmt.Errorf("%w: %s is not a joined relation of %s", ErrUnknownField, field[:idx], qb.resource.Name)
		}
		owner, alias, name = j.target, j.alias, field[idx+len(PathSeparator):]
	}

	attr, ok, err := qb.accessor.Lookup(owner.Name, name)
	if err != nil {
		return "", 0, err
	}
	if !ok || (attr.Kind != schema.KindScalar && attr.Kind != schema.KindToOneForward) {
		return "", 0, fmt.Errorf("%w: %s.%s", ErrUnknownField, owner.Name, name)
	}

	var typ schema.PrimitiveType
	if f, ok := owner.Fields[name]; ok && f.Type != nil {
		typ = f.Type.BaseType
	} else if target, ok := qb.accessor.Registry().Get(attr.RelatedType); ok {
		// foreign keys share the type of the key they reference
		if pk, err := target.GetPrimaryKey(); err == nil && pk.Type != nil {
			typ = pk.Type.BaseType
		}
	}
	return qb.ref(alias) + "." + pq.QuoteIdentifier(attr.Column), typ, nil
}

func (qb *QueryBuilder) qualifyCondition(cond *Condition, aliases map[string]join) (*Condition, error) {
	column, typ, err := qb.resolveField(cond.Field, aliases)
	if err != nil {
		return nil, err
	}
	if err := ValidateOperator(cond.Operator, typ); err != nil {
		return nil, fmt.Errorf("%s: %w", cond.Field, err)
	}
	qualified := *cond
	qualified.Field = column
	return &qualified, nil
}

func (qb *QueryBuilder) qualifyGroup(group *PredicateGroup, aliases map[string]join) (*PredicateGroup, error) {
	out := NewPredicateGroup(group.Or)
	for _, cond := range group.Conditions {
		qualified, err := qb.qualifyCondition(cond, aliases)
		if err != nil {
			return nil, err
		}
		out.AddCondition(qualified)
	}
	for _, nested := range group.Groups {
		qualified, err := qb.qualifyGroup(nested, aliases)
		if err != nil {
			return nil, err
		}
		out.AddGroup(qualified)
	}
	return out, nil
}

// All executes the query and returns all matching rows. Joined relations
// are unflattened into nested maps before prefetch paths are loaded.
func (qb *QueryBuilder) All(ctx context.Context) ([]map[string]interface{}, error) {
	joins, err := qb.planJoins()
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := qb.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}

	rows, err := qb.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}

	for _, record := range results {
		unflatten(record, joins)
	}

	// Eager load relationships if any were specified
	if qb.prefetch.Len() > 0 && len(results) > 0 {
		if qb.loader == nil {
			return nil, fmt.Errorf("no loader configured for prefetch paths %v", qb.prefetch.Slice())
		}
		if err := qb.loader.Prefetch(ctx, results, qb.resource.Name, qb.prefetch.Slice()); err != nil {
			return nil, fmt.Errorf("failed to load relationships: %w", err)
		}
	}

	return results, nil
}

// First executes the query and returns the first matching row
func (qb *QueryBuilder) First(ctx context.Context) (map[string]interface{}, error) {
	results, err := qb.Clone().Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sql.ErrNoRows
	}
	return results[0], nil
}

// Count executes the query and returns the count
func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	sqlStr, args, err := qb.CountSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to generate SQL: %w", err)
	}

	rows, err := qb.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to scan count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}

	return count, nil
}

// Clone creates a copy of the query builder
func (qb *QueryBuilder) Clone() *QueryBuilder {
	clone := &QueryBuilder{
		accessor:      qb.accessor,
		resource:      qb.resource,
		db:            qb.db,
		loader:        qb.loader, // Share the same loader
		conditions:    make([]*Condition, len(qb.conditions)),
		groups:        make([]*PredicateGroup, len(qb.groups)),
		orderBy:       make([]orderClause, len(qb.orderBy)),
		selectRelated: trace.NewPathSet(qb.selectRelated.Slice()...),
		prefetch:      trace.NewPathSet(qb.prefetch.Slice()...),
		only:          trace.NewPathSet(qb.only.Slice()...),
	}

	copy(clone.conditions, qb.conditions)
	copy(clone.groups, qb.groups)
	copy(clone.orderBy, qb.orderBy)

	if qb.limit != nil {
		limit := *qb.limit
		clone.limit = &limit
	}

	if qb.offset != nil {
		offset := *qb.offset
		clone.offset = &offset
	}

	return clone
}

// unflatten moves alias__column keys of a joined row into nested maps.
// A joined relation whose primary key is NULL becomes nil.
func unflatten(record map[string]interface{}, joins []join) {
	if len(joins) == 0 {
		return
	}

	nested := make(map[string]map[string]interface{}, len(joins))
	for _, j := range joins {
		nested[j.alias] = make(map[string]interface{})
	}

	for key, value := range record {
		idx := strings.LastIndex(key, PathSeparator)
		if idx <= 0 {
			continue
		}
		if m, ok := nested[key[:idx]]; ok {
			m[key[idx+len(PathSeparator):]] = value
			delete(record, key)
		}
	}

	for _, j := range joins {
		var holder map[string]interface{}
		if j.parent == "" {
			holder = record
		} else {
			holder = nested[j.parent]
			if holder == nil {
				continue
			}
		}
		m := nested[j.alias]
		if m[j.target.PrimaryKeyColumn()] == nil {
			nested[j.alias] = nil
			holder[j.attr.Name] = nil
			continue
		}
		holder[j.attr.Name] = m
	}
}

// scanRows scans SQL rows into a slice of maps
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{})
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
