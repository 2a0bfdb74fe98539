package query

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"github.com/conduit-lang/autorelated/internal/orm/schema/schematest"
	"github.com/conduit-lang/autorelated/internal/serializer"
	"github.com/conduit-lang/autorelated/internal/trace"
)

func newTesterOptimizer() *Optimizer {
	return NewOptimizer(trace.New(schema.NewAccessor(schematest.TesterApp())))
}

func parentSerializer() serializer.Descriptor {
	childChild := serializer.New("ChildChildSerializer", "ChildChild", serializer.Scalar("id"), serializer.Scalar("text"))
	child := serializer.New("ChildSerializer", "Child", serializer.Scalar("id"), serializer.Scalar("text"), serializer.Nest("child", childChild))
	return serializer.New("ParentSerializer", "Parent", serializer.Scalar("id"), serializer.Scalar("text"), serializer.Nest("child", child))
}

func TestOptimize_JoinsNestedChain(t *testing.T) {
	qb, mock := setupBuilder(t, "Parent")

	optimized, ds, err := newTesterOptimizer().Optimize(qb, parentSerializer())
	require.NoError(t, err)
	assert.Equal(t, []string{"child", "child__child"}, ds.Select.Slice())
	assert.Empty(t, qb.SelectPaths(), "original builder is untouched")

	mock.ExpectQuery(`SELECT "parents"."id", "child"."id" AS "child__id", "parents"."child_id", ` +
		`"child__child"."id" AS "child__child__id", "child"."child_id" AS "child__child_id", ` +
		`"parents"."text", "child"."text" AS "child__text", "child__child"."text" AS "child__child__text" ` +
		`FROM "parents" ` +
		`LEFT JOIN "childs" AS "child" ON "child"."id" = "parents"."child_id" ` +
		`LEFT JOIN "child_childs" AS "child__child" ON "child__child"."id" = "child"."child_id"`).
		WillReturnRows(
			sqlmock.NewRows([]string{
				"id", "child__id", "child_id", "child__child__id", "child__child_id",
				"text", "child__text", "child__child__text",
			}).
				AddRow(1, 100, 100, 1000, 1000, "p1", "c100", "cc1000").
				AddRow(2, nil, nil, nil, nil, "p2", nil, nil),
		)

	results, err := optimized.All(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	child := results[0]["child"].(map[string]interface{})
	assert.Equal(t, "c100", child["text"])
	assert.Equal(t, "cc1000", child["child"].(map[string]interface{})["text"])
	assert.Nil(t, results[1]["child"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimize_NestedReverseRelationKeepsColumns(t *testing.T) {
	qb, mock := setupBuilder(t, "Parent")
	student := serializer.New("StudentSerializer", "Student", serializer.Scalar("id"), serializer.Scalar("text"))
	parent := serializer.New("ParentSerializer", "Parent", serializer.Scalar("id"), serializer.Nest("student", student))

	optimized, ds, err := newTesterOptimizer().Optimize(qb, parent)
	require.NoError(t, err)
	assert.Equal(t, []string{"student"}, ds.Select.Slice())
	assert.Equal(t, []string{"id"}, ds.Projection.Slice())

	mock.ExpectQuery(`SELECT "parents"."id", "student"."id" AS "student__id", "student"."text" AS "student__text", "student"."parent_id" AS "student__parent_id" ` +
		`FROM "parents" LEFT JOIN "students" AS "student" ON "student"."parent_id" = "parents"."id"`).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "student__id", "student__text", "student__parent_id"}).
				AddRow(1, 10, "ann", 1).
				AddRow(2, nil, nil, nil),
		)

	results, err := optimized.All(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ann", results[0]["student"].(map[string]interface{})["text"])
	assert.Nil(t, results[1]["student"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptimize_ResourceMismatch(t *testing.T) {
	qb, _ := setupBuilder(t, "Student")
	_, _, err := newTesterOptimizer().Optimize(qb, parentSerializer())
	assert.Error(t, err)
}

func TestOptimize_OpaqueDescriptor(t *testing.T) {
	qb, _ := setupBuilder(t, "Student")
	opaque := serializer.NewOpaque("Base", "Student")
	_, ds, err := newTesterOptimizer().Optimize(qb, opaque)
	require.NoError(t, err)
	require.Len(t, ds.Diagnostics, 1)
	assert.Equal(t, trace.DiagnosticUnintrospectableDescriptor, ds.Diagnostics[0].Kind)
}

func TestOptimize_ReordersConditions(t *testing.T) {
	qb, _ := setupBuilder(t, "Student")
	qb.Where("text", OpLike, "a%").Where("id", OpEqual, 1)

	optimized, _, err := newTesterOptimizer().Optimize(qb, serializer.New("S", "Student", serializer.Scalar("text")))
	require.NoError(t, err)
	assert.Equal(t, OpEqual, optimized.conditions[0].Operator)
	assert.Equal(t, OpLike, qb.conditions[0].Operator)

	// OR chains keep their order
	qb.OrWhere("id", OpEqual, 2)
	optimized, _, err = newTesterOptimizer().Optimize(qb, serializer.New("S", "Student", serializer.Scalar("text")))
	require.NoError(t, err)
	assert.Equal(t, OpLike, optimized.conditions[0].Operator)
}

func TestExplain(t *testing.T) {
	teacher := serializer.New("TeacherSerializer", "Teacher",
		serializer.Scalar("id"),
		serializer.Scalar("text"),
		serializer.Computed("students", "teaches.student_set"),
	)
	qb, _ := setupBuilder(t, "Teacher")

	plan, err := newTesterOptimizer().Explain(qb, teacher)
	require.NoError(t, err)

	assert.Equal(t, "Teacher", plan.Resource)
	assert.Equal(t, "TeacherSerializer", plan.Descriptor)
	assert.Equal(t, `SELECT "teachers"."id", "teachers"."text" FROM "teachers"`, plan.SQL)
	assert.Empty(t, plan.Select)
	assert.Equal(t, []string{"teaches__student_set"}, plan.Prefetch)
	assert.Equal(t, []string{"id", "text", "teaches"}, plan.Projection)
	assert.Equal(t, 3, plan.EstimatedQueries)
	assert.Equal(t, []string{
		"Prefetching 1 relation path(s)",
		"Projected 3 attribute path(s)",
	}, plan.Optimizations)
	assert.Empty(t, plan.Diagnostics)
}

func TestEstimateQueries(t *testing.T) {
	tests := []struct {
		name     string
		selects  []string
		prefetch []string
		want     int
	}{
		{"root only", nil, nil, 1},
		{"joins are free", []string{"parent__child"}, nil, 1},
		{"shared prefixes load once", nil, []string{"courses", "courses__teacher_set", "courses__student_set"}, 4},
		{"joined prefix skipped", []string{"parent__child"}, []string{"parent__child__parent_set"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb, _ := setupBuilder(t, "Student")
			qb.SelectRelated(tt.selects...).PrefetchRelated(tt.prefetch...)
			assert.Equal(t, tt.want, EstimateQueries(qb))
		})
	}
}
