package relationships

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"github.com/conduit-lang/autorelated/internal/orm/schema/schematest"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func setupLoader(t *testing.T, opts ...Option) (*Loader, sqlmock.Sqlmock, *Counter) {
	db, mock := setupTestDB(t)
	counter := &Counter{}
	accessor := schema.NewAccessor(schematest.TesterApp())
	return NewLoader(Observe(db, counter), accessor, opts...), mock, counter
}

func exact(query string) string {
	return "^" + regexp.QuoteMeta(query) + "$"
}

func TestPrefetch_ToOneForward(t *testing.T) {
	loader, mock, counter := setupLoader(t)

	students := []map[string]interface{}{
		{"id": 1, "text": "s1", "parent_id": 10},
		{"id": 2, "text": "s2", "parent_id": 11},
		{"id": 3, "text": "s3", "parent_id": 10}, // Same parent
		{"id": 4, "text": "s4", "parent_id": nil},
	}

	mock.ExpectQuery(exact(`SELECT * FROM "parents" WHERE "id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "text", "child_id"}).
				AddRow(10, "p10", 100).
				AddRow(11, "p11", 101),
		)

	err := loader.Prefetch(context.Background(), students, "Student", []string{"parent"})
	require.NoError(t, err)

	parent1 := students[0]["parent"].(map[string]interface{})
	parent3 := students[2]["parent"].(map[string]interface{})
	assert.Equal(t, "p10", parent1["text"])
	assert.Equal(t, "p11", students[1]["parent"].(map[string]interface{})["text"])
	assert.Equal(t, parent1["id"], parent3["id"])
	assert.Nil(t, students[3]["parent"])

	assert.Equal(t, 1, counter.Count())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefetch_ToOneForwardWithoutKeys(t *testing.T) {
	loader, mock, counter := setupLoader(t)

	students := []map[string]interface{}{{"id": 1, "parent_id": nil}}

	err := loader.Prefetch(context.Background(), students, "Student", []string{"parent"})
	require.NoError(t, err)

	assert.Contains(t, students[0], "parent")
	assert.Nil(t, students[0]["parent"])
	assert.Equal(t, 0, counter.Count())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefetch_ToOneReverse(t *testing.T) {
	loader, mock, _ := setupLoader(t)

	parents := []map[string]interface{}{
		{"id": 10, "text": "p10"},
		{"id": 11, "text": "p11"},
	}

	mock.ExpectQuery(exact(`SELECT DISTINCT ON ("parent_id") * FROM "students" WHERE "parent_id" = ANY($1) ORDER BY "parent_id", "id"`)).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "text", "parent_id"}).
				AddRow(1, "s1", 10),
		)

	err := loader.Prefetch(context.Background(), parents, "Parent", []string{"student"})
	require.NoError(t, err)

	assert.Equal(t, "s1", parents[0]["student"].(map[string]interface{})["text"])
	assert.Nil(t, parents[1]["student"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefetch_ToManyReverse(t *testing.T) {
	loader, mock, _ := setupLoader(t)

	children := []map[string]interface{}{
		{"id": 100, "text": "c100"},
		{"id": 101, "text": "c101"},
	}

	mock.ExpectQuery(exact(`SELECT * FROM "parents" WHERE "child_id" = ANY($1) ORDER BY "id"`)).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "text", "child_id"}).
				AddRow(10, "p10", 100).
				AddRow(12, "p12", 100),
		)

	err := loader.Prefetch(context.Background(), children, "Child", []string{"parent_set"})
	require.NoError(t, err)

	assert.Len(t, children[0]["parent_set"], 2)
	assert.NotNil(t, children[1]["parent_set"])
	assert.Len(t, children[1]["parent_set"], 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefetch_ManyToManyChain(t *testing.T) {
	loader, mock, counter := setupLoader(t)

	teachers := []map[string]interface{}{
		{"id": 1, "text": "t1"},
		{"id": 2, "text": "t2"},
	}

	mock.ExpectQuery(exact(`SELECT t.*, j."teacher_id" AS "__parent_id" FROM "courses" t INNER JOIN "teachers_teaches" j ON t."id" = j."course_id" WHERE j."teacher_id" = ANY($1) ORDER BY t."id"`)).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "text", "__parent_id"}).
				AddRow(7, "math", 1).
				AddRow(8, "art", 1).
				AddRow(7, "math", 2),
		)
	mock.ExpectQuery(exact(`SELECT t.*, j."course_id" AS "__parent_id" FROM "students" t INNER JOIN "students_courses" j ON t."id" = j."student_id" WHERE j."course_id" = ANY($1) ORDER BY t."id"`)).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "text", "__parent_id"}).
				AddRow(40, "ann", 7).
				AddRow(41, "bob", 8),
		)

	err := loader.Prefetch(context.Background(), teachers, "Teacher", []string{"teaches", "teaches__student_set"})
	require.NoError(t, err)

	courses := teachers[0]["teaches"].([]map[string]interface{})
	require.Len(t, courses, 2)
	assert.NotContains(t, courses[0], "__parent_id")

	students := courses[0]["student_set"].([]map[string]interface{})
	require.Len(t, students, 1)
	assert.Equal(t, "ann", students[0]["text"])

	// course 7 of the second teacher is a separate row from the join
	second := teachers[1]["teaches"].([]map[string]interface{})
	require.Len(t, second, 1)
	assert.Len(t, second[0]["student_set"], 1)

	assert.Equal(t, 2, counter.Count())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefetch_SkipsJoinedRelation(t *testing.T) {
	loader, mock, counter := setupLoader(t)

	students := []map[string]interface{}{
		{"id": 1, "parent_id": 10, "parent": map[string]interface{}{"id": 10, "child_id": 100}},
		{"id": 2, "parent_id": nil, "parent": nil},
	}

	mock.ExpectQuery(exact(`SELECT * FROM "childs" WHERE "id" = ANY($1)`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "child_id"}).AddRow(100, "c100", nil))

	err := loader.Prefetch(context.Background(), students, "Student", []string{"parent__child"})
	require.NoError(t, err)

	parent := students[0]["parent"].(map[string]interface{})
	assert.Equal(t, "c100", parent["child"].(map[string]interface{})["text"])
	assert.Equal(t, 1, counter.Count())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefetch_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown relationship", func(t *testing.T) {
		loader, _, _ := setupLoader(t)
		err := loader.Prefetch(ctx, []map[string]interface{}{{"id": 1}}, "Student", []string{"guardian"})
		assert.ErrorIs(t, err, ErrUnknownRelationship)
	})

	t.Run("scalar segment", func(t *testing.T) {
		loader, _, _ := setupLoader(t)
		err := loader.Prefetch(ctx, []map[string]interface{}{{"id": 1}}, "Student", []string{"text"})
		assert.ErrorIs(t, err, ErrInvalidRelationType)
	})

	t.Run("unknown resource", func(t *testing.T) {
		loader, _, _ := setupLoader(t)
		err := loader.Prefetch(ctx, []map[string]interface{}{{"id": 1}}, "Janitor", []string{"parent"})
		assert.ErrorIs(t, err, schema.ErrUnknownResource)
	})

	t.Run("max depth", func(t *testing.T) {
		loader, _, _ := setupLoader(t, WithMaxDepth(1))
		students := []map[string]interface{}{
			{"id": 1, "parent": map[string]interface{}{"id": 10, "child_id": 100}},
		}
		err := loader.Prefetch(ctx, students, "Student", []string{"parent__child"})
		assert.ErrorIs(t, err, ErrMaxDepthExceeded)
	})

	t.Run("query failure", func(t *testing.T) {
		loader, mock, counter := setupLoader(t)
		mock.ExpectQuery(`SELECT \* FROM "parents"`).WillReturnError(errors.New("connection reset"))

		err := loader.Prefetch(ctx, []map[string]interface{}{{"id": 1, "parent_id": 10}}, "Student", []string{"parent"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.Equal(t, 1, counter.Errors())
	})
}

func TestPrefetch_NoRecords(t *testing.T) {
	loader, _, counter := setupLoader(t)
	err := loader.Prefetch(context.Background(), nil, "Student", []string{"parent"})
	require.NoError(t, err)
	assert.Equal(t, 0, counter.Count())
}

func TestLoadContext(t *testing.T) {
	lc := NewLoadContext(2)

	assert.True(t, lc.MarkVisited("teaches"))
	assert.False(t, lc.MarkVisited("teaches"))

	require.NoError(t, lc.IncrementDepth())
	require.NoError(t, lc.IncrementDepth())
	assert.ErrorIs(t, lc.IncrementDepth(), ErrMaxDepthExceeded)
	lc.DecrementDepth()
	lc.DecrementDepth()
	require.NoError(t, lc.IncrementDepth())
}

func TestObservers(t *testing.T) {
	var seen []string
	counter := &Counter{}
	obs := Observers{counter, ObserverFunc(func(query string, _ time.Duration, _ error) {
		seen = append(seen, query)
	})}

	obs.ObserveQuery("SELECT 1", time.Millisecond, nil)
	obs.ObserveQuery("SELECT 2", time.Millisecond, errors.New("boom"))

	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, seen)
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, counter.Queries())
	assert.Equal(t, 1, counter.Errors())

	counter.Reset()
	assert.Equal(t, 0, counter.Count())

	db, _ := setupTestDB(t)
	assert.Same(t, db, Observe(db, nil))
}

func TestIDToString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"abc", "abc"},
		{42, "42"},
		{int64(42), "42"},
		{int32(7), "7"},
		{[]byte("uuid"), "uuid"},
		{3.5, "3.5"},
	}
	for _, tt := range tests {
		got, err := idToString(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := idToString(nil)
	assert.Error(t, err)
}
