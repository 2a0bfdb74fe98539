package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"github.com/conduit-lang/autorelated/internal/orm/schema/schematest"
)

func fieldNames(t *testing.T, d Descriptor) []string {
	t.Helper()
	fields, err := d.Fields()
	require.NoError(t, err)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name())
	}
	return names
}

func TestModel(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	t.Run("all fields", func(t *testing.T) {
		d, err := Model(accessor, "StudentSerializer", "Student", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "text", "courses", "parent"}, fieldNames(t, d))

		courses, ok := d.Field("courses")
		require.True(t, ok)
		assert.True(t, courses.IdentifierOnly())
		assert.True(t, courses.Many())

		parent, _ := d.Field("parent")
		assert.False(t, parent.Many())
	})

	t.Run("all fields marker", func(t *testing.T) {
		d, err := Model(accessor, "ParentSerializer", "Parent", []string{AllFields})
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "text", "child"}, fieldNames(t, d))
	})

	t.Run("declared fields follow the key", func(t *testing.T) {
		inner, err := Model(accessor, "ChildSerializer", "Child", nil)
		require.NoError(t, err)

		d, err := Model(accessor, "ParentSerializer", "Parent", nil, Nest("child", inner))
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "child", "text"}, fieldNames(t, d))

		child, _ := d.Field("child")
		assert.NotNil(t, child.Nested())
	})

	t.Run("explicit list keeps its order", func(t *testing.T) {
		d, err := Model(accessor, "CourseSerializer", "Course", []string{"text", "student_set", "id"})
		require.NoError(t, err)
		assert.Equal(t, []string{"text", "student_set", "id"}, fieldNames(t, d))

		students, _ := d.Field("student_set")
		assert.True(t, students.Many())
	})

	t.Run("declared field must be included", func(t *testing.T) {
		_, err := Model(accessor, "S", "Teacher", []string{"id"}, Computed("summary"))
		assert.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("unknown attribute", func(t *testing.T) {
		_, err := Model(accessor, "S", "Teacher", []string{"id", "salary"})
		assert.ErrorIs(t, err, ErrUnknownField)
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, err := Model(accessor, "S", "Janitor", nil)
		assert.ErrorIs(t, err, schema.ErrUnknownResource)
	})
}

func TestModel_Sources(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	d, err := Model(accessor, "StudentSerializer", "Student", nil)
	require.NoError(t, err)

	extractor := NewExtractor()
	assert.Equal(t, []string{"id", "text"}, extractor.Sources(d, false))
	assert.Equal(t, []string{"id", "text", "courses", "parent"}, extractor.Sources(d, true))
}
