package schema_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"github.com/conduit-lang/autorelated/internal/orm/schema/schematest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(attrs []schema.AttributeDescriptor) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Name
	}
	return out
}

func TestAccessors_DeclarationOrderThenBackReferences(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	tests := []struct {
		resource string
		expected []string
	}{
		{"Parent", []string{"id", "text", "child", "student"}},
		{"Child", []string{"id", "text", "child", "parent_set"}},
		{"ChildChild", []string{"id", "text", "parents"}},
		{"Course", []string{"id", "text", "teacher_set", "student_set"}},
		{"Teacher", []string{"id", "text", "big_text_field", "teaches"}},
		{"Student", []string{"id", "text", "courses", "parent"}},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			attrs, err := accessor.Accessors(tt.resource)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names(attrs))
		})
	}
}

func TestAccessors_Kinds(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	tests := []struct {
		resource string
		attr     string
		kind     schema.RelationKind
		related  string
	}{
		{"Parent", "text", schema.KindScalar, ""},
		{"Parent", "child", schema.KindToOneForward, "Child"},
		{"Parent", "student", schema.KindToOneReverse, "Student"},
		{"Child", "parent_set", schema.KindToManyReverse, "Parent"},
		{"ChildChild", "parents", schema.KindToManyReverse, "Child"},
		{"Teacher", "teaches", schema.KindToManyForward, "Course"},
		{"Course", "student_set", schema.KindToManyReverse, "Student"},
		{"Student", "parent", schema.KindToOneForward, "Parent"},
	}

	for _, tt := range tests {
		t.Run(tt.resource+"."+tt.attr, func(t *testing.T) {
			attr, ok, err := accessor.Lookup(tt.resource, tt.attr)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, attr.Kind)
			assert.Equal(t, tt.related, attr.RelatedType)
			assert.Equal(t, tt.related != "", attr.IsRelation())
		})
	}
}

func TestAccessors_Columns(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	child, _, err := accessor.Lookup("Parent", "child")
	require.NoError(t, err)
	assert.Equal(t, "child_id", child.Column)

	parentSet, _, err := accessor.Lookup("Child", "parent_set")
	require.NoError(t, err)
	assert.Equal(t, "child_id", parentSet.ForeignKey)
	assert.Empty(t, parentSet.Column)

	teaches, _, err := accessor.Lookup("Teacher", "teaches")
	require.NoError(t, err)
	assert.Equal(t, "teachers_teaches", teaches.JoinTable)
	assert.Equal(t, "teacher_id", teaches.OwnerKey)
	assert.Equal(t, "course_id", teaches.RelatedKey)

	teacherSet, _, err := accessor.Lookup("Course", "teacher_set")
	require.NoError(t, err)
	assert.Equal(t, "teachers_teaches", teacherSet.JoinTable)
	assert.Equal(t, "course_id", teacherSet.OwnerKey)
	assert.Equal(t, "teacher_id", teacherSet.RelatedKey)
}

func TestAccessors_ExplicitBackReferencesWin(t *testing.T) {
	accessor := schema.NewAccessor(schematest.Blog())

	attrs, err := accessor.Accessors("User")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "profile", "post_set"}, names(attrs))
	assert.Equal(t, schema.KindToOneReverse, attrs[2].Kind)

	attrs, err = accessor.Accessors("Post")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "author", "comments"}, names(attrs))
	assert.Equal(t, schema.KindToManyReverse, attrs[3].Kind)
	assert.Equal(t, "post_id", attrs[3].ForeignKey)
}

func TestAccessors_UnknownResource(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	_, err := accessor.Accessors("Nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrUnknownResource))
}

func TestAccessors_ReturnsCallerOwnedCopy(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	first, err := accessor.Accessors("Parent")
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := accessor.Accessors("Parent")
	require.NoError(t, err)
	assert.Equal(t, "id", second[0].Name)
}

func TestAccessors_WithoutCache(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp(), schema.WithoutCache())

	attrs, err := accessor.Accessors("ChildChild")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "text", "parents"}, names(attrs))
}

func TestRelationKind(t *testing.T) {
	assert.False(t, schema.KindScalar.IsRelation())
	assert.True(t, schema.KindToOneForward.SelectEligible())
	assert.True(t, schema.KindToOneReverse.SelectEligible())
	assert.False(t, schema.KindToManyForward.SelectEligible())
	assert.False(t, schema.KindToManyReverse.SelectEligible())
	assert.True(t, schema.KindToOneReverse.IsReverse())
	assert.True(t, schema.KindToManyReverse.IsReverse())
	assert.False(t, schema.KindToManyForward.IsReverse())
	assert.True(t, schema.KindToManyForward.IsToMany())
	assert.Equal(t, "to_many_reverse", schema.KindToManyReverse.String())
}

func TestAccessorCache(t *testing.T) {
	t.Run("computes once per key", func(t *testing.T) {
		cache, err := schema.NewAccessorCache(4)
		require.NoError(t, err)

		calls := 0
		compute := func() ([]schema.AttributeDescriptor, error) {
			calls++
			return []schema.AttributeDescriptor{{Name: "id"}}, nil
		}

		for i := 0; i < 3; i++ {
			attrs, err := cache.GetOrCompute("Parent", compute)
			require.NoError(t, err)
			assert.Len(t, attrs, 1)
		}
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		cache, err := schema.NewAccessorCache(4)
		require.NoError(t, err)

		_, err = cache.GetOrCompute("Bad", func() ([]schema.AttributeDescriptor, error) {
			return nil, schema.ErrUnknownResource
		})
		assert.ErrorIs(t, err, schema.ErrUnknownResource)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("bounded", func(t *testing.T) {
		cache, err := schema.NewAccessorCache(2)
		require.NoError(t, err)

		for _, key := range []string{"A", "B", "C"} {
			_, err := cache.GetOrCompute(key, func() ([]schema.AttributeDescriptor, error) {
				return nil, nil
			})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, cache.Len())
	})

	t.Run("purge", func(t *testing.T) {
		cache, err := schema.NewAccessorCache(2)
		require.NoError(t, err)
		_, _ = cache.GetOrCompute("A", func() ([]schema.AttributeDescriptor, error) { return nil, nil })
		cache.Purge()
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("rejects non-positive size", func(t *testing.T) {
		_, err := schema.NewAccessorCache(0)
		assert.Error(t, err)
	})
}

func TestAccessors_Concurrent(t *testing.T) {
	accessor := schema.NewAccessor(schematest.TesterApp())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resource := []string{"Parent", "Child", "Course"}[i%3]
			attrs, err := accessor.Accessors(resource)
			assert.NoError(t, err)
			assert.NotEmpty(t, attrs)
		}(i)
	}
	wg.Wait()
}

func TestAccessors_Invalidate(t *testing.T) {
	registry := schema.NewRegistry()
	registry.MustRegister(schematest.Resource("Tag", "label"))
	accessor := schema.NewAccessor(registry)

	attrs, err := accessor.Accessors("Tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label"}, names(attrs))

	post := schematest.Resource("Post", "title").AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipHasManyThrough,
		TargetResource: "Tag",
		FieldName:      "tags",
	})
	registry.MustRegister(post)

	attrs, err = accessor.Accessors("Tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label"}, names(attrs), "stale until invalidated")

	accessor.Invalidate()
	attrs, err = accessor.Accessors("Tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label", "post_set"}, names(attrs))
}

func TestAccessors_DefaultBackReferenceNames(t *testing.T) {
	orderLine := schematest.Resource("OrderLine", "sku").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "PurchaseOrder",
			FieldName:      "order",
		})
	lineNote := schematest.Resource("LineNote", "body").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "PurchaseOrder",
			FieldName:      "order",
			Unique:         true,
		})
	registry := schema.NewRegistry().MustRegister(schematest.Resource("PurchaseOrder", "ref"), orderLine, lineNote)

	attrs, err := schema.NewAccessor(registry).Accessors("PurchaseOrder")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "ref", "orderline_set", "linenote"}, names(attrs))
	assert.Equal(t, "order_id", attrs[2].ForeignKey)
}
