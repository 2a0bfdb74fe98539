package serializer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSources_ScalarAndAlternateSource(t *testing.T) {
	d := New("UserSerializer", "User",
		ScalarFrom("name", "user_name"),
		Scalar("email"),
	)

	paths := NewExtractor().Sources(d, false)
	assert.Equal(t, []string{"user_name", "email"}, paths)
}

func TestSources_NestedDepthFirst(t *testing.T) {
	childChild := New("ChildChildSerializer", "ChildChild", Scalar("id"), Scalar("text"))
	child := New("ChildSerializer", "Child", Scalar("id"), Scalar("text"), Nest("child", childChild))
	parent := New("ParentSerializer", "Parent", Scalar("id"), Scalar("text"), Nest("child", child))

	paths := NewExtractor().Sources(parent, false)
	assert.Equal(t, []string{
		"id", "text",
		"child", "child.id", "child.text",
		"child.child", "child.child.id", "child.child.text",
	}, paths)
}

func TestSources_NestedCollectionWithSource(t *testing.T) {
	user := New("UserSerializer", "User", ScalarFrom("name", "user_name"))
	comment := New("CommentSerializer", "Comment", Scalar("content"), Nest("user", user))
	sub := New("SubSerializer", "Post", Scalar("title"), NestMany("comments", comment).From("comment_set"))
	blog := New("BlogPostSerializer", "Post", Scalar("title"), Nest("comment", comment), Nest("sub", sub))

	paths := NewExtractor().Sources(blog, false)
	assert.Equal(t, []string{
		"title",
		"comment", "comment.content", "comment.user", "comment.user.user_name",
		"sub", "sub.title",
		"sub.comment_set", "sub.comment_set.content", "sub.comment_set.user", "sub.comment_set.user.user_name",
	}, paths)
}

func TestSources_ComputedFields(t *testing.T) {
	t.Run("without dependencies contributes nothing", func(t *testing.T) {
		d := New("S", "Teacher", Scalar("id"), Computed("summary"), SelfLink("url"))
		assert.Equal(t, []string{"id"}, NewExtractor().Sources(d, false))
	})

	t.Run("each dependency is a path", func(t *testing.T) {
		d := New("S", "Teacher", Computed("students", "teaches__student_set", "teaches.text"))
		assert.Equal(t, []string{"teaches.student_set", "teaches.text"}, NewExtractor().Sources(d, false))
	})

	t.Run("dependencies are prefixed when nested", func(t *testing.T) {
		inner := New("Inner", "Course", Computed("count", "student_set"))
		d := New("Outer", "Teacher", NestMany("teaches", inner))
		assert.Equal(t, []string{"teaches", "teaches.student_set"}, NewExtractor().Sources(d, false))
	})
}

func TestSources_IdentifierRefs(t *testing.T) {
	d := New("StudentSerializer", "Student",
		Scalar("id"),
		PrimaryKeyRef("parent", "parent", false),
		PrimaryKeyRef("courses", "courses", true),
		HyperlinkRef("parent_url", "parent", false, "pk"),
		HyperlinkRef("parent_slug", "parent", false, "text"),
	)

	t.Run("skipped by default", func(t *testing.T) {
		assert.Equal(t, []string{"id", "parent.text"}, NewExtractor().Sources(d, false))
	})

	t.Run("included on request", func(t *testing.T) {
		assert.Equal(t, []string{"id", "parent", "courses", "parent", "parent.text"}, NewExtractor().Sources(d, true))
	})
}

func TestSources_RelationField(t *testing.T) {
	d := New("S", "Student", Relation("courses", "", true), Relation("guardian", "parent", false))
	assert.Equal(t, []string{"courses", "parent"}, NewExtractor().Sources(d, false))
}

func TestSources_OpaqueDescriptor(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	extractor := NewExtractor(WithLogger(zap.New(core)))

	t.Run("at the root", func(t *testing.T) {
		paths, warnings := extractor.Extract(NewOpaque("Base", "Parent"), false)
		assert.Empty(t, paths)
		require.Len(t, warnings, 1)
		assert.True(t, errors.Is(warnings[0].Err, ErrUnintrospectable))
		assert.Equal(t, "", warnings[0].Path)
	})

	t.Run("nested keeps siblings", func(t *testing.T) {
		d := New("ParentSerializer", "Parent",
			Scalar("text"),
			Nest("child", NewOpaque("Base", "Child")),
			Scalar("id"),
		)
		paths, warnings := extractor.Extract(d, false)
		assert.Equal(t, []string{"text", "child", "id"}, paths)
		require.Len(t, warnings, 1)
		assert.Equal(t, "child", warnings[0].Path)
		assert.Contains(t, warnings[0].String(), "at child")
	})

	assert.Equal(t, 2, logs.FilterMessage("descriptor contributes no sources").Len())
}

func TestSources_SelfNestingIsBounded(t *testing.T) {
	node := New("NodeSerializer", "Node", Scalar("id"))
	node.With(Nest("parent", node))

	paths, warnings := NewExtractor(WithMaxDepth(3)).Extract(node, false)
	assert.Equal(t, []string{
		"id", "parent",
		"parent.id", "parent.parent",
		"parent.parent.id", "parent.parent.parent",
	}, paths)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0].Err, ErrMaxDepthExceeded)
}

func TestSources_Deterministic(t *testing.T) {
	child := New("ChildSerializer", "Child", Scalar("id"), PrimaryKeyRef("child", "child", false))
	d := New("ParentSerializer", "Parent", Scalar("id"), Nest("child", child), Computed("x", "child.child.text"))

	extractor := NewExtractor()
	first := extractor.Sources(d, true)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, extractor.Sources(d, true))
	}
}

func TestSources_HyperlinkKeyedByPrimaryKey(t *testing.T) {
	tests := []struct {
		name  string
		field *IdentityRefField
		want  []string
	}{
		{"lookup on the primary key", HyperlinkRef("author", "author", false, "code").KeyedBy("code"), []string{}},
		{"pk alias", HyperlinkRef("author", "author", false, "pk").KeyedBy("code"), []string{}},
		{"id is an ordinary attribute once keyed", HyperlinkRef("author", "author", false, "id").KeyedBy("code"), []string{"author.id"}},
		{"other attribute", HyperlinkRef("author", "author", false, "name").KeyedBy("code"), []string{"author.name"}},
		{"unkeyed id", HyperlinkRef("author", "author", false, "id"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New("BookSerializer", "Book", tt.field)
			assert.Equal(t, tt.want, NewExtractor().Sources(d, false))
		})
	}
}
