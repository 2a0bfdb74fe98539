// Package schematest provides schema fixtures shared by tests
package schematest

import (
	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// Resource builds a resource with an integer "id" primary key followed by
// the given text fields
func Resource(name string, textFields ...string) *schema.ResourceSchema {
	r := schema.NewResourceSchema(name)
	r.AddField(&schema.Field{Name: "id", Type: &schema.TypeSpec{BaseType: schema.TypeInt}, Primary: true})
	for _, f := range textFields {
		r.AddField(&schema.Field{Name: f, Type: &schema.TypeSpec{BaseType: schema.TypeText}})
	}
	return r
}

// TesterApp returns the registry used throughout the tests:
//
//	Parent.child       -> Child       (belongs_to)
//	Child.child        -> ChildChild  (belongs_to, back-reference "parents")
//	Teacher.teaches    -> Course      (has_many_through)
//	Student.courses    -> Course      (has_many_through)
//	Student.parent     -> Parent      (belongs_to, unique)
func TesterApp() *schema.Registry {
	parent := Resource("Parent", "text").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "Child",
			FieldName:      "child",
		})

	child := Resource("Child", "text").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "ChildChild",
			FieldName:      "child",
			Nullable:       true,
			RelatedName:    "parents",
		})

	childChild := Resource("ChildChild", "text")

	course := Resource("Course", "text")

	teacher := Resource("Teacher", "text", "big_text_field").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipHasManyThrough,
			TargetResource: "Course",
			FieldName:      "teaches",
		})

	student := Resource("Student", "text").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipHasManyThrough,
			TargetResource: "Course",
			FieldName:      "courses",
		}).
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "Parent",
			FieldName:      "parent",
			Unique:         true,
			Nullable:       true,
		})

	return schema.NewRegistry().MustRegister(parent, child, childChild, course, teacher, student)
}

// Blog returns a registry with explicitly declared back-references:
//
//	Post.author   -> User     (belongs_to)
//	Post.comments -> Comment  (has_many)
//	User.profile  -> Profile  (has_one)
//	Comment.user  -> User     (belongs_to, no back-reference)
func Blog() *schema.Registry {
	user := Resource("User", "name")
	user.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipHasOne,
		TargetResource: "Profile",
		FieldName:      "profile",
	})

	profile := Resource("Profile", "bio")
	profile.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipBelongsTo,
		TargetResource: "User",
		FieldName:      "user",
		Unique:         true,
		RelatedName:    "profile",
	})

	post := Resource("Post", "title").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "User",
			FieldName:      "author",
		}).
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipHasMany,
			TargetResource: "Comment",
			FieldName:      "comments",
		})

	comment := Resource("Comment", "content").
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "Post",
			FieldName:      "post",
			RelatedName:    "comments",
		}).
		AddRelationship(&schema.Relationship{
			Type:           schema.RelationshipBelongsTo,
			TargetResource: "User",
			FieldName:      "user",
			RelatedName:    schema.NoReverse,
		})

	return schema.NewRegistry().MustRegister(user, profile, post, comment)
}
