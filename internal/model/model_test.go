package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogDeclarations() []Declaration {
	return []Declaration{
		{
			Entity: "users",
			Fields: []FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "name", Type: "string"},
				{Name: "profileId", Type: "number"},
				{Name: "profile", Type: "belongs_to", Related: "profiles", ForeignKey: "profileId"},
				{Name: "posts", Type: "has_many", Related: "posts", ForeignKey: "authorId"},
			},
		},
		{
			Entity:    "posts",
			EagerLoad: []string{"comments"},
			Fields: []FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "content", Type: "string"},
				{Name: "title", Type: "string"},
				{Name: "otherId", Type: "number"},
				{Name: "published", Type: "boolean"},
				{Name: "authorId", Type: "number"},
				{Name: "$isPersisted", Type: "boolean"},
				{Name: "author", Type: "belongs_to", Related: "users", ForeignKey: "authorId"},
				{Name: "comments", Type: "morph_many", Related: "comments", MorphID: "commentableId", MorphType: "commentableType"},
			},
		},
		{
			Entity: "comments",
			Fields: []FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "content", Type: "string"},
				{Name: "commentableId", Type: "number"},
				{Name: "commentableType", Type: "string"},
				{Name: "subjectType", Type: "string"},
			},
		},
		{
			Entity: "profiles",
			Fields: []FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "email", Type: "string"},
			},
		},
	}
}

func newBlogRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.RegisterDeclarations(blogDeclarations()))
	return reg
}

func TestRegistry_Names(t *testing.T) {
	reg := newBlogRegistry(t)

	post, err := reg.Get("posts")
	require.NoError(t, err)
	assert.Equal(t, "post", post.SingularName())
	assert.Equal(t, "posts", post.PluralName())

	assert.Same(t, post, reg.Find("post"))
	assert.Same(t, post, reg.Find("Post"))
	assert.Nil(t, reg.Find("tags"))

	_, err = reg.Get("tags")
	var notFound *ModelNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "tags", notFound.Name)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := newBlogRegistry(t)
	_, err := reg.Register(Declaration{Entity: "post"})
	var declErr *DeclarationError
	assert.True(t, errors.As(err, &declErr))

	_, err = reg.Register(Declaration{Entity: "tags", Fields: []FieldDeclaration{
		{Name: "id", Type: "number"},
		{Name: "id", Type: "string"},
	}})
	assert.True(t, errors.As(err, &declErr))

	_, err = reg.Register(Declaration{Entity: "labels", Fields: []FieldDeclaration{{Name: "x", Type: "blob"}}})
	assert.True(t, errors.As(err, &declErr))
}

func TestRegistry_EmptyModelIsLegal(t *testing.T) {
	reg := NewRegistry(nil, nil)
	m, err := reg.Register(Declaration{Entity: "empties"})
	require.NoError(t, err)
	assert.Empty(t, m.Fields())
	assert.Empty(t, m.GetQueryFields())
	assert.Empty(t, m.GetRelations())
}

func TestModel_GetQueryFields(t *testing.T) {
	reg := newBlogRegistry(t)
	post := reg.Find("post")

	// authorId backs the author relation and $isPersisted is internal.
	assert.Equal(t, []string{"id", "content", "title", "otherId", "published"}, post.GetQueryFields())

	user := reg.Find("user")
	assert.Equal(t, []string{"id", "name"}, user.GetQueryFields())
}

func TestModel_SkipField(t *testing.T) {
	reg := newBlogRegistry(t)
	post := reg.Find("post")

	assert.True(t, post.SkipField("$isPersisted"))
	assert.True(t, post.SkipField("authorId"))
	assert.False(t, post.SkipField("title"))
	assert.False(t, post.SkipField("id"))
}

func TestModel_GetRelations(t *testing.T) {
	reg := newBlogRegistry(t)
	relations := reg.Find("post").GetRelations()
	require.Len(t, relations, 2)
	assert.Equal(t, "author", relations[0].Name)
	assert.Equal(t, "comments", relations[1].Name)
}

func TestModel_ShouldEagerLoadRelation(t *testing.T) {
	reg := newBlogRegistry(t)
	post := reg.Find("post")
	user := reg.Find("user")
	comment := reg.Find("comment")

	author, _ := post.Field("author")
	comments, _ := post.Field("comments")
	posts, _ := user.Field("posts")

	assert.True(t, post.ShouldEagerLoadRelation("author", author, user))
	assert.True(t, post.ShouldEagerLoadRelation("comments", comments, comment))
	assert.False(t, user.ShouldEagerLoadRelation("posts", posts, post))

	tests := []struct {
		name      string
		eagerLoad []string
		want      bool
	}{
		{"by field name", []string{"posts"}, true},
		{"by singular name", []string{"post"}, true},
		{"unrelated", []string{"tags"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(nil, nil)
			decls := blogDeclarations()
			decls[0].EagerLoad = tt.eagerLoad
			require.NoError(t, reg.RegisterDeclarations(decls))
			u := reg.Find("user")
			f, _ := u.Field("posts")
			assert.Equal(t, tt.want, u.ShouldEagerLoadRelation("writings", f, reg.Find("post")))
		})
	}
}

func TestModel_IsTypeFieldOfPolymorphicRelation(t *testing.T) {
	reg := newBlogRegistry(t)
	comment := reg.Find("comment")

	assert.True(t, comment.IsTypeFieldOfPolymorphicRelation("commentableType"))
	assert.False(t, comment.IsTypeFieldOfPolymorphicRelation("subjectType"))
	assert.False(t, reg.Find("post").IsTypeFieldOfPolymorphicRelation("commentableType"))
}

func TestRegistry_RelatedModel(t *testing.T) {
	reg := newBlogRegistry(t)
	post := reg.Find("post")

	author, _ := post.Field("author")
	related, err := reg.RelatedModel(post, author)
	require.NoError(t, err)
	assert.Equal(t, "user", related.SingularName())

	related, err = reg.RelatedModel(post, FieldDescriptor{Name: "comments", Kind: KindHasMany})
	require.NoError(t, err)
	assert.Equal(t, "comment", related.SingularName())

	_, err = reg.RelatedModel(post, FieldDescriptor{Name: "tags", Kind: KindHasMany})
	var notFound *ModelNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestRegistry_ApplySkipFields(t *testing.T) {
	reg := newBlogRegistry(t)
	assert.False(t, reg.Processed())

	require.NoError(t, reg.ApplySkipFields(map[string][]string{
		"post":    {"otherId", "unknown"},
		"missing": {"x"},
	}))
	assert.True(t, reg.Processed())

	post := reg.Find("post")
	assert.Equal(t, []string{"otherId"}, post.SkippedFields())
	assert.NotContains(t, post.GetQueryFields(), "otherId")

	assert.ErrorIs(t, reg.ApplySkipFields(nil), ErrAlreadyProcessed)

	_, err := reg.Register(Declaration{Entity: "late"})
	assert.Error(t, err)
}

func TestParseFieldKind(t *testing.T) {
	tests := []struct {
		in   string
		want FieldKind
	}{
		{"string", KindString},
		{"belongs_to", KindBelongsTo},
		{"belongsTo", KindBelongsTo},
		{"MorphToMany", KindMorphToMany},
		{"morphed_by_many", KindMorphedByMany},
		{"attr", KindString},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFieldKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFieldKind("vector")
	assert.Error(t, err)
}

func TestFieldKind_Classification(t *testing.T) {
	assert.True(t, KindIncrement.IsNumeric())
	assert.True(t, KindNumber.IsNumeric())
	assert.False(t, KindString.IsNumeric())
	assert.True(t, KindMorphMany.IsToMany())
	assert.False(t, KindHasOne.IsToMany())
	assert.True(t, KindMorphTo.IsPolymorphic())
	assert.False(t, KindBelongsTo.IsPolymorphic())
	assert.Equal(t, "has_many", KindHasMany.String())
}
