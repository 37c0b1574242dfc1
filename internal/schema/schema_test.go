package schema_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlorm/internal/introspection"
	"gqlorm/internal/schema"
	"gqlorm/internal/testutil/gqlfixture"
)

func loadIndex(t *testing.T, mode schema.ConnectionMode) *schema.Index {
	t.Helper()
	idx, err := gqlfixture.NewIndex(mode)
	require.NoError(t, err)
	return idx
}

func TestDetermineQueryMode(t *testing.T) {
	for _, mode := range []schema.ConnectionMode{schema.ModeNodes, schema.ModeEdges, schema.ModePlain} {
		t.Run(string(mode), func(t *testing.T) {
			got, err := loadIndex(t, mode).DetermineQueryMode()
			require.NoError(t, err)
			assert.Equal(t, mode, got)
		})
	}
}

func TestDetermineQueryMode_NoConnection(t *testing.T) {
	idx := schema.NewIndex(&introspection.Schema{
		Types: []introspection.FullType{{
			Kind: introspection.KindObject,
			Name: "Query",
			Fields: []introspection.Field{{
				Name: "status",
				Type: introspection.TypeRef{Kind: introspection.KindScalar, Name: strPtr("String")},
			}},
		}},
	})
	_, err := idx.DetermineQueryMode()
	var target *schema.NoConnectionTypeFoundError
	assert.True(t, errors.As(err, &target))
}

func TestLookups(t *testing.T) {
	idx := loadIndex(t, schema.ModeNodes)

	post, err := idx.GetType("post", false)
	require.NoError(t, err)
	assert.Equal(t, "Post", post.Name)

	missing, err := idx.GetType("Nope", true)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = idx.GetType("Nope", false)
	var typeErr *schema.SchemaTypeNotFoundError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "Nope", typeErr.Name)

	q, err := idx.GetQuery("posts", false)
	require.NoError(t, err)
	assert.Equal(t, "posts", q.Name)
	_, err = idx.GetQuery("Posts", false)
	var queryErr *schema.SchemaQueryNotFoundError
	assert.True(t, errors.As(err, &queryErr))

	m, err := idx.GetMutation("createPost", false)
	require.NoError(t, err)
	require.NotNil(t, m.Arg("post"))
	_, err = idx.GetMutation("createComment", false)
	var mutationErr *schema.SchemaMutationNotFoundError
	assert.True(t, errors.As(err, &mutationErr))
	none, err := idx.GetMutation("createComment", true)
	assert.NoError(t, err)
	assert.Nil(t, none)

	assert.Contains(t, idx.QueryNames(), "unpublishedPosts")
	assert.Contains(t, idx.MutationNames(), "upvotePost")
	assert.NotEmpty(t, idx.Fingerprint())
}

func TestRootFieldPrefersMutation(t *testing.T) {
	idx := loadIndex(t, schema.ModeNodes)
	require.NotNil(t, idx.RootField("createPost"))
	require.NotNil(t, idx.RootField("posts"))
	assert.Nil(t, idx.RootField("nothing"))
}

func TestGetTypeNameOfField(t *testing.T) {
	idx := loadIndex(t, schema.ModeNodes)

	createPost, err := idx.GetMutation("createPost", false)
	require.NoError(t, err)
	name, err := idx.GetTypeNameOfField(createPost.Arg("post"))
	require.NoError(t, err)
	assert.Equal(t, "PostInput", name)

	posts, err := idx.GetQuery("posts", false)
	require.NoError(t, err)
	name, err = idx.GetTypeNameOfField(posts)
	require.NoError(t, err)
	assert.Equal(t, "PostTypeConnection", name)

	ok, err := idx.ReturnsConnection(posts)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = idx.ReturnsConnection(createPost)
	require.NoError(t, err)
	assert.False(t, ok)

	conn, err := idx.GetType("PostTypeConnection", false)
	require.NoError(t, err)
	for i := range conn.Fields {
		if conn.Fields[i].Name == "nodes" {
			name, err = idx.GetTypeNameOfField(&conn.Fields[i])
			require.NoError(t, err)
			assert.Equal(t, "[Post]", name)
		}
	}
}

func TestGetTypeNameOfField_Missing(t *testing.T) {
	idx := schema.NewIndex(&introspection.Schema{})
	f := &introspection.Field{
		Name: "broken",
		Type: introspection.TypeRef{Kind: introspection.KindNonNull},
	}
	_, err := idx.GetTypeNameOfField(f)
	var target *schema.MissingTypeNameError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "broken", target.Field)
}

func TestGetRealType(t *testing.T) {
	idx := schema.NewIndex(&introspection.Schema{})
	ref := &introspection.TypeRef{
		Kind:   introspection.KindNonNull,
		OfType: &introspection.TypeRef{Kind: introspection.KindScalar, Name: strPtr("ID")},
	}
	assert.Equal(t, "ID", idx.GetRealType(ref).TypeName())
}

func TestParseConnectionMode(t *testing.T) {
	tests := map[string]schema.ConnectionMode{
		"":      schema.ModeAuto,
		"auto":  schema.ModeAuto,
		"Nodes": schema.ModeNodes,
		"edges": schema.ModeEdges,
		"list":  schema.ModePlain,
		"plain": schema.ModePlain,
	}
	for in, want := range tests {
		got, err := schema.ParseConnectionMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := schema.ParseConnectionMode("pages")
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
