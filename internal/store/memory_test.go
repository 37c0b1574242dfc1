package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlorm/internal/model"
	"gqlorm/internal/record"
	"gqlorm/internal/testutil/gqlfixture"
)

func newTestStore(t *testing.T) *Memory {
	t.Helper()
	reg, err := gqlfixture.NewRegistry()
	require.NoError(t, err)
	return NewMemory(reg, nil)
}

func mustDecode(t *testing.T, s string) *record.Record {
	t.Helper()
	rec, err := record.DecodeObject([]byte(s))
	require.NoError(t, err)
	return rec
}

const fetchedPosts = `{"posts": [{
	"id": 1,
	"title": "GraphQL",
	"$isPersisted": true,
	"author": {"id": 1, "name": "Charlie Brown", "$isPersisted": true,
		"profile": {"id": 2, "email": "charlie@peanuts.com", "$isPersisted": true}},
	"comments": [{"id": 1, "content": "Yes!!!!", "commentableId": 1, "commentableType": "posts", "$isPersisted": true}]
}]}`

func TestInsertOrUpdate_Normalizes(t *testing.T) {
	s := newTestStore(t)
	inserted, err := s.InsertOrUpdate(context.Background(), mustDecode(t, fetchedPosts))
	require.NoError(t, err)

	assert.Equal(t, 4, inserted.Count())
	assert.Len(t, inserted["posts"], 1)
	assert.Len(t, inserted["users"], 1)
	assert.Len(t, inserted["profiles"], 1)
	assert.Len(t, inserted["comments"], 1)

	posts, err := s.All("posts")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	post := posts[0]
	assert.False(t, post.Has("author"), "relations are stored in their own entity")
	assert.False(t, post.Has("comments"))
	assert.Equal(t, float64(1), post.Value("authorId"))
	assert.Equal(t, "1", post.Value(model.MetaID))
	assert.Equal(t, "posts", post.Value(model.MetaEntity))
	assert.Equal(t, true, post.Value(model.MetaPersisted))

	user, err := s.Find("users", 1)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, float64(2), user.Value("profileId"))
}

func TestFind_WithRelations(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertOrUpdate(context.Background(), mustDecode(t, fetchedPosts))
	require.NoError(t, err)

	post, err := s.Find("post", "1", "author.profile", "comments")
	require.NoError(t, err)
	require.NotNil(t, post)

	author, ok := record.AsRecord(post.Value("author"))
	require.True(t, ok)
	assert.Equal(t, "Charlie Brown", author.Value("name"))
	profile, ok := record.AsRecord(author.Value("profile"))
	require.True(t, ok)
	assert.Equal(t, "charlie@peanuts.com", profile.Value("email"))

	comments, ok := post.Value("comments").([]any)
	require.True(t, ok)
	require.Len(t, comments, 1)
	comment, ok := record.AsRecord(comments[0])
	require.True(t, ok)
	assert.Equal(t, "Yes!!!!", comment.Value("content"))

	user, err := s.Find("users", "1", "posts")
	require.NoError(t, err)
	userPosts, ok := user.Value("posts").([]any)
	require.True(t, ok)
	assert.Len(t, userPosts, 1)
}

func TestInsertOrUpdate_HasManySetsForeignKey(t *testing.T) {
	s := newTestStore(t)
	data := mustDecode(t, `{"users": [{"id": 2, "name": "Peppermint Patty", "posts": [{"id": 5, "title": "Vue"}]}]}`)
	_, err := s.InsertOrUpdate(context.Background(), data)
	require.NoError(t, err)

	post, err := s.Find("posts", 5, "author")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, float64(2), post.Value("authorId"))
	author, ok := record.AsRecord(post.Value("author"))
	require.True(t, ok)
	assert.Equal(t, "Peppermint Patty", author.Value("name"))
}

func TestInsertOrUpdate_UpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertOrUpdate(ctx, mustDecode(t, `{"post": {"id": 1, "title": "Old", "content": "x"}}`))
	require.NoError(t, err)
	_, err = s.InsertOrUpdate(ctx, mustDecode(t, `{"post": {"id": 1, "title": "New"}}`))
	require.NoError(t, err)

	posts, err := s.All("posts")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "New", posts[0].Value("title"))
	assert.Equal(t, "x", posts[0].Value("content"))
}

func TestCreateFindDelete(t *testing.T) {
	s := newTestStore(t)
	created, err := s.Create("posts", record.FromPairs("title", "Draft"))
	require.NoError(t, err)
	assert.Equal(t, "$uid1", created.Value(model.MetaID))
	assert.Equal(t, false, created.Value(model.MetaPersisted))

	found, err := s.Find("post", "$uid1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Draft", found.Value("title"))

	found.Set("title", "changed")
	again, err := s.Find("post", "$uid1")
	require.NoError(t, err)
	assert.Equal(t, "Draft", again.Value("title"), "reads return copies")

	deleted, err := s.Delete("posts", "$uid1")
	require.NoError(t, err)
	assert.True(t, deleted)

	missing, err := s.Find("post", "$uid1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err = s.Delete("posts", "$uid1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUnknownEntity(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertOrUpdate(context.Background(), mustDecode(t, `{"reviews": [{"id": 1}]}`))
	var notFound *model.ModelNotFoundError
	assert.True(t, errors.As(err, &notFound))

	_, err = s.All("reviews")
	assert.True(t, errors.As(err, &notFound))
}

func TestIDKey(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"7", "7"},
		{float64(7), "7"},
		{1.5, "1.5"},
		{42, "42"},
		{int64(9), "9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IDKey(tt.in))
	}
}
