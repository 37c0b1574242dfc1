package gqlfixture

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"gqlorm/internal/introspection"
	"gqlorm/internal/schema"
)

type builder struct {
	mode schema.ConnectionMode
	data *Data
}

// NewSchema builds the fixture schema for the given connection mode.
func NewSchema(mode schema.ConnectionMode, data *Data) (graphql.Schema, error) {
	if data == nil {
		data = NewData()
	}
	b := &builder{mode: mode, data: data}

	var userType, profileType, postType, commentType, categoryType *graphql.Object

	userConnection := b.connection("User", func() *graphql.Object { return userType })
	postConnection := b.connection("Post", func() *graphql.Object { return postType })
	commentConnection := b.connection("Comment", func() *graphql.Object { return commentType })
	categoryConnection := b.connection("Category", func() *graphql.Object { return categoryType })
	profileConnection := b.connection("Profile", func() *graphql.Object { return profileType })

	profileType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Profile",
		Fields: graphql.Fields{
			"id":    &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"email": &graphql.Field{Type: graphql.String},
			"age":   &graphql.Field{Type: graphql.Int},
			"sex":   &graphql.Field{Type: graphql.Boolean},
		},
	})

	userType = graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
				"name":      &graphql.Field{Type: graphql.String},
				"profileId": &graphql.Field{Type: graphql.ID},
				"profile": &graphql.Field{
					Type:    profileType,
					Resolve: b.belongsTo("profiles", "profileId"),
				},
				"posts": &graphql.Field{
					Type:    postConnection,
					Resolve: b.hasMany("posts", "authorId"),
				},
			}
		}),
	})

	commentType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Comment",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"content":         &graphql.Field{Type: graphql.String},
			"commentableId":   &graphql.Field{Type: graphql.ID},
			"commentableType": &graphql.Field{Type: graphql.String},
		},
	})

	postType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Post",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
				"content":   &graphql.Field{Type: graphql.String},
				"title":     &graphql.Field{Type: graphql.String},
				"otherId":   &graphql.Field{Type: graphql.Int},
				"published": &graphql.Field{Type: graphql.Boolean},
				"authorId":  &graphql.Field{Type: graphql.ID},
				"author": &graphql.Field{
					Type:    userType,
					Resolve: b.belongsTo("users", "authorId"),
				},
				"comments": &graphql.Field{
					Type: commentConnection,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						src, _ := p.Source.(map[string]interface{})
						return b.wrap(b.data.List("comments", map[string]interface{}{
							"commentableId":   src["id"],
							"commentableType": "Post",
						})), nil
					},
				},
			}
		}),
	})

	categoryType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Category",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":       &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
				"name":     &graphql.Field{Type: graphql.String},
				"parentId": &graphql.Field{Type: graphql.ID},
				"parent": &graphql.Field{
					Type:    categoryType,
					Resolve: b.belongsTo("categories", "parentId"),
				},
			}
		}),
	})

	profileInput := inputObject("ProfileInput", graphql.InputObjectConfigFieldMap{
		"id":    {Type: graphql.ID},
		"email": {Type: graphql.String},
		"age":   {Type: graphql.Int},
		"sex":   {Type: graphql.Boolean},
	})
	userInput := inputObject("UserInput", graphql.InputObjectConfigFieldMap{
		"id":        {Type: graphql.ID},
		"name":      {Type: graphql.String},
		"profileId": {Type: graphql.ID},
		"profile":   {Type: profileInput},
	})
	postInput := inputObject("PostInput", graphql.InputObjectConfigFieldMap{
		"id":        {Type: graphql.ID},
		"content":   {Type: graphql.String},
		"title":     {Type: graphql.String},
		"otherId":   {Type: graphql.Int},
		"published": {Type: graphql.Boolean},
		"authorId":  {Type: graphql.ID},
		"author":    {Type: userInput},
	})

	postFilter := inputObject("PostFilter", graphql.InputObjectConfigFieldMap{
		"id":        {Type: graphql.ID},
		"title":     {Type: graphql.String},
		"content":   {Type: graphql.String},
		"published": {Type: graphql.Boolean},
		"otherId":   {Type: graphql.Int},
		"authorId":  {Type: graphql.ID},
	})
	userFilter := inputObject("UserFilter", graphql.InputObjectConfigFieldMap{
		"id":        {Type: graphql.ID},
		"name":      {Type: graphql.String},
		"profileId": {Type: graphql.ID},
	})
	commentFilter := inputObject("CommentFilter", graphql.InputObjectConfigFieldMap{
		"id":              {Type: graphql.ID},
		"content":         {Type: graphql.String},
		"commentableId":   {Type: graphql.ID},
		"commentableType": {Type: graphql.String},
	})
	categoryFilter := inputObject("CategoryFilter", graphql.InputObjectConfigFieldMap{
		"id":       {Type: graphql.ID},
		"name":     {Type: graphql.String},
		"parentId": {Type: graphql.ID},
	})
	profileFilter := inputObject("ProfileFilter", graphql.InputObjectConfigFieldMap{
		"id":    {Type: graphql.ID},
		"email": {Type: graphql.String},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"user":       b.single("users", userType),
			"users":      b.list("users", userConnection, userFilter),
			"profile":    b.single("profiles", profileType),
			"profiles":   b.list("profiles", profileConnection, profileFilter),
			"post":       b.single("posts", postType),
			"posts":      b.list("posts", postConnection, postFilter),
			"comment":    b.single("comments", commentType),
			"comments":   b.list("comments", commentConnection, commentFilter),
			"category":   b.single("categories", categoryType),
			"categories": b.list("categories", categoryConnection, categoryFilter),
			"unpublishedPosts": &graphql.Field{
				Type: postConnection,
				Args: graphql.FieldConfigArgument{
					"authorId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return b.wrap(b.data.List("posts", map[string]interface{}{
						"authorId":  p.Args["authorId"],
						"published": false,
					})), nil
				},
			},
			"status": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return "ok", nil
				},
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createPost": &graphql.Field{
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"post": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					in, _ := p.Args["post"].(map[string]interface{})
					r := pick(in, "content", "title", "otherId", "published", "authorId")
					return b.data.Save("posts", r), nil
				},
			},
			"updatePost": &graphql.Field{
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"id":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"post": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					existing := b.data.Get("posts", p.Args["id"])
					if existing == nil {
						return nil, fmt.Errorf("post %v not found", p.Args["id"])
					}
					in, _ := p.Args["post"].(map[string]interface{})
					for k, v := range pick(in, "content", "title", "otherId", "published", "authorId") {
						existing[k] = v
					}
					return b.data.Save("posts", existing), nil
				},
			},
			"deletePost": &graphql.Field{
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return orNil(b.data.Delete("posts", p.Args["id"])), nil
				},
			},
			"createUser": &graphql.Field{
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"user": &graphql.ArgumentConfig{Type: graphql.NewNonNull(userInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					in, _ := p.Args["user"].(map[string]interface{})
					return b.data.Save("users", pick(in, "name", "profileId")), nil
				},
			},
			"upvotePost": &graphql.Field{
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"captchaToken": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"id":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return orNil(b.data.Get("posts", p.Args["id"])), nil
				},
			},
			"publishPosts": &graphql.Field{
				Type: postConnection,
				Args: graphql.FieldConfigArgument{
					"authorId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					drafts := b.data.List("posts", map[string]interface{}{"authorId": p.Args["authorId"], "published": false})
					out := make([]interface{}, 0, len(drafts))
					for _, d := range drafts {
						r := d.(map[string]interface{})
						r["published"] = true
						out = append(out, b.data.Save("posts", r))
					}
					return b.wrap(out), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
	})
}

func inputObject(name string, fields graphql.InputObjectConfigFieldMap) *graphql.InputObject {
	return graphql.NewInputObject(graphql.InputObjectConfig{Name: name, Fields: fields})
}

func (b *builder) connection(name string, node func() *graphql.Object) *graphql.Object {
	connName := name + schema.ConnectionSuffix
	switch b.mode {
	case schema.ModeEdges:
		edge := graphql.NewObject(graphql.ObjectConfig{
			Name: name + "TypeEdge",
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				return graphql.Fields{
					"node":   &graphql.Field{Type: node()},
					"cursor": &graphql.Field{Type: graphql.String},
				}
			}),
		})
		return graphql.NewObject(graphql.ObjectConfig{
			Name: connName,
			Fields: graphql.Fields{
				"edges":      &graphql.Field{Type: graphql.NewList(edge)},
				"totalCount": &graphql.Field{Type: graphql.Int},
			},
		})
	case schema.ModePlain:
		return graphql.NewObject(graphql.ObjectConfig{
			Name: connName,
			Fields: graphql.Fields{
				"totalCount": &graphql.Field{Type: graphql.Int},
			},
		})
	default:
		return graphql.NewObject(graphql.ObjectConfig{
			Name: connName,
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				return graphql.Fields{
					"nodes":      &graphql.Field{Type: graphql.NewList(node())},
					"totalCount": &graphql.Field{Type: graphql.Int},
				}
			}),
		})
	}
}

func (b *builder) wrap(rows []interface{}) interface{} {
	switch b.mode {
	case schema.ModeEdges:
		edges := make([]interface{}, 0, len(rows))
		for i, r := range rows {
			edges = append(edges, map[string]interface{}{"node": r, "cursor": fmt.Sprintf("c%d", i)})
		}
		return map[string]interface{}{"edges": edges, "totalCount": len(rows)}
	case schema.ModePlain:
		return map[string]interface{}{"totalCount": len(rows)}
	default:
		return map[string]interface{}{"nodes": rows, "totalCount": len(rows)}
	}
}

func (b *builder) single(table string, t *graphql.Object) *graphql.Field {
	return &graphql.Field{
		Type: t,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return orNil(b.data.Get(table, p.Args["id"])), nil
		},
	}
}

func (b *builder) list(table string, conn *graphql.Object, filter *graphql.InputObject) *graphql.Field {
	return &graphql.Field{
		Type: conn,
		Args: graphql.FieldConfigArgument{
			"filter": &graphql.ArgumentConfig{Type: filter},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			f, _ := p.Args["filter"].(map[string]interface{})
			return b.wrap(b.data.List(table, f)), nil
		},
	}
}

func (b *builder) belongsTo(table, foreignKey string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		src, _ := p.Source.(map[string]interface{})
		if src[foreignKey] == nil {
			return nil, nil
		}
		return orNil(b.data.Get(table, src[foreignKey])), nil
	}
}

func (b *builder) hasMany(table, foreignKey string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		src, _ := p.Source.(map[string]interface{})
		return b.wrap(b.data.List(table, map[string]interface{}{foreignKey: src["id"]})), nil
	}
}

// orNil keeps a missing row from reaching graphql-go as a typed nil map.
func orNil(r row) interface{} {
	if r == nil {
		return nil
	}
	return r
}

func pick(in map[string]interface{}, keys ...string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, k := range keys {
		if v, ok := in[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}

// IntrospectionJSON runs the introspection query against the fixture schema
// and returns the response as JSON.
func IntrospectionJSON(mode schema.ConnectionMode) ([]byte, error) {
	s, err := NewSchema(mode, nil)
	if err != nil {
		return nil, err
	}
	result := graphql.Do(graphql.Params{Schema: s, RequestString: introspection.Query})
	if result.HasErrors() {
		return nil, fmt.Errorf("introspection failed: %v", result.Errors)
	}
	return json.Marshal(map[string]interface{}{"data": result.Data})
}

// NewIndex returns a schema index over the fixture schema.
func NewIndex(mode schema.ConnectionMode) (*schema.Index, error) {
	payload, err := IntrospectionJSON(mode)
	if err != nil {
		return nil, err
	}
	return schema.Load(payload)
}

// NewHandler returns the graphql-go HTTP handler for the fixture schema.
func NewHandler(mode schema.ConnectionMode, data *Data) (http.Handler, error) {
	s, err := NewSchema(mode, data)
	if err != nil {
		return nil, err
	}
	return handler.New(&handler.Config{
		Schema: &s,
		Pretty: false,
	}), nil
}

// NewServer serves the fixture schema over HTTP. Callers close the server.
func NewServer(mode schema.ConnectionMode, data *Data) (*httptest.Server, error) {
	h, err := NewHandler(mode, data)
	if err != nil {
		return nil, err
	}
	return httptest.NewServer(h), nil
}
