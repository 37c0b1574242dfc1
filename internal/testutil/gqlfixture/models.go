// Package gqlfixture provides a blog-style GraphQL schema served by
// graphql-go together with the matching model declarations. Package tests
// use it to introspect and execute real documents.
package gqlfixture

import (
	"gqlorm/internal/model"
	"gqlorm/internal/naming"
)

// Declarations returns the model declarations matching the fixture schema.
func Declarations() []model.Declaration {
	return []model.Declaration{
		{
			Entity: "users",
			Fields: []model.FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "name", Type: "string"},
				{Name: "profileId", Type: "number"},
				{Name: "profile", Type: "belongs_to", Related: "profiles", ForeignKey: "profileId"},
				{Name: "posts", Type: "has_many", Related: "posts", ForeignKey: "authorId"},
			},
		},
		{
			Entity: "profiles",
			Fields: []model.FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "email", Type: "string"},
				{Name: "age", Type: "number"},
				{Name: "sex", Type: "boolean"},
			},
		},
		{
			Entity:    "posts",
			EagerLoad: []string{"comments"},
			Fields: []model.FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "content", Type: "string"},
				{Name: "title", Type: "string"},
				{Name: "otherId", Type: "number"},
				{Name: "published", Type: "boolean"},
				{Name: "authorId", Type: "number"},
				{Name: "author", Type: "belongs_to", Related: "users", ForeignKey: "authorId"},
				{Name: "comments", Type: "morph_many", Related: "comments", MorphID: "commentableId", MorphType: "commentableType"},
			},
		},
		{
			Entity: "comments",
			Fields: []model.FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "content", Type: "string"},
				{Name: "commentableId", Type: "number"},
				{Name: "commentableType", Type: "string"},
			},
		},
		{
			Entity: "categories",
			Fields: []model.FieldDeclaration{
				{Name: "id", Type: "increment"},
				{Name: "name", Type: "string"},
				{Name: "parentId", Type: "number"},
				{Name: "parent", Type: "belongs_to", Related: "categories", ForeignKey: "parentId"},
			},
		},
	}
}

// NewRegistry registers the fixture declarations.
func NewRegistry() (*model.Registry, error) {
	reg := model.NewRegistry(naming.Default(), nil)
	if err := reg.RegisterDeclarations(Declarations()); err != nil {
		return nil, err
	}
	return reg, nil
}
