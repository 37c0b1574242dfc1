package builder

import (
	"math"
	"reflect"
	"strings"

	"gqlorm/internal/introspection"
	"gqlorm/internal/model"
	"gqlorm/internal/record"
	"gqlorm/internal/schema"
)

// buildArguments renders args either as an operation signature
// ("($id: ID!, $post: PostInput!)") or as the argument list of a field
// ("(id: $id, post: $post)"). An empty result means no parentheses at all.
func (b *DocumentBuilder) buildArguments(m *model.ModelDescriptor, args *record.Record, signature, useFilterWrapper, allowIDFields bool, field *introspection.Field) (string, error) {
	if args == nil || args.Len() == 0 {
		return "", nil
	}

	entries := make([]string, 0, args.Len())
	var firstErr error
	args.Range(func(key string, value any) bool {
		if value == nil || strings.HasPrefix(key, model.MetaPrefix) {
			return true
		}
		isForeignKey := m.SkipField(key)
		if (key == "id" || isForeignKey) && !allowIDFields {
			return true
		}

		var schemaArg *introspection.InputValue
		if field != nil {
			schemaArg = field.Arg(key)
		}
		if schemaArg != nil {
			typeName, err := b.index.GetTypeNameOfField(schemaArg)
			if err != nil {
				firstErr = err
				return false
			}
			if strings.HasSuffix(typeName, schema.ConnectionSuffix) {
				return true
			}
		}

		if !signature {
			entries = append(entries, key+": $"+key)
			return true
		}

		typeName, err := b.argumentType(m, key, value, isForeignKey, useFilterWrapper, schemaArg)
		if err != nil {
			firstErr = err
			return false
		}
		entries = append(entries, "$"+key+": "+typeName+"!")
		return true
	})
	if firstErr != nil {
		return "", firstErr
	}
	if len(entries) == 0 {
		return "", nil
	}

	joined := strings.Join(entries, ", ")
	if useFilterWrapper && !signature {
		joined = "filter: { " + joined + " }"
	}
	return "(" + joined + ")", nil
}

// argumentType resolves the GraphQL type of one argument, without the
// trailing "!".
func (b *DocumentBuilder) argumentType(m *model.ModelDescriptor, key string, value any, isForeignKey, useFilterWrapper bool, schemaArg *introspection.InputValue) (string, error) {
	arg := schemaArg
	if arg == nil {
		filterArg, err := b.filterField(m, key, useFilterWrapper)
		if err != nil {
			return "", err
		}
		arg = filterArg
	}
	if arg != nil {
		return b.index.GetTypeNameOfField(arg)
	}

	if isList(value) {
		return "", &UnresolvableArgumentTypeError{Model: m.SingularName(), Argument: key, Value: value}
	}
	if marker, ok := value.(TypeMarker); ok {
		return b.inputTypeName(marker), nil
	}
	if key == "id" || isForeignKey {
		return "ID", nil
	}
	if f, ok := m.Field(key); ok {
		switch f.Kind {
		case model.KindString:
			return "String", nil
		case model.KindNumber:
			return "Int", nil
		case model.KindBoolean:
			return "Boolean", nil
		case model.KindIncrement:
			return "ID", nil
		}
	}
	if typeName := scalarTypeOf(value); typeName != "" {
		return typeName, nil
	}
	return "", &UnresolvableArgumentTypeError{Model: m.SingularName(), Argument: key, Value: value}
}

// filterField looks key up on the <Entity>Filter input type. In filter mode
// a missing filter type is an error; otherwise it only means no match.
func (b *DocumentBuilder) filterField(m *model.ModelDescriptor, key string, useFilterWrapper bool) (*introspection.InputValue, error) {
	filterType, err := b.index.GetType(b.namer.FilterTypeName(m.SingularName()), !useFilterWrapper)
	if err != nil {
		return nil, err
	}
	if filterType == nil {
		return nil, nil
	}
	return filterType.InputField(key), nil
}

func (b *DocumentBuilder) inputTypeName(marker TypeMarker) string {
	if related := b.registry.Find(marker.Type); related != nil {
		return b.namer.InputTypeName(related.SingularName())
	}
	return b.namer.InputTypeName(b.namer.EntityKey(marker.Type))
}

func isList(value any) bool {
	if value == nil {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func scalarTypeOf(value any) string {
	switch v := value.(type) {
	case string:
		return "String"
	case bool:
		return "Boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Int"
	case float32:
		return floatTypeName(float64(v))
	case float64:
		return floatTypeName(v)
	default:
		return ""
	}
}

func floatTypeName(v float64) string {
	if v == math.Trunc(v) {
		return "Int"
	}
	return "Float"
}
