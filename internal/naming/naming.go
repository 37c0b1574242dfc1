package naming

import (
	"log/slog"
	"strings"
)

// Namer provides the name transformations shared by the model registry,
// document builder and data transformer.
type Namer struct {
	config        Config
	reversePlural map[string]string
	logger        *slog.Logger
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PluralOverrides == nil {
		cfg.PluralOverrides = map[string]string{}
	}
	if cfg.SingularOverrides == nil {
		cfg.SingularOverrides = map[string]string{}
	}
	reverse := make(map[string]string, len(cfg.PluralOverrides))
	for singular, plural := range cfg.PluralOverrides {
		if existing, dup := reverse[plural]; dup {
			logger.Warn("plural override is ambiguous",
				slog.String("plural", plural),
				slog.String("kept", existing),
				slog.String("ignored", singular),
			)
			continue
		}
		reverse[plural] = singular
	}
	return &Namer{
		config:        cfg,
		reversePlural: reverse,
		logger:        logger,
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// TypeName converts an entity name to its GraphQL object type name.
// Example: "post" -> "Post"
func (n *Namer) TypeName(singular string) string {
	return UpcaseFirst(singular)
}

// InputTypeName returns the input object type used for mutation payloads.
// Example: "post" -> "PostInput"
func (n *Namer) InputTypeName(singular string) string {
	return UpcaseFirst(singular) + "Input"
}

// FilterTypeName returns the input object type used for list filters.
// Example: "post" -> "PostFilter"
func (n *Namer) FilterTypeName(singular string) string {
	return UpcaseFirst(singular) + "Filter"
}

// OperationName returns the operation name for a root field.
// Example: "createPost" -> "CreatePost"
func (n *Namer) OperationName(fieldName string) string {
	return UpcaseFirst(fieldName)
}

// CreateMutationName returns the mutation used to persist a new record.
// Example: "post" -> "createPost"
func (n *Namer) CreateMutationName(singular string) string {
	return "create" + UpcaseFirst(singular)
}

// UpdateMutationName returns the mutation used to push a changed record.
func (n *Namer) UpdateMutationName(singular string) string {
	return "update" + UpcaseFirst(singular)
}

// DeleteMutationName returns the mutation used to destroy a record.
func (n *Namer) DeleteMutationName(singular string) string {
	return "delete" + UpcaseFirst(singular)
}

// EntityKey normalizes an arbitrary entity reference ("Posts", "post",
// "posts") to its lower-camel singular form.
func (n *Namer) EntityKey(name string) string {
	return n.Singularize(DowncaseFirst(name))
}

// UpcaseFirst upper-cases the first letter of s.
func UpcaseFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DowncaseFirst lower-cases the first letter of s.
func DowncaseFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
