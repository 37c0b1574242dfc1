// Package naming converts between entity names, GraphQL type names and
// GraphQL field names, including pluralization.
package naming

// Config overrides the inflection rules for entity names the rules get
// wrong, such as {"datum": "data"} for an API with a "data" root field.
type Config struct {
	// PluralOverrides maps singular to plural.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
	// SingularOverrides maps plural to singular.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns a Config with no overrides.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
	}
}
