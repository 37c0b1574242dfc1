package naming

import (
	"github.com/jinzhu/inflection"
)

// Pluralize returns the plural of an entity name. A configured plural
// override wins over the inflection rules.
func (n *Namer) Pluralize(word string) string {
	if plural, ok := n.config.PluralOverrides[word]; ok {
		return plural
	}
	return inflection.Plural(word)
}

// Singularize returns the singular of an entity name. Singular overrides
// are consulted first, then plural overrides in reverse, so declaring
// person -> people is enough to map "people" back to "person".
func (n *Namer) Singularize(word string) string {
	if singular, ok := n.config.SingularOverrides[word]; ok {
		return singular
	}
	if singular, ok := n.reversePlural[word]; ok {
		return singular
	}
	return inflection.Singular(word)
}
