package naming

import (
	"github.com/jinzhu/inflection"
)

// Singularize converts a plural word to its singular form.
// Checks custom overrides first, then falls back to the inflection library.
func (m *Mapper) Singularize(word string) string {
	if override, ok := m.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}
