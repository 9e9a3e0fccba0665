// Package naming maps raw table and column identifiers to names that are
// valid in a GraphQL document, and detects collisions between them.
package naming

// Config holds naming customization options
type Config struct {
	// AutoCamelCase folds snake_case identifiers to camelCase.
	AutoCamelCase bool `mapstructure:"auto_camelcase"`

	// SingularOverrides maps plural -> custom singular, used in generated
	// descriptions. Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SingularOverrides: make(map[string]string),
	}
}
