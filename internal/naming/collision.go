package naming

import "fmt"

// CollisionError reports two distinct sources mapping to one exposed name.
type CollisionError struct {
	Scope    string
	Name     string
	Existing string
	Incoming string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("name collision in %s: %q and %q both map to %q", e.Scope, e.Existing, e.Incoming, e.Name)
}

// Registry tracks exposed names per scope. It is not safe for concurrent use;
// one registry serves one schema build.
type Registry struct {
	seen map[string]map[string]string // scope → exposed name → source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]map[string]string)}
}

// Register records source under name within scope. Registering the same
// source twice is a no-op; a different source returns *CollisionError.
func (r *Registry) Register(scope, name, source string) error {
	names := r.seen[scope]
	if names == nil {
		names = make(map[string]string)
		r.seen[scope] = names
	}
	if existing, ok := names[name]; ok {
		if existing == source {
			return nil
		}
		return &CollisionError{Scope: scope, Name: name, Existing: existing, Incoming: source}
	}
	names[name] = source
	return nil
}

// Exists reports whether name is taken in scope.
func (r *Registry) Exists(scope, name string) bool {
	_, ok := r.seen[scope][name]
	return ok
}
