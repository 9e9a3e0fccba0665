package naming

import (
	"strings"
)

// Role says what an identifier will be used as; it only affects the fix-ups
// needed for that position in a document.
type Role int

const (
	RoleTable Role = iota
	RoleColumn
	RoleType
	RoleEnumValue
)

// Mapper converts raw identifiers into exposed names. It is a pure function
// of its configuration and safe for concurrent use.
type Mapper struct {
	config Config
}

// New creates a Mapper with the given configuration
func New(cfg Config) *Mapper {
	return &Mapper{config: cfg}
}

// Default returns a Mapper with default configuration
func Default() *Mapper {
	return New(DefaultConfig())
}

// CamelCase reports whether identifiers are folded to camelCase.
func (m *Mapper) CamelCase() bool {
	return m.config.AutoCamelCase
}

// Map returns the exposed identifier for a raw name.
// Example: "full_name" -> "fullName" with camelCase on, "1_images" -> "_1_images".
func (m *Mapper) Map(identifier string, role Role) string {
	name := identifier
	if m.config.AutoCamelCase && role != RoleEnumValue {
		name = toCamelCase(name)
	}
	name = sanitize(name)
	switch role {
	case RoleType:
		if reservedTypeNames[name] {
			name += "_"
		}
	case RoleEnumValue:
		if reservedEnumValues[name] {
			name += "_"
		}
	}
	return name
}

// Join builds a derived identifier from already mapped parts, keeping the
// casing mode: users + list -> users_list, or usersList with camelCase on.
func (m *Mapper) Join(parts ...string) string {
	if !m.config.AutoCamelCase {
		return strings.Join(parts, "_")
	}
	var sb strings.Builder
	for i, part := range parts {
		if i > 0 && part != "" {
			part = strings.ToUpper(part[:1]) + part[1:]
		}
		sb.WriteString(part)
	}
	return sb.String()
}

// sanitize replaces characters a GraphQL name cannot hold. A leading digit gets
// an underscore marker; a leading underscore gets a "t" so that raw names never
// collide with marked ones and never start with the reserved "__".
func sanitize(name string) string {
	if name == "" {
		return "_"
	}
	b := []byte(name)
	for i, c := range b {
		if !isNameChar(c) {
			b[i] = '_'
		}
	}
	switch {
	case b[0] >= '0' && b[0] <= '9':
		return "_" + string(b)
	case b[0] == '_':
		return "t" + string(b)
	}
	return string(b)
}

func isNameChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// toCamelCase converts snake_case to camelCase. Leading underscores are kept.
func toCamelCase(s string) string {
	trimmed := strings.TrimLeft(s, "_")
	prefix := s[:len(s)-len(trimmed)]
	parts := strings.Split(trimmed, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return prefix + strings.Join(parts, "")
}
