package naming

// reservedTypeNames are type names the schema declares itself. A table
// mapping onto one of these is suffixed.
var reservedTypeNames = map[string]bool{
	"Query":             true,
	"Mutation":          true,
	"Subscription":      true,
	"PageInfo":          true,
	"JSON":              true,
	"Int":               true,
	"Float":             true,
	"String":            true,
	"Boolean":           true,
	"ID":                true,
	"IntegerOperations": true,
	"FloatOperations":   true,
	"StringOperations":  true,
	"BlobOperations":    true,
	"JSONOperations":    true,
}

// reservedEnumValues cannot be used as enum values.
var reservedEnumValues = map[string]bool{
	"true":  true,
	"false": true,
	"null":  true,
}
