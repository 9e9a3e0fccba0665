// Package sqlutil holds MySQL quoting helpers for generated statements.
package sqlutil

import "strings"

// QuoteIdentifier wraps name in backticks, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QualifiedName renders `database`.`name`, or just `name` when database is
// empty.
func QualifiedName(database, name string) string {
	if database == "" {
		return QuoteIdentifier(name)
	}
	return QuoteIdentifier(database) + "." + QuoteIdentifier(name)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE wildcards so s matches literally under MySQL's
// default backslash escape.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
