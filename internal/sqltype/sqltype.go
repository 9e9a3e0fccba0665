// Package sqltype maps SQL data types to column kinds.
// Introspection and value scanning share it so both agree on a column's kind.
package sqltype

import (
	"strings"

	"tablegraph/internal/store"
)

// KindOf converts a SQL data type string to its column kind.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching.
// This handles both INFORMATION_SCHEMA.COLUMNS.DATA_TYPE (base type only) and COLUMN_TYPE (full type with size).
func KindOf(sqlType string) store.Kind {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	// COLUMN_TYPE may carry modifiers, e.g. "int unsigned".
	if idx := strings.Index(sqlType, " "); idx != -1 {
		sqlType = sqlType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT",
		"INTEGER", "BIGINT", "SERIAL", "BIT", "BOOL", "BOOLEAN", "YEAR":
		return store.KindInteger
	case "FLOAT", "DOUBLE", "REAL", "DECIMAL", "NUMERIC":
		return store.KindFloat
	case "JSON":
		return store.KindJSON
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB",
		"BINARY", "VARBINARY":
		return store.KindBlob
	default:
		// CHAR, VARCHAR, TEXT variants, ENUM, SET, dates and unknown types.
		return store.KindText
	}
}

// ScanTarget returns a scan destination suited to kind.
func ScanTarget(kind store.Kind) any {
	switch kind {
	case store.KindInteger:
		return new(*int64)
	case store.KindFloat:
		return new(*float64)
	case store.KindBlob:
		return new([]byte)
	default:
		return new(*string)
	}
}

// ScannedValue unwraps a destination created by ScanTarget into a row value.
func ScannedValue(dest any) any {
	switch v := dest.(type) {
	case **int64:
		if *v == nil {
			return nil
		}
		return **v
	case **float64:
		if *v == nil {
			return nil
		}
		return **v
	case **string:
		if *v == nil {
			return nil
		}
		return **v
	case *[]byte:
		if *v == nil {
			return nil
		}
		return append([]byte(nil), (*v)...)
	default:
		return nil
	}
}
