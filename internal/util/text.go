package util

import "strings"

// SanitizePostgresText strips NUL bytes and invalid UTF-8 so arbitrary
// document text survives a Postgres text column insert.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
