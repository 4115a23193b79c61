package service

import "strings"

// sanitizeUTF8 drops invalid UTF-8 sequences. Postgres and the Data API
// both reject them.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
