// Package utils provides small helpers with no domain knowledge, shared
// across layers.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not a
// plain integer. The session-history handlers use it for the page and
// page_size query parameters, where a garbled value should mean "first
// page, default size" rather than a 400.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
