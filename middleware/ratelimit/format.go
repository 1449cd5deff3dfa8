package ratelimit

import "strconv"

// formatação de headers sem fmt.
func formatInt(v int) string { return strconv.Itoa(v) }
