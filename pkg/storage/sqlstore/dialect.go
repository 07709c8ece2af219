package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect adapts the shared queries to a database engine.
type Dialect struct {
	// Name identifies the engine in logs and errors.
	Name string

	// Schema lists idempotent DDL statements run by Migrate.
	Schema []string

	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool

	// IsConflict reports whether err is a retryable contention error.
	IsConflict func(err error) bool
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
