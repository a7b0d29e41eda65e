// Package sqlstore implements the domain persistence contract on top of
// database/sql. The sqlite and postgres adapters supply a Dialect and their
// embedded migrations; everything else is shared.
package sqlstore

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect captures the handful of differences between supported SQL engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2) instead of ?.
	NumberedPlaceholders bool
	// LockClause is appended to reads issued inside a write transaction.
	LockClause string
	Isolation  sql.IsolationLevel
	// ReadOnlyViews marks View transactions read-only.
	ReadOnlyViews bool
}

// SQLite is the dialect for modernc.org/sqlite. Write transactions are
// serialized by the single-connection pool and BEGIN IMMEDIATE.
var SQLite = Dialect{
	Name:      "sqlite",
	Isolation: sql.LevelDefault,
}

// Postgres is the dialect for pgx. Rows read inside a write transaction are
// locked with FOR UPDATE so concurrent mutations of the same item serialize.
var Postgres = Dialect{
	Name:                 "postgres",
	NumberedPlaceholders: true,
	LockClause:           " FOR UPDATE",
	Isolation:            sql.LevelReadCommitted,
	ReadOnlyViews:        true,
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint") ||
		strings.Contains(value, "duplicate key value") ||
		strings.Contains(value, "sqlstate 23505")
}
