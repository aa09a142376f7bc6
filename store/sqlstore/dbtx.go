// Package sqlstore implements authcore.UserStore and an audit sink on top
// of database/sql. Driver specifics live in a Dialect supplied by
// store/postgres or store/sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"regexp"
)

// DBTX is the subset of database/sql used by the repositories. Both
// *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect adapts the Postgres-style queries in this package to a driver.
type Dialect struct {
	Name string
	// Rebind rewrites $N placeholders. Nil leaves queries untouched.
	Rebind func(query string) string
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

// Postgres is the identity dialect. store/postgres wraps it with pgconn
// error detection.
var Postgres = Dialect{Name: "postgres"}

var dollarParam = regexp.MustCompile(`\$(\d+)`)

// RebindNumbered turns $N into ?N, which SQLite treats as the same
// numbered parameter.
func RebindNumbered(query string) string {
	return dollarParam.ReplaceAllString(query, "?$1")
}

func (d Dialect) q(query string) string {
	if d.Rebind == nil {
		return query
	}
	return d.Rebind(query)
}

func (d Dialect) unique(err error) bool {
	return d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}
