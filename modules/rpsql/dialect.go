package rpsql

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Dialect is the SQL flavour a Repository speaks.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect also accepts the database/sql driver names.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return "", errors.Errorf("rpsql: unknown dialect %q", s)
}

// Driver is the registered database/sql driver name.
func (d Dialect) Driver() string {
	switch d {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	}
	return "sqlite"
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// likeEscape makes backslash the LIKE escape where it is not already the default.
func (d Dialect) likeEscape() string {
	if d == SQLite {
		return ` ESCAPE '\'`
	}
	return ""
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Quote quotes a validated identifier.
func (d Dialect) Quote(ident string) (string, error) {
	if !identRe.MatchString(ident) {
		return "", errors.Errorf("rpsql: invalid identifier %q", ident)
	}
	if d == MySQL {
		return "`" + ident + "`", nil
	}
	return `"` + ident + `"`, nil
}

func (d Dialect) mustQuote(ident string) string {
	q, err := d.Quote(ident)
	if err != nil {
		panic(err)
	}
	return q
}
