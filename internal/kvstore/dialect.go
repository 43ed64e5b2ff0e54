package kvstore

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the SQL differences between the supported databases.
type dialect interface {
	// DriverName returns the database/sql driver name to open.
	DriverName() string
	// Rebind converts ? placeholders to the dialect's format.
	Rebind(query string) string
	// BlobType returns the column type for opaque values.
	BlobType() string
	// PragmaStatements returns statements run once after opening.
	PragmaStatements() []string
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "pgx":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) DriverName() string         { return "sqlite" }
func (sqliteDialect) Rebind(query string) string { return query }
func (sqliteDialect) BlobType() string           { return "BLOB" }
func (sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
}

type postgresDialect struct{}

func (postgresDialect) DriverName() string { return "pgx" }

// Rebind converts ? placeholders to $1, $2, ...
func (postgresDialect) Rebind(query string) string {
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

func (postgresDialect) BlobType() string           { return "BYTEA" }
func (postgresDialect) PragmaStatements() []string { return nil }
