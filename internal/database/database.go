package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var ErrEmptyLocation = errors.New("database location is empty")

// Location is a parsed connection target.
type Location struct {
	Dialect Dialect
	DSN     string
}

// ParseLocation accepts postgres:// and postgresql:// URLs, and SQLite
// targets given as a bare path, :memory:, file:..., sqlite:<path> or
// jdbc:sqlite:<path>.
func ParseLocation(location string) (Location, error) {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return Location{}, ErrEmptyLocation
	}

	lower := strings.ToLower(loc)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Location{Dialect: DialectPostgres, DSN: loc}, nil
	case strings.HasPrefix(lower, "jdbc:sqlite:"):
		loc = loc[len("jdbc:sqlite:"):]
	case strings.HasPrefix(lower, "sqlite://"):
		loc = loc[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		loc = loc[len("sqlite:"):]
	}

	if loc == "" {
		return Location{}, ErrEmptyLocation
	}

	return Location{Dialect: DialectSQLite, DSN: loc}, nil
}

func (l Location) DriverName() string {
	return string(l.Dialect)
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Open connects to loc with exactly one underlying connection. An in-memory
// SQLite database lives only as long as that connection does.
func Open(ctx context.Context, loc Location, pingTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(loc.DriverName(), loc.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", loc.Dialect, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", loc.Dialect, err)
	}

	return db, nil
}
