package sqlstore

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the differences between supported SQL backends
type Dialect struct {
	// Name is the configuration value selecting this dialect
	Name string
	// Driver is the database/sql driver name
	Driver string
	// Goose is the goose dialect used for migrations
	Goose string
	// Migrations is the directory inside the embedded migrations FS
	Migrations string

	positional        bool
	isUniqueViolation func(error) bool
}

var (
	// Postgres uses lib/pq
	Postgres = Dialect{
		Name:              "postgres",
		Driver:            "postgres",
		Goose:             "postgres",
		Migrations:        "migrations/postgres",
		isUniqueViolation: pqUniqueViolation,
	}

	// PGX uses the pgx stdlib adapter against the same schema as Postgres
	PGX = Dialect{
		Name:              "pgx",
		Driver:            "pgx",
		Goose:             "pgx",
		Migrations:        "migrations/postgres",
		isUniqueViolation: pgxUniqueViolation,
	}

	// SQLite uses mattn/go-sqlite3 for single-node deployments
	SQLite = Dialect{
		Name:              "sqlite",
		Driver:            "sqlite3",
		Goose:             "sqlite3",
		Migrations:        "migrations/sqlite",
		positional:        true,
		isUniqueViolation: sqliteUniqueViolation,
	}
)

// DialectFor returns the dialect registered under name
func DialectFor(name string) (Dialect, error) {
	switch name {
	case Postgres.Name:
		return Postgres, nil
	case PGX.Name:
		return PGX, nil
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql dialect: %s", name)
}

var dollarPlaceholder = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $N placeholders for drivers that only accept ?.
// Queries must reference each placeholder once and in ascending order.
func (d Dialect) Rebind(query string) string {
	if !d.positional {
		return query
	}
	return dollarPlaceholder.ReplaceAllString(query, "?")
}

// IsUniqueViolation reports whether err is a primary/unique key violation
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil || d.isUniqueViolation == nil {
		return false
	}
	return d.isUniqueViolation(err)
}

const uniqueViolationCode = "23505"

func pqUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode
}

func pgxUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func sqliteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
