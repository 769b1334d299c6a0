package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// Postgres error codes the repositories care about.
const (
	codeUniqueViolation = "23505"
	codeUndefinedColumn = "42703"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// MapSchemaError converts an undefined-column error into shared.ErrSchema
// carrying the column name; other errors pass through untouched.
func MapSchemaError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUndefinedColumn {
		return shared.SchemaError(pgErr.ColumnName)
	}
	return err
}
