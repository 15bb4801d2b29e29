package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDesignationUnavailable means a designation referenced by a sync either
	// does not belong to the organization or is archived.
	ErrDesignationUnavailable = errors.New("designation not available")
	// ErrQuestionNotFound means a question id submitted for update matches no
	// row for the campaign; the whole sync rolls back.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrLastAdmin means removing the role would leave the organization with no
	// admin.
	ErrLastAdmin = errors.New("organization must keep at least one admin")
)

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, which the HTTP layer surfaces as 409 Conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
