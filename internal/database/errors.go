package database

import (
	"errors"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes mapped by WrapError.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// WrapError converts driver errors into typed application errors. notFound
// is the message used when no row matched. Unrecognised errors are returned
// unchanged.
func WrapError(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, notFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Wrap(apperr.KindConflict, "Duplicate field value entered", err)
		case codeForeignKeyViolation:
			return apperr.Wrap(apperr.KindBadRequest, "Referenced record does not exist", err)
		case codeInvalidText:
			// Malformed uuid literals never match a row.
			return apperr.Wrap(apperr.KindNotFound, notFound, err)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
