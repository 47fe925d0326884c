package dbx

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories care about.
const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
	pgErrInvalidText         = "22P02"
	pgErrConnectionClass     = "08"
)

// MapError translates driver errors into common sentinels, keeping the cause.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgErrInvalidText:
			// malformed uuid key: no such row can exist
			return fmt.Errorf("%w: %s", common.ErrorNotFound, pgErr.Message)
		case pgErr.Code == pgErrUniqueViolation,
			pgErr.Code == pgErrForeignKeyViolation,
			pgErr.Code == pgErrCheckViolation:
			return fmt.Errorf("%w: %s", common.ErrorValidation, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, pgErrConnectionClass):
			return fmt.Errorf("%w: %s", common.ErrBackendUnavailable, pgErr.Message)
		}
	}
	return err
}
