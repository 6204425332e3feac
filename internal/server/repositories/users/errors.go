package users

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// classify maps a database error onto the common sentinels. Connection,
// resource and cancellation failures are reported as ErrStoreUnavailable so
// callers can tell them apart from authorization outcomes.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", common.ErrAlreadyExists, pgErr.ConstraintName)
		}
		if transientSQLState(pgErr.Code) {
			return unavailable(err)
		}
		return fmt.Errorf("db error: %w", err)
	}

	if isTransient(err) {
		return unavailable(err)
	}

	return fmt.Errorf("db error: %w", err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
}

// transientSQLState covers connection exceptions (08), insufficient
// resources (53), operator intervention (57P), serialization failures and
// deadlocks.
func transientSQLState(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"),
		strings.HasPrefix(code, "53"),
		strings.HasPrefix(code, "57P"):
		return true
	case code == "40001", code == "40P01":
		return true
	}
	return false
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
